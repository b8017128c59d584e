package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/narwhalmedia/narwhal-player/internal/config"
)

// New creates the process logger. Production uses the JSON encoder unless
// console output is asked for; other environments default to console.
func New(cfg config.ServiceConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Environment == "production" || cfg.Environment == "prod" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.LogFormat == "json" {
		zc.Encoding = "json"
	} else {
		zc.Encoding = "console"
	}

	zc.InitialFields = map[string]interface{}{
		"service": cfg.Name,
		"env":     cfg.Environment,
	}
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}

	if hostname, err := os.Hostname(); err == nil {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// WithRequest adds request fields to the logger.
func WithRequest(logger *zap.Logger, requestID, method, path string) *zap.Logger {
	fields := make([]zap.Field, 0, 3)
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if method != "" {
		fields = append(fields, zap.String("method", method))
	}
	if path != "" {
		fields = append(fields, zap.String("path", path))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
