package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/logger"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log := logger.WithRequest(s.logger, middleware.GetReqID(r.Context()), r.Method, r.URL.Path)
		fields := []zap.Field{
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			log.Debug("request", fields...)
		default:
			log.Info("request", fields...)
		}
	})
}
