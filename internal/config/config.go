package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// ServiceName is the default service name and config file stem
const ServiceName = "narwhal-player"

// EnvPrefix prefixes every environment override
const EnvPrefix = "NARWHAL_PLAYER_"

// Config holds all configuration for the player engine
type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Server    ServerConfig    `koanf:"server"`
	Playback  PlaybackConfig  `koanf:"playback"`
	Downloads DownloadsConfig `koanf:"downloads"`
	Database  DatabaseConfig  `koanf:"database"`
	Events    EventsConfig    `koanf:"events"`
	Storage   StorageConfig   `koanf:"storage"`
}

// ServiceConfig holds process-level settings
type ServiceConfig struct {
	Name            string        `koanf:"name"`
	Environment     string        `koanf:"environment"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"` // json or console
	HTTPPort        int           `koanf:"http_port"`
	GRPCPort        int           `koanf:"grpc_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ServerConfig identifies the remote media server and this client to it
type ServerConfig struct {
	URL           string        `koanf:"url"`
	AccessToken   string        `koanf:"access_token"`
	UserID        string        `koanf:"user_id"`
	DeviceID      string        `koanf:"device_id"`
	DeviceName    string        `koanf:"device_name"`
	ClientName    string        `koanf:"client_name"`
	ClientVersion string        `koanf:"client_version"`
	Timeout       time.Duration `koanf:"timeout"`
}

// PlaybackConfig holds stream resolution and session reporting settings
type PlaybackConfig struct {
	Target              string        `koanf:"target"`
	MaxBitrate          int           `koanf:"max_bitrate"`
	ResolveTimeout      time.Duration `koanf:"resolve_timeout"`
	ReportInterval      time.Duration `koanf:"report_interval"`
	TrickplayThrottle   time.Duration `koanf:"trickplay_throttle"`
	PrefetchConcurrency int           `koanf:"prefetch_concurrency"`
	// Offline disables session reporting to the server
	Offline bool `koanf:"offline"`
}

// DownloadsConfig holds download manager settings
type DownloadsConfig struct {
	Dir                string        `koanf:"dir"`
	WorkDir            string        `koanf:"work_dir"`
	SegmentConcurrency int           `koanf:"segment_concurrency"`
	SegmentTimeout     time.Duration `koanf:"segment_timeout"`
	CancelGrace        time.Duration `koanf:"cancel_grace"`
	FFmpegPath         string        `koanf:"ffmpeg_path"`
	MaxBitrate         int           `koanf:"max_bitrate"`
}

// DatabaseConfig holds the offline catalog database settings
type DatabaseConfig struct {
	Driver       string        `koanf:"driver"` // sqlite or postgres
	Path         string        `koanf:"path"`
	DSN          string        `koanf:"dsn"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	MaxLifetime  time.Duration `koanf:"max_lifetime"`
}

// EventsConfig selects where job events are published
type EventsConfig struct {
	Backend string      `koanf:"backend"` // none, db, nats or kafka
	NATS    NATSConfig  `koanf:"nats"`
	Kafka   KafkaConfig `koanf:"kafka"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `koanf:"url"`
	ClientID      string        `koanf:"client_id"`
	MaxReconnect  int           `koanf:"max_reconnect"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// StorageConfig selects the mirror for completed offline files
type StorageConfig struct {
	Mirror string `koanf:"mirror"` // none, local or s3
	Path   string `koanf:"path"`
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
	Region string `koanf:"region"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            ServiceName,
			Environment:     "development",
			LogLevel:        "info",
			LogFormat:       "console",
			HTTPPort:        8096,
			GRPCPort:        9096,
			ShutdownTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			DeviceName:    "narwhal-player",
			ClientName:    "Narwhal Player",
			ClientVersion: "0.1.0",
			Timeout:       30 * time.Second,
		},
		Playback: PlaybackConfig{
			Target:              string(playback.TargetLocalIOS),
			ResolveTimeout:      5 * time.Second,
			ReportInterval:      10 * time.Second,
			TrickplayThrottle:   200 * time.Millisecond,
			PrefetchConcurrency: 4,
		},
		Downloads: DownloadsConfig{
			Dir:                "downloads",
			SegmentConcurrency: 4,
			SegmentTimeout:     30 * time.Second,
			CancelGrace:        10 * time.Second,
			FFmpegPath:         "ffmpeg",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Path:         "narwhal-player.db",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			MaxLifetime:  time.Hour,
		},
		Events: EventsConfig{
			Backend: "none",
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				ClientID:      ServiceName,
				MaxReconnect:  60,
				ReconnectWait: 2 * time.Second,
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "narwhal.player.downloads",
			},
		},
		Storage: StorageConfig{
			Mirror: "none",
			Region: "us-east-1",
		},
	}
}

// Load reads configuration from defaults, the first config file found and
// the environment, in increasing precedence, then validates it
func Load() (*Config, error) {
	return load(configPaths())
}

func load(paths []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range paths {
		err := loadFile(k, path)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	return k.Load(file.Provider(path), parser)
}

// envKey maps NARWHAL_PLAYER_DOWNLOADS_CANCEL_GRACE to downloads.cancel_grace
// and NARWHAL_PLAYER_EVENTS_NATS_URL to events.nats.url. Comma-separated
// values become lists.
func envKey(name, value string) (string, interface{}) {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(rest, "_")
	if !ok {
		return "", nil
	}
	// events has nested broker sections
	if section == "events" {
		if sub, subField, ok := strings.Cut(field, "_"); ok && (sub == "nats" || sub == "kafka") {
			field = sub + "." + subField
		}
	}
	key := section + "." + field
	if strings.Contains(value, ",") {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// configPaths returns the config files to try, most specific first
func configPaths() []string {
	var paths []string
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		paths = append(paths, p)
	}
	return append(paths,
		fmt.Sprintf("%s.yaml", ServiceName),
		fmt.Sprintf("configs/%s.yaml", ServiceName),
		fmt.Sprintf("configs/%s.json", ServiceName),
	)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return errors.New("service name is required")
	}
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Service.HTTPPort)
	}
	if c.Service.GRPCPort < 0 || c.Service.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Service.GRPCPort)
	}
	if c.Server.URL == "" {
		return errors.New("server url is required")
	}
	if _, err := playback.ParseTarget(c.Playback.Target); err != nil {
		return err
	}
	if c.Playback.MaxBitrate < 0 || c.Downloads.MaxBitrate < 0 {
		return errors.New("max bitrate must not be negative")
	}
	if c.Downloads.Dir == "" {
		return errors.New("downloads dir is required")
	}
	if c.Downloads.WorkDir != "" && filepath.Clean(c.Downloads.WorkDir) == filepath.Clean(c.Downloads.Dir) {
		return errors.New("downloads work dir must differ from downloads dir")
	}
	if c.Downloads.SegmentConcurrency < 1 {
		return fmt.Errorf("invalid segment concurrency: %d", c.Downloads.SegmentConcurrency)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Events.Backend {
	case "none", "db":
	case "nats":
		if c.Events.NATS.URL == "" {
			return errors.New("nats url is required")
		}
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "" {
			return errors.New("kafka brokers and topic are required")
		}
	default:
		return fmt.Errorf("unsupported events backend %q", c.Events.Backend)
	}

	switch c.Storage.Mirror {
	case "none":
	case "local":
		if c.Storage.Path == "" {
			return errors.New("storage path is required for the local mirror")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage bucket is required for the s3 mirror")
		}
	default:
		return fmt.Errorf("unsupported storage mirror %q", c.Storage.Mirror)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production" || c.Service.Environment == "prod"
}
