package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/narwhalmedia/narwhal-player/internal/config"
	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	downloadinfra "github.com/narwhalmedia/narwhal-player/internal/infrastructure/download"
	eventsinfra "github.com/narwhalmedia/narwhal-player/internal/infrastructure/events"
	kafkaevents "github.com/narwhalmedia/narwhal-player/internal/infrastructure/events/kafka"
	natsevents "github.com/narwhalmedia/narwhal-player/internal/infrastructure/events/nats"
	grpcinfra "github.com/narwhalmedia/narwhal-player/internal/infrastructure/grpc"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/http/api"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/jellyfin"
	persistence "github.com/narwhalmedia/narwhal-player/internal/infrastructure/persistence/gorm"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/remux"
	playbackapp "github.com/narwhalmedia/narwhal-player/internal/playback"
	"github.com/narwhalmedia/narwhal-player/internal/trickplay"
)

func provideDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	return persistence.NewDB(cfg.Database, !cfg.IsProduction() && cfg.Service.LogLevel == "debug", logger)
}

// providePublisher picks where job events go. The database journal is
// kept for every backend except none so job history stays queryable.
func providePublisher(ctx context.Context, cfg *config.Config, journal *persistence.EventStore, logger *zap.Logger) (domainevents.EventPublisher, func(), error) {
	switch cfg.Events.Backend {
	case "db":
		return journal, func() {}, nil
	case "nats":
		client, cleanup, err := natsevents.NewClient(ctx, cfg.Events.NATS, logger)
		if err != nil {
			return nil, nil, err
		}
		return eventsinfra.NewDispatcher(journal, natsevents.NewPublisher(client, logger)), cleanup, nil
	case "kafka":
		publisher, err := kafkaevents.NewPublisher(cfg.Events.Kafka, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close kafka producer", zap.Error(err))
			}
		}
		return eventsinfra.NewDispatcher(journal, publisher), cleanup, nil
	default:
		return domainevents.NoopPublisher{}, func() {}, nil
	}
}

func provideJellyfin(cfg *config.Config, logger *zap.Logger) (*jellyfin.Client, error) {
	return jellyfin.NewClient(jellyfin.Config{
		ServerURL:     cfg.Server.URL,
		AccessToken:   cfg.Server.AccessToken,
		UserID:        cfg.Server.UserID,
		DeviceID:      cfg.Server.DeviceID,
		DeviceName:    cfg.Server.DeviceName,
		ClientName:    cfg.Server.ClientName,
		ClientVersion: cfg.Server.ClientVersion,
		Timeout:       cfg.Server.Timeout,
	}, logger)
}

func provideProfile(cfg *config.Config) (playback.CapabilityProfile, error) {
	target, err := playback.ParseTarget(cfg.Playback.Target)
	if err != nil {
		return playback.CapabilityProfile{}, err
	}
	return playback.ProfileFor(target)
}

func provideResolver(cfg *config.Config, client *jellyfin.Client, logger *zap.Logger) *playbackapp.Resolver {
	return playbackapp.NewResolver(client, client.Credentials(), cfg.Playback.ResolveTimeout, logger)
}

func provideTrickplay(cfg *config.Config, client *jellyfin.Client, logger *zap.Logger) *trickplay.Index {
	return trickplay.NewIndex(client, trickplay.NewHTTPPrefetcher(client),
		cfg.Playback.TrickplayThrottle, cfg.Playback.PrefetchConcurrency, logger)
}

func provideDownloader(client *jellyfin.Client, logger *zap.Logger) *downloadinfra.HTTPDownloader {
	return downloadinfra.NewHTTPDownloader(client.HTTPClient(), logger)
}

func provideRemuxer(cfg *config.Config, logger *zap.Logger) (*remux.FFmpegRemuxer, error) {
	return remux.NewFFmpegRemuxer(cfg.Downloads.FFmpegPath, logger)
}

func providePipeline(cfg *config.Config, client *jellyfin.Client, remuxer *remux.FFmpegRemuxer, logger *zap.Logger) *downloadinfra.RemuxPipeline {
	return downloadinfra.NewRemuxPipeline(client, remuxer, downloadinfra.PipelineConfig{
		SegmentConcurrency: cfg.Downloads.SegmentConcurrency,
		SegmentTimeout:     cfg.Downloads.SegmentTimeout,
	}, logger)
}

func provideMirror(ctx context.Context, cfg *config.Config, logger *zap.Logger) (download.Mirror, error) {
	switch cfg.Storage.Mirror {
	case "local":
		storage, err := remux.NewLocalStorage(cfg.Storage.Path, logger)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "s3":
		storage, err := remux.NewS3Storage(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.Region, logger)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage mirror %q", cfg.Storage.Mirror)
	}
}

func provideManager(
	cfg *config.Config,
	profile playback.CapabilityProfile,
	repo *persistence.OfflineRepository,
	downloader *downloadinfra.HTTPDownloader,
	pipeline *downloadinfra.RemuxPipeline,
	resolver *playbackapp.Resolver,
	client *jellyfin.Client,
	mirror download.Mirror,
	publisher domainevents.EventPublisher,
	logger *zap.Logger,
) *downloadinfra.Manager {
	return downloadinfra.NewManager(downloadinfra.Config{
		Dir:         cfg.Downloads.Dir,
		WorkDir:     cfg.Downloads.WorkDir,
		CancelGrace: cfg.Downloads.CancelGrace,
		Profile:     profile,
		UserID:      cfg.Server.UserID,
		MaxBitrate:  cfg.Downloads.MaxBitrate,
	}, repo, downloader, pipeline, resolver, client, mirror, publisher, logger)
}

func provideAPI(
	cfg *config.Config,
	profile playback.CapabilityProfile,
	db *gorm.DB,
	manager *downloadinfra.Manager,
	client *jellyfin.Client,
	resolver *playbackapp.Resolver,
	index *trickplay.Index,
	journal *persistence.EventStore,
	logger *zap.Logger,
) *api.Server {
	return api.NewServer(api.Deps{
		Downloads:  manager,
		Items:      client,
		Resolver:   resolver,
		Sessions:   client,
		Trickplay:  index,
		History:    journal,
		Target:     profile.Target,
		MaxBitrate: cfg.Playback.MaxBitrate,
		Reporter: playbackapp.ReporterConfig{
			Interval: cfg.Playback.ReportInterval,
			Timeout:  cfg.Server.Timeout,
			Offline:  cfg.Playback.Offline,
		},
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}, logger)
}

func provideAdmin(cfg *config.Config, logger *zap.Logger) *grpcinfra.AdminServer {
	return grpcinfra.NewAdminServer(cfg.Service.Name, logger)
}
