//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/config"
	persistence "github.com/narwhalmedia/narwhal-player/internal/infrastructure/persistence/gorm"
)

func initializeApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, func(), error) {
	wire.Build(
		// Persistence
		provideDB,
		persistence.NewOfflineRepository,
		persistence.NewEventStore,
		providePublisher,

		// Media server
		provideJellyfin,
		provideProfile,
		provideResolver,
		provideTrickplay,

		// Downloads
		provideDownloader,
		provideRemuxer,
		providePipeline,
		provideMirror,
		provideManager,

		// Transports
		provideAPI,
		provideAdmin,

		wire.Struct(new(app), "*"),
	)
	return nil, nil, nil
}
