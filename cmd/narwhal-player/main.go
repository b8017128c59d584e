package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/narwhalmedia/narwhal-player/internal/config"
	downloadinfra "github.com/narwhalmedia/narwhal-player/internal/infrastructure/download"
	grpcinfra "github.com/narwhalmedia/narwhal-player/internal/infrastructure/grpc"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/http/api"
	"github.com/narwhalmedia/narwhal-player/internal/logger"
)

// app is the wired process
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *downloadinfra.Manager
	api     *api.Server
	admin   *grpcinfra.AdminServer
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := initializeApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer cleanup()

	if err := a.run(ctx); err != nil {
		log.Error("application stopped with error", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// run starts the download manager and both listeners, and blocks until
// ctx is cancelled or a listener fails. Shutdown drains the HTTP API,
// ends open playback sessions and stops the manager.
func (a *app) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.manager.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start download manager: %w", err)
	}

	httpAddr := fmt.Sprintf(":%d", a.cfg.Service.HTTPPort)
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		cancel()
		a.manager.Wait()
		return fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
	}
	grpcAddr := fmt.Sprintf(":%d", a.cfg.Service.GRPCPort)
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		httpLis.Close()
		cancel()
		a.manager.Wait()
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	httpServer := &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// event streams end with runCtx
		BaseContext: func(net.Listener) context.Context { return runCtx },
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		a.logger.Info("starting HTTP server", zap.String("addr", httpAddr))
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.admin.Serve(grpcLis); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	a.admin.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down servers...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Service.ShutdownTimeout)
		defer done()

		a.admin.SetServing(false)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP shutdown timed out, closing connections", zap.Error(err))
			_ = httpServer.Close()
		}
		a.api.Shutdown(shutdownCtx)
		a.admin.Stop(shutdownCtx)
		a.manager.Wait()
		return nil
	})

	return g.Wait()
}
