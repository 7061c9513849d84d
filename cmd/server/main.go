package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/auth"
	"github.com/PaulBabatuyi/filesync/internal/config"
	"github.com/PaulBabatuyi/filesync/internal/database"
	"github.com/PaulBabatuyi/filesync/internal/observability"
	"github.com/PaulBabatuyi/filesync/internal/server"
	"github.com/PaulBabatuyi/filesync/internal/service"
	"github.com/PaulBabatuyi/filesync/internal/storage"
	"github.com/PaulBabatuyi/filesync/internal/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.InitLogger(cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.Stringer("config", cfg))

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracerProvider(logger, cfg.TracingEnabled)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
	}()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	blobs, err := storage.NewFilesystemStorage(cfg.UploadDir, logger.Named("storage"),
		storage.WithMaxConcurrentWrites(cfg.MaxConcurrentWrites))
	if err != nil {
		return err
	}

	driver, dsn := cfg.Database()
	db, err := database.Open(ctx, driver, dsn, logger.Named("database"))
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer db.Close()

	users := service.NewAuthService(db, auth.NewDefault(), logger.Named("auth"))
	if err := users.EnsureDefaultUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	files := service.NewFileService(blobs, db, logger.Named("files"),
		service.WithTracer(observability.Tracer(tp)),
		service.WithMetrics(metrics),
		service.WithThumbnailer(worker.NewImageProcessor()),
		service.WithPreviewCache(cfg.PreviewCacheSize, cfg.PreviewCacheTTL),
		service.WithAnonymousDelete(cfg.AllowAnonymousDelete),
	)
	if cfg.AllowAnonymousDelete {
		logger.Warn("anonymous deletes enabled, any caller may delete any file")
	}

	reconciler := worker.NewReconciler(&worker.ReconcilerConfig{
		Blobs:    blobs,
		Records:  db,
		Logger:   logger.Named("reconciler"),
		Metrics:  metrics,
		Interval: cfg.ReconcileInterval,
		Grace:    cfg.OrphanGrace,
	})

	api := server.New(files, users, logger.Named("http"), server.Config{
		UploadDir:      blobs.Root(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Metrics:        metrics,
		Checks:         map[string]server.Pinger{"database": db, "storage": blobs},

		AuthRatePerSecond: cfg.AuthRateLimit,
		AuthRateBurst:     cfg.AuthRateBurst,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return observability.ServeUntilDone(gctx, api.HTTPServer(":"+cfg.Port), "http", logger)
	})
	g.Go(func() error {
		return observability.ServeUntilDone(gctx, observability.NewMetricsServer(":"+cfg.MetricsPort, metrics), "metrics", logger)
	})
	g.Go(func() error {
		reconciler.Start(gctx)
		<-gctx.Done()
		reconciler.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}
