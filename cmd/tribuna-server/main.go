// Package main is the entry point for the Tribuna Storage server.
// Tribuna Storage is the object storage core of the Tribuna legislative
// platform: it serves council documents, activity photos and avatars with
// per-object access control.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/handler"
	"github.com/tribuna-digital/tribuna-storage/internal/lock"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/repository"
	"github.com/tribuna-digital/tribuna-storage/internal/repository/postgres"
	redisrepo "github.com/tribuna-digital/tribuna-storage/internal/repository/redis"
	"github.com/tribuna-digital/tribuna-storage/internal/repository/sqlite"
	"github.com/tribuna-digital/tribuna-storage/internal/service"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
	"github.com/tribuna-digital/tribuna-storage/internal/storage/memory"
	"github.com/tribuna-digital/tribuna-storage/internal/storage/s3"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	setupLogger(cfg.Logging)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting Tribuna Storage server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	records, closeDB, err := newRecordRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	locker, closeLock, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLock()

	m := metrics.New()

	paths := service.NewPathResolver(cfg.Storage.PrivateDir, cfg.PublicSearchPaths(), backend, logger)
	matchers := map[domain.GroupType]domain.GroupMatcher{
		domain.GroupAdminOnly: domain.NewAdminOnlyMatcher(cfg.Auth.AdminIDs),
	}
	acl := service.NewACLService(backend, matchers, m, logger)
	uploads := service.NewUploadService(backend, paths, acl, cfg.Upload, m, logger)
	downloads := service.NewDownloadService(backend, cfg.Download, m, logger)
	diagnostics := service.NewDiagnosticService(records, paths, backend, locker, cfg.Diagnostics, m, logger)

	diagnostics.Start()
	defer diagnostics.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		ObjectHandler:     handler.NewObjectHandler(paths, acl, uploads, downloads, logger),
		DiagnosticHandler: handler.NewDiagnosticHandler(diagnostics, logger),
		Metrics:           metricsIfEnabled(m, cfg.Metrics),
		AdminTokenHash:    cfg.Auth.AdminTokenHash,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat})
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		log.Warn().Msg("using in-memory storage backend, objects will not survive restarts")
		return memory.New(), nil
	default:
		return s3.New(ctx, s3.Config{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
		}, logger)
	}
}

func newRecordRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.FileRecordRepository, func(), error) {
	if cfg.Database.IsEmbedded() {
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:        cfg.Database.Path,
			JournalMode: cfg.Database.JournalMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sqlite.NewFileRecordRepository(db), func() { db.Close() }, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewFileRecordRepository(db), func() { db.Close() }, nil
}

func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func(), error) {
	if !cfg.Redis.Enabled {
		log.Info().Msg("redis disabled, using in-process locks")
		return lock.NewMemoryLocker(), func() {}, nil
	}

	client, err := redisrepo.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	dl := redisrepo.NewDistributedLock(client, logger)
	return lock.NewRedisLocker(dl), func() { client.Close() }, nil
}

func metricsIfEnabled(m *metrics.Metrics, cfg config.MetricsConfig) *metrics.Metrics {
	if !cfg.Enabled {
		return nil
	}
	return m
}
