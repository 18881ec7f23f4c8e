// Package main is the entry point for the Tribuna Storage admin CLI.
// It runs storage diagnostics and cleanup against the same configuration
// the server uses, without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/lock"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/repository"
	"github.com/tribuna-digital/tribuna-storage/internal/repository/postgres"
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Tribuna Storage Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "diagnose":
		runDiagnose(os.Args[2:])

	case "report":
		runReport(os.Args[2:])

	case "cleanup":
		runCleanup(os.Args[2:])

	case "migrate-paths":
		runMigratePaths(os.Args[2:])

	case "hash-token":
		runHashToken(os.Args[2:])

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Tribuna Storage Admin CLI

Usage:
  tribuna-admin <command> [arguments]

Commands:
  diagnose      Scan stored file references against object storage
  report        Print an aggregate storage health report
  cleanup       Clear references to missing objects (--dry-run to preview)
  migrate-paths Rewrite legacy upload paths to object storage paths
  hash-token    Produce the bcrypt hash for an admin API token
  version       Print version information
  help          Show this help message

Examples:
  tribuna-admin diagnose --config config.yaml
  tribuna-admin cleanup --config config.yaml --dry-run
  tribuna-admin migrate-paths --config config.yaml --dry-run
  tribuna-admin hash-token --token s3cret`)
}

func runDiagnose(args []string) {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	ctx, svc, cleanup := buildDiagnostics(*configPath)
	defer cleanup()

	results, err := svc.Diagnose(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(results)
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	ctx, svc, cleanup := buildDiagnostics(*configPath)
	defer cleanup()

	report, err := svc.HealthReport(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(report)
}

func runCleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dryRun := fs.Bool("dry-run", false, "preview changes without modifying records")
	fs.Parse(args)

	ctx, svc, cleanup := buildDiagnostics(*configPath)
	defer cleanup()

	report, err := svc.Cleanup(ctx, *dryRun)
	if err != nil {
		fatal(err)
	}
	printJSON(report)
}

func runMigratePaths(args []string) {
	fs := flag.NewFlagSet("migrate-paths", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dryRun := fs.Bool("dry-run", false, "preview rewrites without modifying records")
	fs.Parse(args)

	ctx, svc, cleanup := buildDiagnostics(*configPath)
	defer cleanup()

	report, err := svc.MigratePaths(ctx, *dryRun)
	if err != nil {
		fatal(err)
	}
	printJSON(report)
}

func runHashToken(args []string) {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	token := fs.String("token", "", "token to hash")
	fs.Parse(args)

	if *token == "" {
		fatal(fmt.Errorf("--token is required"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*token), bcrypt.DefaultCost)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(hash))
}

// buildDiagnostics assembles a DiagnosticService from the config file.
// The CLI is a single process, so locking is a no-op; a concurrent server
// scan is acceptable because scans are read-only and cleanup is idempotent.
func buildDiagnostics(configPath string) (context.Context, *service.DiagnosticService, func()) {
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	cfg := config.MustLoad(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		cancel()
		fatal(err)
	}

	records, closeDB, err := newRecordRepository(ctx, cfg, logger)
	if err != nil {
		cancel()
		fatal(err)
	}

	paths := service.NewPathResolver(cfg.Storage.PrivateDir, cfg.PublicSearchPaths(), backend, logger)
	svc := service.NewDiagnosticService(
		records, paths, backend, lock.NewNoopLocker(), cfg.Diagnostics, metrics.New(), logger,
	)

	return ctx, svc, func() {
		closeDB()
		cancel()
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Backend, error) {
	if cfg.Storage.Backend == "memory" {
		return memory.New(), nil
	}
	return s3.New(ctx, s3.Config{
		Endpoint:        cfg.Storage.S3.Endpoint,
		Region:          cfg.Storage.S3.Region,
		AccessKeyID:     cfg.Storage.S3.AccessKeyID,
		SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		UsePathStyle:    cfg.Storage.S3.UsePathStyle,
	}, logger)
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

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}
