package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/analyzer"
	"github.com/gbechtold/clawbot-dsgvo/internal/anonymizer"
	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/cache"
	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/events"
	"github.com/gbechtold/clawbot-dsgvo/internal/export"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/pipeline"
	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
	"github.com/gbechtold/clawbot-dsgvo/internal/server"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
	"github.com/gbechtold/clawbot-dsgvo/internal/vault"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ClawBot %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ClawBot",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port))

	db, err := store.New(cfg.Database, log.WithComponent("store"))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize database schema", zap.Error(err))
	}

	var mappingCache vault.Cache
	if cfg.Cache.Enabled {
		pseudonymCache, err := cache.New(cfg.Cache, log.WithComponent("cache"))
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer pseudonymCache.Close()
		mappingCache = pseudonymCache
	}

	keys, err := vault.NewStaticKeyProvider(cfg.Vault.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid vault encryption key", zap.Error(err))
	}

	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
	if err != nil {
		log.Fatal("Failed to create PII detector", zap.Error(err))
	}

	pseudonymVault := vault.New(db, mappingCache, keys, log.WithComponent("vault"))
	anon := anonymizer.New(pseudonymVault, log.WithComponent("anonymizer"))
	ledger := audit.New(db, log.WithComponent("audit"))
	analysisClient := analyzer.NewClient(cfg.Analyzer, log.WithComponent("analyzer"))
	hub := events.NewHub(cfg.Events, log)
	orchestrator := pipeline.New(detector, anon, analysisClient, db, ledger, hub, log)
	exporter := export.New(db, ledger, log)

	srv := server.New(cfg, server.Deps{
		Ingester: orchestrator,
		Signals:  db,
		Ledger:   ledger,
		Eraser:   pseudonymVault,
		Exporter: exporter,
		DB:       db,
		Analyzer: analysisClient,
		Hub:      hub,
	}, log)

	if err := config.Watch(cfg, func(updated *config.Config) {
		log.Info("Configuration reloaded", zap.String("locale", updated.Privacy.Locale))
	}); err != nil {
		log.Warn("Configuration watch unavailable", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck probes a locally running instance.
func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
