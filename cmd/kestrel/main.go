// Kestrel - Claim fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.health
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-health/kestrel/internal/api"
	"github.com/opensource-health/kestrel/internal/bus"
	"github.com/opensource-health/kestrel/internal/cache"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/model"
	"github.com/opensource-health/kestrel/internal/provider"
	"github.com/opensource-health/kestrel/internal/repository"
	"github.com/opensource-health/kestrel/internal/screen"
	"github.com/opensource-health/kestrel/internal/scoring"
	"github.com/opensource-health/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if path := os.Getenv("KESTREL_MODEL_PATH"); path != "" {
		cfg.Model.BundlePath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_bundle", cfg.Model.BundlePath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Provider history service
	providers := provider.NewService(repo, cacheImpl)
	slog.Info("provider service initialized")

	// Initialize Screening Engine
	screener, err := screen.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}

	// Load screening rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, screener); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screener.RuleCount())

	// Initialize Scorer and load the model bundle.
	// A missing bundle is a degraded start: /score returns 503 until a
	// bundle is available and the process is restarted.
	scorer := scoring.NewScorer(screener)
	bundle, err := model.LoadBundle(cfg.Model.BundlePath)
	if err != nil {
		slog.Warn("model bundle not loaded - scoring unavailable",
			"path", cfg.Model.BundlePath,
			"error", err,
		)
	} else {
		scorer.SetArtifacts(bundle.Classifier, bundle.Encoders, bundle.Version)
		slog.Info("model bundle loaded",
			"model_version", bundle.Version,
			"trained_at", bundle.TrainedAt,
		)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, scorer, providers)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, scorer, screener, providers, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", scorer.Ready(),
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads screening rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *screen.Engine) error {
	dbRules, err := repo.ListScreenRules(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no screening rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║       Claim Fraud Scoring Engine          ║")
	fmt.Println("  ║        Eyes on every claim.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                - Score a claim")
	fmt.Println("    POST /claims               - Enqueue a claim for async scoring")
	fmt.Println("    GET  /assessments/{id}     - Get assessment by ID")
	fmt.Println("    GET  /claims/{id}          - Get claim by ID")
	fmt.Println("    GET  /model                - Model artifact information")
	fmt.Println("    GET  /providers/{id}/stats - Provider history counters")
	fmt.Println("    GET  /rules                - List screening rules")
	fmt.Println("    POST /rules                - Create a screening rule")
	fmt.Println("    POST /rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println("    GET  /ready                - Readiness (model loaded)")
	fmt.Println()
}
