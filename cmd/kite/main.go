// Kite - Adaptive transaction risk scoring for payment flows.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruralpay/kite/internal/adaptive"
	"github.com/ruralpay/kite/internal/api"
	"github.com/ruralpay/kite/internal/assess"
	"github.com/ruralpay/kite/internal/audit"
	"github.com/ruralpay/kite/internal/behavior"
	"github.com/ruralpay/kite/internal/bus"
	"github.com/ruralpay/kite/internal/cache"
	"github.com/ruralpay/kite/internal/domain"
	"github.com/ruralpay/kite/internal/model"
	"github.com/ruralpay/kite/internal/profile"
	"github.com/ruralpay/kite/internal/repository"
	"github.com/ruralpay/kite/internal/rules"
	"github.com/ruralpay/kite/internal/worker"
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
	if os.Getenv("KITE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kite",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KITE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Profile Store, seeded from persisted snapshots
	profiles := profile.NewMemoryStore()
	if snapshots, err := repo.LoadProfiles(ctx); err != nil {
		slog.Warn("failed to load profile snapshots", "error", err)
	} else if len(snapshots) > 0 {
		profiles.Seed(snapshots)
		slog.Info("profiles seeded from snapshots", "count", len(snapshots))
	}

	// Initialize Custom Rule Engine and load persisted rules
	customEngine, err := rules.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadCustomRules(ctx, repo, customEngine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", customEngine.RulesCount())

	// Velocity counting rides on the cache's windowed counters
	velocityGetter := func(ctx context.Context, userID string, window time.Duration) (int64, error) {
		return cacheImpl.IncrementCounter(ctx, "velocity:"+userID, window)
	}

	// Initialize Rule Engine
	ruleEngine := rules.NewEngine(cfg.Rules, velocityGetter, customEngine)
	slog.Info("rule engine initialized")

	// Initialize Model Scorer
	var modelScorer model.Scorer
	switch cfg.Model.Mode {
	case "remote":
		modelScorer = model.NewRemoteScorer(cfg.Model.Endpoint, cfg.Model.Timeout)
		slog.Info("remote model scorer initialized", "endpoint", cfg.Model.Endpoint)
	default:
		modelScorer = model.NewFallbackScorer()
		slog.Info("fallback model scorer initialized")
	}

	// Initialize Audit Sinks
	auditSink := audit.NewMultiSink(
		audit.NewLogSink(logger),
		audit.NewBusSink(busImpl),
	)

	// Initialize Assessor
	assessor := assess.NewAssessor(profiles, ruleEngine, behavior.NewScorer(), modelScorer,
		assess.WithAudit(auditSink),
		assess.WithRepository(repo),
		assess.WithCache(cacheImpl),
		assess.WithBus(busImpl),
	)
	slog.Info("assessor initialized")

	// Initialize Adaptive Auth Selector
	selector := adaptive.NewSelector(auditSink)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KITE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, assessor)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, assessor, selector, profiles, repo, cacheImpl, busImpl, customEngine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kite is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
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

	slog.Info("kite shutdown complete")
}

// loadCustomRules loads persisted custom rules into the engine.
// Rules are configured via POST /rules; a missing table is not fatal.
func loadCustomRules(ctx context.Context, repo domain.Repository, engine *rules.CustomEngine) error {
	dbRules, err := repo.ListCustomRules(ctx)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with the built-in rule table only
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KITE - Adaptive transaction risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess            - Score a transaction synchronously")
	fmt.Println("    POST /transactions      - Queue a transaction for async scoring")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /decisions         - List decisions for a user")
	fmt.Println("    GET  /decisions/{id}    - Get decision by ID")
	fmt.Println("    GET  /profiles/{id}     - Get a user's behavior profile")
	fmt.Println("    POST /auth/level        - Select required auth level")
	fmt.Println("    POST /auth/attempts     - Report an auth attempt outcome")
	fmt.Println("    GET  /rules             - List custom rules")
	fmt.Println("    POST /rules             - Create a custom rule")
	fmt.Println("    POST /rules/reload      - Hot-reload custom rules")
	fmt.Println("    GET  /stats             - Decision statistics")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
