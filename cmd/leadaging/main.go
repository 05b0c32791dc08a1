// Leadaging - Lead lifecycle scoring and aging classification.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/api"
	"github.com/opensource-finance/leadaging/internal/automation"
	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/cache"
	"github.com/opensource-finance/leadaging/internal/config"
	"github.com/opensource-finance/leadaging/internal/domain"
	"github.com/opensource-finance/leadaging/internal/insight"
	"github.com/opensource-finance/leadaging/internal/logging"
	"github.com/opensource-finance/leadaging/internal/report"
	"github.com/opensource-finance/leadaging/internal/repository"
	"github.com/opensource-finance/leadaging/internal/sink"
	"github.com/opensource-finance/leadaging/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (or set "+config.PathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg.Logging))

	slog.Info("starting leadaging",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
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

	if err := run(ctx, cfg); err != nil {
		slog.Error("leadaging stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("leadaging shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Aging rules: seed the global tenant on first start, then load
	if err := seedRules(ctx, repo, cfg.Rules); err != nil {
		return err
	}
	storedRules, err := repo.ListAgingRules(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list aging rules: %w", err)
	}
	registry, err := aging.NewRegistry(storedRules)
	if err != nil {
		return fmt.Errorf("load aging rules: %w", err)
	}
	slog.Info("aging rules loaded",
		"rules_count", registry.Snapshot().Len(),
		"version", registry.Snapshot().Version(),
	)

	analyzer, err := aging.NewAnalyzer(aging.Options{
		MaxWorkers: cfg.Engine.MaxWorkers,
		FailFast:   cfg.Engine.FailFast,
		Actions:    aging.DefaultActionTable().WithOverrides(cfg.Engine.Recommendations),
	})
	if err != nil {
		return fmt.Errorf("initialize analyzer: %w", err)
	}

	// Action policies
	engine, err := automation.NewEngine()
	if err != nil {
		return fmt.Errorf("initialize automation engine: %w", err)
	}
	defer engine.Close()

	if err := seedPolicies(ctx, repo, cfg.Policies); err != nil {
		return err
	}
	storedPolicies, err := repo.ListActionPolicies(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list action policies: %w", err)
	}
	if err := engine.LoadPolicies(storedPolicies); err != nil {
		return fmt.Errorf("load action policies: %w", err)
	}
	slog.Info("automation engine initialized", "policies_count", engine.PoliciesCount())

	exportSink := sink.New(cfg.Export)
	defer exportSink.Close()
	if cfg.Export.Kafka.Enabled {
		slog.Info("kafka export enabled",
			"brokers", cfg.Export.Kafka.Brokers,
			"topic", cfg.Export.Kafka.Topic,
		)
	}

	var generator domain.InsightGenerator
	if cfg.Insight.Enabled {
		generator = insight.NewChatClient(cfg.Insight)
		slog.Info("insight generator enabled", "model", cfg.Insight.Model)
	}
	insights := insight.NewService(generator, cacheImpl, cfg.Insight, slog.Default())

	pipeline := worker.NewPipeline(worker.Dependencies{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Registry:   registry,
		Analyzer:   analyzer,
		Automation: engine,
		Reports:    report.NewBuilder(cfg.Engine.UrgentLeads),
		Sink:       exportSink,
		CacheTTL:   cfg.Cache.AnalysisTTL,
	})

	// Background workers consume requests and lead upserts for every tenant
	bgWorker := worker.NewWorker(busImpl, pipeline)
	if err := bgWorker.Start(worker.Config{}); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	defer func() {
		if err := bgWorker.Stop(); err != nil {
			slog.Error("failed to stop workers", "error", err)
		}
	}()

	if cfg.Schedule.Enabled {
		scheduler := worker.NewScheduler(busImpl, cfg.Schedule)
		scheduler.Start(ctx)
		defer scheduler.Stop()
		slog.Info("recomputation scheduled",
			"interval", cfg.Schedule.Interval.String(),
			"tenants", cfg.Schedule.TenantIDs,
		)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Registry:   registry,
		Analyzer:   analyzer,
		Automation: engine,
		Pipeline:   pipeline,
		Insights:   insights,
		CacheTTL:   cfg.Cache.AnalysisTTL,
		Version:    Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("leadaging is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// seedRules stores the configured rule table, or the default one, when
// the global tenant has no active rules yet.
func seedRules(ctx context.Context, repo domain.Repository, configured []*domain.AgingRule) error {
	existing, err := repo.ListAgingRules(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list aging rules: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	rules := configured
	source := "config"
	if len(rules) == 0 {
		rules = aging.DefaultRules()
		source = "defaults"
	}

	// Refuse to persist a table that could never load
	if _, err := aging.NewRuleSet(rules); err != nil {
		return fmt.Errorf("seed aging rules from %s: %w", source, err)
	}

	for _, r := range rules {
		r.TenantID = api.GlobalTenantID
		if err := repo.SaveAgingRule(ctx, api.GlobalTenantID, r); err != nil {
			return fmt.Errorf("seed aging rule %s: %w", r.ID, err)
		}
	}

	slog.Info("aging rules seeded", "source", source, "count", len(rules))
	return nil
}

// seedPolicies stores configured action policies when none exist yet.
func seedPolicies(ctx context.Context, repo domain.Repository, configured []*domain.ActionPolicy) error {
	if len(configured) == 0 {
		return nil
	}

	existing, err := repo.ListActionPolicies(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list action policies: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range configured {
		p.TenantID = api.GlobalTenantID
		if err := repo.SaveActionPolicy(ctx, api.GlobalTenantID, p); err != nil {
			return fmt.Errorf("seed action policy %s: %w", p.ID, err)
		}
	}

	slog.Info("action policies seeded", "count", len(configured))
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔════════════════════════════════════════════╗")
	fmt.Println("  ║                 LEADAGING                  ║")
	fmt.Println("  ║   Lead Lifecycle Scoring & Aging Engine    ║")
	fmt.Println("  ╚════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /analyze                - Analyse posted leads (stateless)")
	fmt.Println("    POST   /analysis/run           - Analyse stored open leads")
	fmt.Println("    GET    /reports/{id}           - Get an aging report")
	fmt.Println("    GET    /leads                  - List leads")
	fmt.Println("    POST   /leads                  - Create or update a lead")
	fmt.Println("    GET    /leads/{id}/analysis    - Latest analysis of a lead")
	fmt.Println("    POST   /leads/{id}/insights    - Narrative insights for a lead")
	fmt.Println("    GET    /rules                  - List live aging rules")
	fmt.Println("    POST   /rules                  - Save an aging rule")
	fmt.Println("    POST   /rules/reload           - Hot-reload aging rules")
	fmt.Println("    GET    /policies               - List action policies")
	fmt.Println("    POST   /policies/reload        - Hot-reload action policies")
	fmt.Println("    GET    /health                 - Health check")
	fmt.Println()
}
