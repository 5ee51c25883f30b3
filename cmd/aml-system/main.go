package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mrh-2003/aml-system/internal/api"
	"github.com/mrh-2003/aml-system/internal/bus"
	"github.com/mrh-2003/aml-system/internal/cache"
	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/ingest"
	"github.com/mrh-2003/aml-system/internal/report"
	"github.com/mrh-2003/aml-system/internal/repository"
	"github.com/mrh-2003/aml-system/internal/rules"
	"github.com/mrh-2003/aml-system/internal/scope"
	"github.com/mrh-2003/aml-system/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("AML_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting aml-system",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("AML_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	if err := engine.LoadAll(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load builtin rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.Count())

	scopeSvc := scope.NewService(repo, cacheImpl, cfg.Cache.LocalTTL)
	reports := report.NewService(repo, busImpl)
	loader := ingest.NewLoader(repo, busImpl)

	auditWorker := worker.NewWorker(busImpl, repo)
	if err := auditWorker.Start(); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}
	slog.Info("audit worker started")

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, scopeSvc, reports, loader, engine, cfg.Detection, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("aml-system is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("aml-system shutdown complete")
}

// applyEnvOverrides layers per-deployment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("AML_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AML_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("AML_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("AML_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("AML_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("AML_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ===========================================")
	fmt.Println("                AML-SYSTEM")
	fmt.Println("       Ledger Pattern Analysis Engine")
	fmt.Println("  ===========================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /loads                           - Ingest a ledger workbook")
	fmt.Println("    GET  /loads                           - List loads")
	fmt.Println("    GET  /clients?load={code}             - List clients in a load")
	fmt.Println("    POST /cases                           - Create a case")
	fmt.Println("    GET  /cases                           - List cases")
	fmt.Println("    POST /cases/{id}/analyses/{detector}  - Run a detector")
	fmt.Println("    POST /cases/{id}/screen               - Ad-hoc CEL screening")
	fmt.Println("    POST /cases/{id}/report-marks         - Mark a finding for the report")
	fmt.Println("    POST /cases/{id}/report               - Generate the executive PDF")
	fmt.Println("    GET  /rules                           - List screening rules")
	fmt.Println("    POST /rules                           - Load a screening rule")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println()
}
