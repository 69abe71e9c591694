// Package main is the entry point for heating-svc.
//
// heating-svc builds district heating networks from building locations and a
// street graph, solves pipe mass flows for demand snapshots and keeps the
// history of solver runs with downloadable reports.
//
// # Transport
//
// One HTTP listener (HTTP/1.1 and h2c) serves:
//
//	/heatnet.v1.HeatingService/*  Connect RPC with JSON bodies
//	GET /v1/runs/{id}/report       report download, ?format=csv|xlsx|pdf
//	GET /health, GET /ready        liveness and readiness
//	GET /metrics                   Prometheus
//	/swagger/                      OpenAPI document and UI (development)
//
// # Configuration
//
// Priority, highest first:
//  1. Environment variables (prefix HEATNET_, e.g. HEATNET_BUILDER_PRODUCER=index)
//  2. Config file (CONFIG_PATH, config.yaml, config/config.yaml)
//  3. Defaults from pkg/config
//
// The producer selection policy has no default. Either set builder.producer
// or pass options.producer with every BuildNetwork request.
//
// # Dependencies
//
//	PostgreSQL  run history (database.driver=postgres), memory otherwise
//	Redis       flow cache and rate limiting (cache.driver=redis)
//	OTLP        tracing (tracing.enabled=true)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/cache"
	"heatnet/pkg/config"
	"heatnet/pkg/interceptors"
	"heatnet/pkg/logger"
	"heatnet/pkg/metrics"
	"heatnet/pkg/ratelimit"
	"heatnet/pkg/server"
	"heatnet/pkg/telemetry"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/handlers"
	"heatnet/services/heating-svc/internal/hydraulic"
	"heatnet/services/heating-svc/internal/report"
	"heatnet/services/heating-svc/internal/repository"
	"heatnet/services/heating-svc/internal/service"
)

const serviceName = "heating-svc"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.FromConfig(cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("heating-svc failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.App, cfg.Tracing))
	if err != nil {
		logger.Log.Warn("Failed to init telemetry, tracing disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Log.Warn("Failed to shutdown telemetry", "error", err)
			}
		}()
	}

	m := metrics.New(cfg.Metrics.Namespace)
	metrics.SetDefault(m)
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	checks := map[string]server.Checker{}

	// кэш необязателен: без него каждый расчёт выполняется заново
	var flows *cache.FlowCache
	if cfg.Cache.Enabled {
		c, err := cache.New(cache.FromConfig(cfg.Cache))
		if err != nil {
			logger.Log.Warn("Failed to create cache, continuing without cache", "error", err)
		} else {
			defer c.Close()
			flows = cache.NewFlowCache(c, cfg.Solver.CacheTTL)
			checks["cache"] = func(ctx context.Context) error {
				_, err := c.Exists(ctx, "heatnet:ready")
				return err
			}
			logger.Log.Info("Flow cache initialized", "driver", cfg.Cache.Driver, "ttl", cfg.Solver.CacheTTL)
		}
	}

	repo, err := repository.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()
	checks["repository"] = repo.Ping

	auditLog, err := audit.New(cfg.Audit)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ratelimit.FromConfig(cfg.RateLimit, cfg.Cache))
		if err != nil {
			return err
		}
		defer limiter.Close()
	}

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager = auth.FromConfig(cfg.Auth)
	}

	if err := cfg.Builder.Validate(); err != nil {
		logger.Log.Warn("Builder has no producer policy, requests must supply one", "error", err)
	}
	builderCfg := builder.FromConfig(cfg.Builder)

	svc, err := service.New(service.Options{
		Repository:   repo,
		FlowCache:    flows,
		Metrics:      m,
		Solver:       hydraulic.FromConfig(cfg.Solver),
		SolveTimeout: cfg.Solver.Timeout,
		Builder:      builderCfg,
		Report:       report.FromConfig(cfg.Report),
	})
	if err != nil {
		return err
	}

	chain := interceptors.Server(&interceptors.ServerConfig{
		ServiceName:     serviceName,
		EnableTracing:   cfg.Tracing.Enabled,
		Metrics:         m,
		RateLimiter:     limiter,
		KeyExtractor:    ratelimit.ClientKey,
		LimitProcedures: handlers.LimitedProcedures(),
		AuthManager:     authManager,
		AuthPolicy:      handlers.AuthPolicy(),
		AuditLogger:     auditLog,
		AuditActions:    handlers.AuditActions(),
	})

	var metricsHandler *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsHandler = m
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:      svc,
		Builder:      builderCfg,
		Interceptors: chain,
		AuthManager:  authManager,
		AuditLogger:  auditLog,
		ServiceName:  serviceName,
		Version:      cfg.App.Version,
		Metrics:      metricsHandler,
		MetricsPath:  cfg.Metrics.Path,
		ReadyChecks:  checks,
		Swagger:      cfg.IsDevelopment(),
	})

	logger.Log.Info("Starting heating service",
		"port", cfg.HTTP.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
		"database", cfg.Database.Driver,
		"cache_enabled", flows != nil,
		"auth_enabled", authManager != nil,
	)

	return server.New(serviceName, cfg.HTTP, router).Run(ctx)
}
