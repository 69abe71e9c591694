package handlers

import (
	"net/http"

	"connectrpc.com/connect"

	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/heatingv1"
	"heatnet/pkg/metrics"
	"heatnet/pkg/server"
	"heatnet/pkg/swagger"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/service"
)

// RouterConfig зависимости HTTP-маршрутов сервиса
type RouterConfig struct {
	Service      *service.HeatingService
	Builder      builder.Config
	Interceptors []connect.Interceptor

	// AuthManager и AuditLogger для выгрузки отчётов; RPC закрываются
	// интерсепторами
	AuthManager *auth.Manager
	AuditLogger audit.Logger

	ServiceName string
	Version     string

	// Metrics nil = без /metrics
	Metrics     *metrics.Metrics
	MetricsPath string

	ReadyChecks map[string]server.Checker

	// Swagger включает /swagger/ со встроенным описанием API
	Swagger bool
}

// NewRouter собирает mux: RPC, отчёты, health, ready, metrics, swagger
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	path, rpc := heatingv1.NewHeatingServiceHandler(
		NewHeatingHandler(cfg.Service, cfg.Builder),
		connect.WithInterceptors(cfg.Interceptors...),
	)
	mux.Handle(path, rpc)

	mux.Handle(ReportPath, NewReportHandler(cfg.Service, cfg.AuthManager, cfg.AuditLogger, cfg.ServiceName))

	mux.HandleFunc("GET /health", server.HealthHandler(cfg.ServiceName, cfg.Version))

	checks := cfg.ReadyChecks
	if checks == nil {
		checks = map[string]server.Checker{"repository": cfg.Service.Ping}
	}
	mux.HandleFunc("GET /ready", server.ReadyHandler(checks))

	if cfg.Metrics != nil {
		metricsPath := cfg.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		mux.Handle("GET "+metricsPath, cfg.Metrics.Handler())
	}

	if cfg.Swagger {
		swagger.Mount(mux, swagger.Options{})
	}

	return mux
}
