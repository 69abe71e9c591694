// Package interceptors содержит серверные интерсепторы Connect: логирование,
// восстановление после паники, трейсинг, метрики, аудит, ограничение
// частоты, проверку токенов, валидацию и преобразование ошибок.
package interceptors

import (
	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/metrics"
	"heatnet/pkg/ratelimit"
	"heatnet/pkg/telemetry"
)

// ServerConfig конфигурация цепочки серверных интерсепторов. Нулевые поля
// отключают соответствующий интерсептор.
type ServerConfig struct {
	ServiceName   string
	EnableTracing bool
	Metrics       *metrics.Metrics

	RateLimiter     ratelimit.Limiter
	KeyExtractor    ratelimit.KeyExtractor
	LimitProcedures []string
	AuthManager     *auth.Manager
	AuthPolicy      AuthPolicy
	AuditLogger     audit.Logger
	AuditActions    map[string]audit.Action
	Validator       *validator.Validate
}

// Server возвращает интерсепторы в порядке от внешнего к внутреннему для
// connect.WithInterceptors
func Server(cfg *ServerConfig) []connect.Interceptor {
	chain := []connect.Interceptor{
		Logging(),
		Recovery(),
	}

	if cfg.EnableTracing {
		chain = append(chain, telemetry.UnaryInterceptor())
	}

	chain = append(chain, Metrics(cfg.Metrics))

	// аудит снаружи лимитов и авторизации, чтобы видеть отказы
	if cfg.AuditLogger != nil {
		chain = append(chain, Audit(AuditConfig{
			Service: cfg.ServiceName,
			Logger:  cfg.AuditLogger,
			Actions: cfg.AuditActions,
		}))
	}

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimit(cfg.RateLimiter, cfg.KeyExtractor, cfg.LimitProcedures...))
	}

	if cfg.AuthManager != nil {
		chain = append(chain, Auth(cfg.AuthManager, cfg.AuthPolicy))
	}

	return append(chain, Validation(cfg.Validator), Errors())
}
