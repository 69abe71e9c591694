// Package ratelimit ограничивает частоту вызовов по ключу клиента.
// Реализации: in-memory (скользящее окно или token bucket) и Redis
// (скользящее окно на sorted set).
package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"heatnet/pkg/config"
)

// Стратегии in-memory лимитера
const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Хранилища состояния лимитов
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrLimiterClosed лимитер закрыт
var ErrLimiterClosed = errors.New("limiter is closed")

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос, и учитывает его
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	Close() error
}

// LimitInfo информация о состоянии лимита
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config конфигурация лимитера
type Config struct {
	Requests        int
	Window          time.Duration
	Strategy        string
	BurstSize       int // только token_bucket
	CleanupInterval time.Duration
	Backend         string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Requests:        60,
		Window:          time.Minute,
		Strategy:        StrategySlidingWindow,
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
		Backend:         BackendMemory,
	}
}

// FromConfig собирает конфигурацию из секций ratelimit и cache
func FromConfig(rl config.RateLimitConfig, c config.CacheConfig) *Config {
	cfg := DefaultConfig()
	cfg.Backend = rl.Backend
	cfg.Strategy = rl.Strategy
	if rl.Requests > 0 {
		cfg.Requests = rl.Requests
	}
	if rl.Window > 0 {
		cfg.Window = rl.Window
	}
	cfg.BurstSize = rl.Burst
	cfg.RedisAddr = c.Address()
	cfg.RedisPassword = c.Password
	cfg.RedisDB = c.DB
	return cfg
}

// New создаёт лимитер на основе конфигурации
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Backend == BackendRedis {
		return NewRedisLimiter(cfg)
	}
	return NewMemoryLimiter(cfg), nil
}

// KeyExtractor возвращает ключ лимита для вызова процедуры
type KeyExtractor func(ctx context.Context, procedure string, header http.Header, peer string) string

// ClientKey ключ по адресу клиента: X-Forwarded-For, X-Real-IP, адрес peer
func ClientKey(_ context.Context, _ string, header http.Header, peer string) string {
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if peer != "" {
		return peer
	}
	return "unknown"
}

// ProcedureKey ключ по процедуре: общий лимит для всех клиентов
func ProcedureKey(_ context.Context, procedure string, _ http.Header, _ string) string {
	return procedure
}

// Composite объединяет несколько ключей через ":"
func Composite(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, procedure string, header http.Header, peer string) string {
		parts := make([]string, len(extractors))
		for i, ext := range extractors {
			parts[i] = ext(ctx, procedure, header, peer)
		}
		return strings.Join(parts, ":")
	}
}
