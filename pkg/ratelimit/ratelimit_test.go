package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"heatnet/pkg/config"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cfg *Config) (*MemoryLimiter, *clock) {
	t.Helper()

	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(cfg)
	l.mu.Lock()
	l.now = c.now
	l.mu.Unlock()
	t.Cleanup(func() { _ = l.Close() })
	return l, c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Requests <= 0 {
		t.Error("Requests should be positive")
	}
	if cfg.Window <= 0 {
		t.Error("Window should be positive")
	}
	if cfg.Strategy != StrategySlidingWindow {
		t.Errorf("Strategy = %q, want %q", cfg.Strategy, StrategySlidingWindow)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		Enabled:  true,
		Backend:  BackendRedis,
		Strategy: StrategyTokenBucket,
		Requests: 5,
		Window:   10 * time.Second,
		Burst:    2,
	}, config.CacheConfig{Host: "redis", Port: 6379, DB: 3})

	if cfg.Backend != BackendRedis || cfg.Strategy != StrategyTokenBucket {
		t.Errorf("backend/strategy = %s/%s", cfg.Backend, cfg.Strategy)
	}
	if cfg.Requests != 5 || cfg.Window != 10*time.Second || cfg.BurstSize != 2 {
		t.Errorf("unexpected limits: %+v", cfg)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("redis = %s/%d", cfg.RedisAddr, cfg.RedisDB)
	}
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	l, c := newTestLimiter(t, &Config{Requests: 3, Window: time.Minute, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "client")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		c.advance(10 * time.Second)
	}

	if allowed, _ := l.Allow(ctx, "client"); allowed {
		t.Error("4th request should be denied")
	}
	if allowed, _ := l.Allow(ctx, "other"); !allowed {
		t.Error("keys must be limited independently")
	}

	// первая отметка (t=0) выходит из окна в t=60s
	c.advance(31 * time.Second)
	if allowed, _ := l.Allow(ctx, "client"); !allowed {
		t.Error("request should be allowed after the oldest one left the window")
	}
}

func TestMemoryLimiter_AllowN(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Requests: 10, Window: time.Second, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	if allowed, _ := l.AllowN(ctx, "k", 5); !allowed {
		t.Error("5 requests should be allowed")
	}
	if allowed, _ := l.AllowN(ctx, "k", 6); allowed {
		t.Error("batch over the limit should be denied as a whole")
	}
	if allowed, _ := l.AllowN(ctx, "k", 5); !allowed {
		t.Error("another 5 requests should be allowed")
	}
}

func TestMemoryLimiter_TokenBucket(t *testing.T) {
	l, c := newTestLimiter(t, &Config{Requests: 2, Window: time.Second, Strategy: StrategyTokenBucket, BurstSize: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if allowed, _ := l.Allow(ctx, "k"); !allowed {
			t.Fatalf("request %d should fit into capacity", i+1)
		}
	}
	if allowed, _ := l.Allow(ctx, "k"); allowed {
		t.Error("bucket should be empty")
	}

	info, err := l.GetInfo(ctx, "k")
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.RetryAfter != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 500ms", info.RetryAfter)
	}

	c.advance(500 * time.Millisecond)
	if allowed, _ := l.Allow(ctx, "k"); !allowed {
		t.Error("one token should be refilled after 500ms")
	}
}

func TestMemoryLimiter_GetInfo(t *testing.T) {
	l, c := newTestLimiter(t, &Config{Requests: 2, Window: time.Minute, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	info, err := l.GetInfo(ctx, "k")
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", info.Remaining)
	}

	start := c.now()
	_, _ = l.Allow(ctx, "k")
	c.advance(20 * time.Second)
	_, _ = l.Allow(ctx, "k")

	info, _ = l.GetInfo(ctx, "k")
	if info.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", info.Remaining)
	}
	if !info.ResetAt.Equal(start.Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want %v", info.ResetAt, start.Add(time.Minute))
	}
	if info.RetryAfter != 40*time.Second {
		t.Errorf("RetryAfter = %v, want 40s", info.RetryAfter)
	}
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Requests: 1, Window: time.Minute, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	if allowed, _ := l.Allow(ctx, "k"); allowed {
		t.Fatal("limit should be exhausted")
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if allowed, _ := l.Allow(ctx, "k"); !allowed {
		t.Error("request should be allowed after reset")
	}
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l, c := newTestLimiter(t, &Config{Requests: 1, Window: time.Second, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	c.advance(3 * time.Second)
	l.doCleanup()

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets = %d, want 0", n)
	}
}

func TestMemoryLimiter_Close(t *testing.T) {
	l := NewMemoryLimiter(nil)

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := l.Allow(context.Background(), "k"); err != ErrLimiterClosed {
		t.Errorf("Allow() after Close error = %v, want ErrLimiterClosed", err)
	}
}

func TestNew(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	if _, ok := l.(*MemoryLimiter); !ok {
		t.Errorf("New(nil) = %T, want *MemoryLimiter", l)
	}
}

func TestKeyExtractors(t *testing.T) {
	ctx := context.Background()
	const proc = "/heatnet.v1.HeatingService/Solve"

	tests := []struct {
		name   string
		header http.Header
		peer   string
		want   string
	}{
		{"forwarded chain", http.Header{"X-Forwarded-For": {"10.0.0.1, 10.0.0.2"}}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", http.Header{"X-Real-Ip": {"10.0.0.3"}}, "1.1.1.1:80", "10.0.0.3"},
		{"peer", http.Header{}, "1.1.1.1:80", "1.1.1.1:80"},
		{"unknown", http.Header{}, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientKey(ctx, proc, tt.header, tt.peer); got != tt.want {
				t.Errorf("ClientKey() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := ProcedureKey(ctx, proc, nil, ""); got != proc {
		t.Errorf("ProcedureKey() = %q", got)
	}

	key := Composite(ProcedureKey, ClientKey)(ctx, proc, http.Header{}, "peer")
	if key != proc+":peer" {
		t.Errorf("Composite() = %q", key)
	}
}
