package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter in-memory реализация rate limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	stopCh  chan struct{}
	closed  bool
	now     func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
	requests  []time.Time // для sliding window
}

// NewMemoryLimiter создаёт in-memory rate limiter
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go l.cleanup(interval)

	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *MemoryLimiter) AllowN(_ context.Context, key string, n int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:    l.capacity(),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	if l.config.Strategy == StrategyTokenBucket {
		return l.allowTokenBucket(b, n, now), nil
	}
	return l.allowSlidingWindow(b, n, now), nil
}

// capacity ёмкость token bucket
func (l *MemoryLimiter) capacity() float64 {
	return float64(l.config.Requests + l.config.BurstSize)
}

func (l *MemoryLimiter) allowTokenBucket(b *bucket, n int, now time.Time) bool {
	elapsed := now.Sub(b.lastCheck)
	b.lastCheck = now

	rate := float64(l.config.Requests) / l.config.Window.Seconds()
	b.tokens = min(b.tokens+elapsed.Seconds()*rate, l.capacity())

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

func (l *MemoryLimiter) allowSlidingWindow(b *bucket, n int, now time.Time) bool {
	b.requests = prune(b.requests, now.Add(-l.config.Window))
	b.lastCheck = now

	if len(b.requests)+n > l.config.Requests {
		return false
	}
	for i := 0; i < n; i++ {
		b.requests = append(b.requests, now)
	}
	return true
}

// prune отбрасывает отметки не позже start. Отметки упорядочены по времени.
func prune(requests []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(start) {
		i++
	}
	return requests[i:]
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

func (l *MemoryLimiter) GetInfo(_ context.Context, key string) (*LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: l.config.Requests,
		ResetAt:   now.Add(l.config.Window),
	}

	b, ok := l.buckets[key]
	if !ok {
		return info, nil
	}

	switch l.config.Strategy {
	case StrategyTokenBucket:
		info.Remaining = int(b.tokens)
		if info.Remaining < 1 {
			rate := float64(l.config.Requests) / l.config.Window.Seconds()
			info.RetryAfter = time.Duration((1 - b.tokens) / rate * float64(time.Second))
			info.ResetAt = now.Add(info.RetryAfter)
		}
	default:
		active := prune(b.requests, now.Add(-l.config.Window))
		info.Remaining = max(l.config.Requests-len(active), 0)
		if len(active) > 0 {
			info.ResetAt = active[0].Add(l.config.Window)
			if info.Remaining == 0 {
				info.RetryAfter = info.ResetAt.Sub(now)
			}
		}
	}
	return info, nil
}

// Close останавливает очистку; повторный вызов безопасен
func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.buckets = nil
	return nil
}

func (l *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.doCleanup()
		}
	}
}

// doCleanup удаляет ключи без активности дольше двух окон
func (l *MemoryLimiter) doCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	horizon := l.now().Add(-2 * l.config.Window)
	for key, b := range l.buckets {
		b.requests = prune(b.requests, horizon)
		if len(b.requests) == 0 && b.lastCheck.Before(horizon) {
			delete(l.buckets, key)
		}
	}
}
