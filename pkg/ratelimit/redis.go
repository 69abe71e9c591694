package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "heatnet:ratelimit:"

func redisKey(key string) string { return redisKeyPrefix + key }

// slidingWindow атомарно чистит окно, считает запросы и добавляет новые.
// Возвращает {разрешено, осталось}.
var slidingWindow = redis.NewScript(`
local limit, window, now, n = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local used = redis.call('ZCARD', KEYS[1])
if used + n > limit then
	return {0, limit - used}
end

for i = 1, n do
	redis.call('ZADD', KEYS[1], now, ARGV[5] .. ':' .. i)
end
redis.call('PEXPIRE', KEYS[1], window + 1000)
return {1, limit - used - n}
`)

// RedisLimiter скользящее окно в Redis, общее для всех реплик сервиса
type RedisLimiter struct {
	client redis.UniversalClient
	config *Config
}

// NewRedisLimiter подключается к Redis и проверяет соединение
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
	}

	return NewRedisLimiterWithClient(client, cfg), nil
}

// NewRedisLimiterWithClient использует готовый клиент
func NewRedisLimiterWithClient(client redis.UniversalClient, cfg *Config) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{client: client, config: cfg}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	// уникальный член на запрос: одинаковые члены в ZSET схлопываются
	member := uuid.NewString()
	res, err := slidingWindow.Run(ctx, l.client, []string{redisKey(key)},
		l.config.Requests, l.config.Window.Milliseconds(), time.Now().UnixMilli(), n, member).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	return res[0] == 1, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, redisKey(key)).Err()
}

func (l *RedisLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	now := time.Now()
	since := "(" + strconv.FormatInt(now.Add(-l.config.Window).UnixMilli(), 10)

	used, err := l.client.ZCount(ctx, redisKey(key), since, "+inf").Result()
	if err != nil {
		return nil, err
	}

	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: max(l.config.Requests-int(used), 0),
		ResetAt:   now.Add(l.config.Window),
	}
	if info.Remaining == 0 {
		info.RetryAfter = l.config.Window
	}
	return info, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
