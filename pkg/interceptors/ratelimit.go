package interceptors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"connectrpc.com/connect"

	"heatnet/pkg/logger"
	"heatnet/pkg/ratelimit"
)

// RateLimit ограничивает частоту вызовов перечисленных процедур; без списка
// ограничиваются все. Ошибка хранилища лимитов запрос не блокирует.
func RateLimit(limiter ratelimit.Limiter, keys ratelimit.KeyExtractor, procedures ...string) connect.UnaryInterceptorFunc {
	if keys == nil {
		keys = ratelimit.Composite(ratelimit.ClientKey, ratelimit.ProcedureKey)
	}
	var only map[string]bool
	if len(procedures) > 0 {
		only = make(map[string]bool, len(procedures))
		for _, p := range procedures {
			only[p] = true
		}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			if only != nil && !only[procedure] {
				return next(ctx, req)
			}

			key := keys(ctx, procedure, req.Header(), req.Peer().Addr)
			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Log.Warn("Rate limit check failed", "error", err, "key", key)
				return next(ctx, req)
			}
			if allowed {
				return next(ctx, req)
			}

			info, err := limiter.GetInfo(ctx, key)
			if err != nil {
				logger.Log.Warn("Failed to get rate limit info", "error", err, "key", key)
				info = &ratelimit.LimitInfo{ResetAt: time.Now().Add(time.Minute), RetryAfter: time.Minute}
			}
			logger.Log.Warn("Rate limit exceeded", "key", key, "procedure", procedure, "limit", info.Limit)

			cErr := connect.NewError(connect.CodeResourceExhausted,
				fmt.Errorf("rate limit exceeded: %d requests allowed", info.Limit))
			cErr.Meta().Set("X-Ratelimit-Limit", strconv.Itoa(info.Limit))
			cErr.Meta().Set("X-Ratelimit-Remaining", "0")
			cErr.Meta().Set("X-Ratelimit-Reset", info.ResetAt.UTC().Format(time.RFC3339))
			if info.RetryAfter > 0 {
				cErr.Meta().Set("Retry-After", strconv.Itoa(int(info.RetryAfter.Round(time.Second)/time.Second)))
			}
			return nil, cErr
		}
	}
}
