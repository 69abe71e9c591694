package interceptors

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"

	"heatnet/pkg/logger"
)

// Logging присваивает запросу идентификатор (из X-Request-Id или новый)
// и пишет результат вызова в лог
func Logging() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx, c := withCall(ctx, req.Header().Get(HeaderRequestID))
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			duration := time.Since(start)
			subject, _, _, _ := c.snapshot()

			if err != nil {
				code := connect.CodeOf(err)
				log := logger.Log.Error
				if code != connect.CodeInternal && code != connect.CodeUnknown {
					log = logger.Log.Warn
				}
				log("Request failed",
					"request_id", c.requestID,
					"procedure", procedure,
					"subject", subject,
					"duration_ms", duration.Milliseconds(),
					"code", code.String(),
					"error", err,
				)
				var cErr *connect.Error
				if errors.As(err, &cErr) {
					cErr.Meta().Set(HeaderRequestID, c.requestID)
				}
				return resp, err
			}

			logger.Log.Info("Request completed",
				"request_id", c.requestID,
				"procedure", procedure,
				"subject", subject,
				"duration_ms", duration.Milliseconds(),
			)
			if resp != nil {
				resp.Header().Set(HeaderRequestID, c.requestID)
			}
			return resp, nil
		}
	}
}
