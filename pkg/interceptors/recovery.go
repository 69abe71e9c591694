package interceptors

import (
	"context"
	"fmt"
	"runtime/debug"

	"connectrpc.com/connect"

	"heatnet/pkg/logger"
)

// Recovery переводит панику обработчика в CodeInternal
func Recovery() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Error("Panic recovered",
						"procedure", req.Spec().Procedure,
						"request_id", RequestID(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					resp = nil
					err = connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}
