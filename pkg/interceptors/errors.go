package interceptors

import (
	"context"

	"connectrpc.com/connect"

	"heatnet/pkg/apperror"
)

// Errors переводит ошибки приложения в *connect.Error с кодом по семейству
// и заголовками X-Error-Code, X-Error-Family
func Errors() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, apperror.ToConnect(err)
			}
			return resp, nil
		}
	}
}
