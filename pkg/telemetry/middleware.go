package telemetry

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UnaryInterceptor создаёт Connect interceptor для трейсинга
func UnaryInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			ctx, span := StartSpan(ctx, procedure,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.system", "connect_rpc"),
					attribute.String("rpc.method", procedure),
				),
			)
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				code := connect.CodeOf(err)
				msg := err.Error()
				var cErr *connect.Error
				if errors.As(err, &cErr) {
					msg = cErr.Message()
				}
				span.SetAttributes(attribute.String("rpc.connect_rpc.error_code", code.String()))
				span.SetAttributes(ErrorAttributes(err)...)
				span.RecordError(err)
				span.SetStatus(codes.Error, msg)
				return resp, err
			}

			span.SetStatus(codes.Ok, "")
			return resp, nil
		}
	}
}
