package interceptors

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"heatnet/pkg/metrics"
)

// Metrics учитывает число, длительность и активные вызовы по процедурам
func Metrics(m *metrics.Metrics) connect.UnaryInterceptorFunc {
	if m == nil {
		m = metrics.Get()
	}
	tracker := metrics.NewRequestTracker(m.RPCRequestsInFlight)

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			tracker.Start(procedure)
			defer tracker.End(procedure)

			start := time.Now()
			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			m.RecordRPC(procedure, code, time.Since(start))
			return resp, err
		}
	}
}
