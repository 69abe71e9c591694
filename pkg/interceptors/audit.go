package interceptors

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"

	"heatnet/pkg/apperror"
	"heatnet/pkg/audit"
	"heatnet/pkg/logger"
)

// AuditConfig настройки аудита вызовов
type AuditConfig struct {
	Service string
	Logger  audit.Logger
	// Actions действие по процедуре; процедуры без записи не аудируются
	Actions map[string]audit.Action
}

// Audit пишет запись аудита для каждого вызова процедуры из cfg.Actions.
// Отказ в доступе и превышение лимита записываются как DENIED.
func Audit(cfg AuditConfig) connect.UnaryInterceptorFunc {
	if cfg.Logger == nil {
		cfg.Logger = audit.NoopLogger{}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			action, ok := cfg.Actions[procedure]
			if !ok {
				return next(ctx, req)
			}

			ctx, c := withCall(ctx, req.Header().Get(HeaderRequestID))
			start := time.Now()

			resp, err := next(ctx, req)

			subject, role, resource, resourceID := c.snapshot()
			b := audit.NewEntry().
				Service(cfg.Service).
				Method(procedure).
				Action(action).
				Subject(subject, role).
				Client(req.Peer().Addr, req.Header().Get("User-Agent")).
				Resource(resource, resourceID).
				Duration(time.Since(start)).
				Meta("request_id", c.requestID)

			switch {
			case err == nil:
				b.Outcome(audit.OutcomeSuccess)
			case denied(err):
				b.Outcome(audit.OutcomeDenied).Error(connect.CodeOf(err).String(), err.Error())
			default:
				b.Outcome(audit.OutcomeFailure).Error(errorCode(err), err.Error())
			}

			if logErr := cfg.Logger.Log(context.WithoutCancel(ctx), b.Build()); logErr != nil {
				logger.Log.Warn("Failed to write audit entry", "error", logErr, "procedure", procedure)
			}
			return resp, err
		}
	}
}

func denied(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeUnauthenticated, connect.CodePermissionDenied, connect.CodeResourceExhausted:
		return true
	}
	return false
}

// errorCode код приложения, если он есть, иначе код Connect
func errorCode(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return connect.CodeOf(err).String()
}
