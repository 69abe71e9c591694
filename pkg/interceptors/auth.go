package interceptors

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"heatnet/pkg/auth"
	"heatnet/pkg/logger"
)

// AuthPolicy роли, требуемые процедурами. Процедура без записи в Roles
// требует auth.RoleViewer.
type AuthPolicy struct {
	Public map[string]bool
	Roles  map[string]string
}

func (p AuthPolicy) required(procedure string) string {
	if role, ok := p.Roles[procedure]; ok {
		return role
	}
	return auth.RoleViewer
}

// Auth проверяет bearer-токен и роль, claims кладутся в контекст
func Auth(m *auth.Manager, policy AuthPolicy) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			if policy.Public[procedure] {
				return next(ctx, req)
			}

			token, err := auth.BearerToken(req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			claims, err := m.Validate(token)
			if err != nil {
				logger.Log.Debug("Token rejected", "procedure", procedure, "error", err)
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			if c := callFrom(ctx); c != nil {
				c.setSubject(claims.Subject, claims.Role)
			}
			if !claims.Allows(policy.required(procedure)) {
				return nil, connect.NewError(connect.CodePermissionDenied,
					errors.Join(auth.ErrForbidden, errors.New("procedure requires role "+policy.required(procedure))))
			}

			return next(auth.WithClaims(ctx, claims), req)
		}
	}
}
