package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
)

// Validator сообщения с собственной проверкой, дополняющей теги validate
type Validator interface {
	Validate() error
}

// Validation проверяет сообщение запроса по тегам validate и методу Validate
func Validation(v *validator.Validate) connect.UnaryInterceptorFunc {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			msg := req.Any()
			if msg == nil {
				return next(ctx, req)
			}

			if err := v.Struct(msg); err != nil {
				var invalid *validator.InvalidValidationError
				if !errors.As(err, &invalid) {
					return nil, connect.NewError(connect.CodeInvalidArgument, describe(err))
				}
			}
			if m, ok := msg.(Validator); ok {
				if err := m.Validate(); err != nil {
					return nil, connect.NewError(connect.CodeInvalidArgument, err)
				}
			}
			return next(ctx, req)
		}
	}
}

// describe сворачивает ошибки валидатора в одно сообщение
func describe(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Namespace(), f.Tag(), f.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Namespace(), f.Tag()))
		}
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}
