package interceptors

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// HeaderRequestID заголовок с идентификатором запроса
const HeaderRequestID = "X-Request-Id"

// call сведения о вызове, которые внутренние интерсепторы и обработчики
// заполняют для внешних (логирование, аудит)
type call struct {
	mu         sync.Mutex
	requestID  string
	subject    string
	role       string
	resource   string
	resourceID string
}

type callKey struct{}

// withCall возвращает контекст с записью вызова, создавая её при отсутствии
func withCall(ctx context.Context, requestID string) (context.Context, *call) {
	if c, ok := ctx.Value(callKey{}).(*call); ok {
		return ctx, c
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c := &call{requestID: requestID}
	return context.WithValue(ctx, callKey{}, c), c
}

func callFrom(ctx context.Context) *call {
	c, _ := ctx.Value(callKey{}).(*call)
	return c
}

// RequestID возвращает идентификатор текущего запроса
func RequestID(ctx context.Context) string {
	if c := callFrom(ctx); c != nil {
		return c.requestID
	}
	return ""
}

// SetResource сообщает аудиту, над каким ресурсом выполнен вызов
func SetResource(ctx context.Context, kind, id string) {
	c := callFrom(ctx)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resource, c.resourceID = kind, id
	c.mu.Unlock()
}

func (c *call) setSubject(subject, role string) {
	c.mu.Lock()
	c.subject, c.role = subject, role
	c.mu.Unlock()
}

func (c *call) snapshot() (subject, role, resource, resourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject, c.role, c.resource, c.resourceID
}
