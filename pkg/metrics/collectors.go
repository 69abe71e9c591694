package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestTracker отслеживает активные запросы по процедурам
type RequestTracker struct {
	mu       sync.Mutex
	active   map[string]int
	inFlight prometheus.Gauge
}

// NewRequestTracker создаёт новый трекер запросов
func NewRequestTracker(inFlight prometheus.Gauge) *RequestTracker {
	return &RequestTracker{
		active:   make(map[string]int),
		inFlight: inFlight,
	}
}

// Start отмечает начало запроса
func (t *RequestTracker) Start(procedure string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[procedure]++
	t.inFlight.Inc()
}

// End отмечает завершение запроса
func (t *RequestTracker) End(procedure string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[procedure] > 0 {
		t.active[procedure]--
		t.inFlight.Dec()
	}
}

// Active возвращает число активных запросов процедуры
func (t *RequestTracker) Active(procedure string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[procedure]
}

// Timer измеряет длительность операции
type Timer struct {
	start time.Time
}

// NewTimer запускает таймер
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed возвращает прошедшее время
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration записывает длительность в observer
func (t *Timer) ObserveDuration(o prometheus.Observer) time.Duration {
	d := time.Since(t.start)
	o.Observe(d.Seconds())
	return d
}
