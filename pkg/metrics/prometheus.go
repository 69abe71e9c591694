package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics контейнер метрик сервиса
type Metrics struct {
	registry *prometheus.Registry

	// RPC метрики
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge

	// Построение сети
	BuildOperationsTotal *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	NetworkNodes         *prometheus.HistogramVec
	NetworkPipes         *prometheus.HistogramVec

	// Гидравлический расчёт
	SolveOperationsTotal *prometheus.CounterVec
	SolveDuration        prometheus.Histogram
	SnapshotsSolved      prometheus.Counter
	MaxResidual          prometheus.Gauge
	ConditionNumber      prometheus.Gauge

	// Кэш
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	ServiceInfo *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Mutex
)

// New регистрирует метрики в собственном реестре
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RPCRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_requests_total",
				Help:      "Total number of RPC requests",
			},
			[]string{"procedure", "code"},
		),

		RPCRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_request_duration_seconds",
				Help:      "Duration of RPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"procedure"},
		),

		RPCRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rpc_requests_in_flight",
				Help:      "Current number of RPC requests being processed",
			},
		),

		BuildOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_operations_total",
				Help:      "Total number of network build operations",
			},
			[]string{"status"},
		),

		BuildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of network build operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		NetworkNodes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "network_nodes",
				Help:      "Number of nodes in processed networks",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"operation"},
		),

		NetworkPipes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "network_pipes",
				Help:      "Number of pipes in processed networks",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"operation"},
		),

		SolveOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solve_operations_total",
				Help:      "Total number of hydraulic solve operations",
			},
			[]string{"status"},
		),

		SolveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of hydraulic solve operations",
				Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		SnapshotsSolved: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_solved_total",
				Help:      "Total number of solved demand snapshots",
			},
		),

		MaxResidual: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "max_residual",
				Help:      "Max-norm residual of the last solve",
			},
		),

		ConditionNumber: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "incidence_condition_number",
				Help:      "Condition number of the last factorized incidence matrix",
			},
		),

		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits",
			},
			[]string{"cache"},
		),

		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses",
			},
			[]string{"cache"},
		),

		ServiceInfo: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}
}

// Get возвращает метрики процесса, создавая их при первом вызове
func Get() *Metrics {
	defaultOnce.Lock()
	defer defaultOnce.Unlock()

	if defaultMetrics == nil {
		defaultMetrics = New("heatnet")
	}
	return defaultMetrics
}

// SetDefault заменяет метрики процесса
func SetDefault(m *Metrics) {
	defaultOnce.Lock()
	defaultMetrics = m
	defaultOnce.Unlock()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRPC записывает метрики RPC запроса
func (m *Metrics) RecordRPC(procedure, code string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(procedure, code).Inc()
	m.RPCRequestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordBuild записывает метрики построения сети
func (m *Metrics) RecordBuild(success bool, duration time.Duration, nodes, pipes int) {
	m.BuildOperationsTotal.WithLabelValues(status(success)).Inc()
	m.BuildDuration.Observe(duration.Seconds())
	if success {
		m.RecordNetworkSize("build", nodes, pipes)
	}
}

// RecordSolve записывает метрики расчёта
func (m *Metrics) RecordSolve(success bool, duration time.Duration, snapshots int, maxResidual, condition float64) {
	m.SolveOperationsTotal.WithLabelValues(status(success)).Inc()
	m.SolveDuration.Observe(duration.Seconds())
	if !success {
		return
	}
	m.SnapshotsSolved.Add(float64(snapshots))
	m.MaxResidual.Set(maxResidual)
	m.ConditionNumber.Set(condition)
}

// RecordNetworkSize записывает размер сети
func (m *Metrics) RecordNetworkSize(operation string, nodes, pipes int) {
	m.NetworkNodes.WithLabelValues(operation).Observe(float64(nodes))
	m.NetworkPipes.WithLabelValues(operation).Observe(float64(pipes))
}

// RecordCache записывает обращение к кэшу
func (m *Metrics) RecordCache(cache string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP handler для /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
