// Package service связывает построение сети, гидравлический расчёт,
// кэш результатов, историю расчётов и отчёты.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"heatnet/pkg/apperror"
	"heatnet/pkg/cache"
	"heatnet/pkg/logger"
	"heatnet/pkg/metrics"
	"heatnet/pkg/network"
	"heatnet/pkg/tabular"
	"heatnet/pkg/telemetry"
	"heatnet/services/heating-svc/internal/aggregator"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/hydraulic"
	"heatnet/services/heating-svc/internal/report"
	"heatnet/services/heating-svc/internal/repository"
)

// Options зависимости сервиса. FlowCache и Metrics необязательны.
type Options struct {
	Repository repository.Repository
	FlowCache  *cache.FlowCache
	Metrics    *metrics.Metrics

	Solver       hydraulic.Options
	SolveTimeout time.Duration

	// Builder конфигурация построения по умолчанию; запрос может её заменить
	Builder builder.Config

	Report report.Options
}

// HeatingService сервис сетей теплоснабжения
type HeatingService struct {
	repo         repository.Repository
	flows        *cache.FlowCache
	metrics      *metrics.Metrics
	solver       *hydraulic.Solver
	solveTimeout time.Duration
	builderCfg   builder.Config
	reportOpts   report.Options
}

// New создаёт сервис
func New(opts Options) (*HeatingService, error) {
	if opts.Repository == nil {
		return nil, errors.New("service: repository is required")
	}
	if opts.FlowCache != nil && opts.Metrics != nil {
		m := opts.Metrics
		opts.FlowCache.OnLookup(func(hit bool) { m.RecordCache("flow", hit) })
	}
	return &HeatingService{
		repo:         opts.Repository,
		flows:        opts.FlowCache,
		metrics:      opts.Metrics,
		solver:       hydraulic.New(opts.Solver),
		solveTimeout: opts.SolveTimeout,
		builderCfg:   opts.Builder,
		reportOpts:   opts.Report,
	}, nil
}

// Ping проверяет хранилище
func (s *HeatingService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// BuildRequest входные данные построения. Здания задаются точками или
// контурами; при наличии контуров точки игнорируются.
type BuildRequest struct {
	Buildings  []orb.Point
	Footprints []orb.Polygon
	Streets    *builder.StreetGraph
	Demand     *network.DemandMatrix

	// Config заменяет конфигурацию по умолчанию, если задан
	Config *builder.Config
}

// BuildResult построенная сеть
type BuildResult struct {
	Topology    *network.Topology
	NetworkHash string
	Stats       builder.Stats
}

// BuildNetwork строит сеть по зданиям и улицам
func (s *HeatingService) BuildNetwork(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.BuildNetwork")
	defer span.End()

	cfg := s.builderCfg
	if req.Config != nil {
		cfg = *req.Config
	}

	buildings := len(req.Buildings)
	if len(req.Footprints) > 0 {
		buildings = len(req.Footprints)
	}
	span.SetAttributes(attribute.Int(telemetry.AttrBuildings, buildings))

	start := time.Now()
	result, err := s.build(req, cfg)
	elapsed := time.Since(start)

	if err != nil {
		s.recordBuild(false, elapsed, 0, 0)
		telemetry.SetError(ctx, err)
		return nil, err
	}

	top := result.Topology
	s.recordBuild(true, elapsed, top.NodeCount(), top.PipeCount())
	span.SetAttributes(telemetry.NetworkAttributes(result.NetworkHash, top.NodeCount(), top.PipeCount())...)
	span.SetAttributes(attribute.Int(telemetry.AttrForks, result.Stats.ForksInserted))

	logger.WithNetwork(result.NetworkHash).Info("network built",
		"nodes", top.NodeCount(),
		"pipes", top.PipeCount(),
		"forks_inserted", result.Stats.ForksInserted,
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *HeatingService) build(req BuildRequest, cfg builder.Config) (*BuildResult, error) {
	var (
		draft *builder.Draft
		err   error
	)
	if len(req.Footprints) > 0 {
		draft, err = builder.BuildFromFootprints(req.Footprints, req.Streets, cfg)
	} else {
		draft, err = builder.Build(req.Buildings, req.Streets, cfg)
	}
	if err != nil {
		return nil, err
	}

	top, err := draft.Finalize()
	if err != nil {
		return nil, err
	}
	if req.Demand != nil {
		if err := checkDemand(top, req.Demand); err != nil {
			return nil, err
		}
		top.SetDemand(req.Demand)
	}

	return &BuildResult{
		Topology:    top,
		NetworkHash: cache.NetworkHash(top),
		Stats:       draft.Stats(),
	}, nil
}

// ImportNetwork читает сеть из каталога CSV-таблиц
func (s *HeatingService) ImportNetwork(ctx context.Context, dir string) (*network.Topology, error) {
	_, span := telemetry.StartSpan(ctx, "HeatingService.ImportNetwork",
		trace.WithAttributes(attribute.String("dir", dir)))
	defer span.End()

	top, err := tabular.Import(dir)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordNetworkSize("import", top.NodeCount(), top.PipeCount())
	}
	return top, nil
}

// ExportNetwork записывает сеть в каталог CSV-таблиц
func (s *HeatingService) ExportNetwork(ctx context.Context, dir string, t *network.Topology) error {
	_, span := telemetry.StartSpan(ctx, "HeatingService.ExportNetwork",
		trace.WithAttributes(attribute.String("dir", dir)))
	defer span.End()

	if t == nil {
		return apperror.ErrNilTopology
	}
	if err := tabular.Export(dir, t); err != nil {
		telemetry.SetError(ctx, err)
		return err
	}
	return nil
}

// SolveRequest входные данные расчёта. Без Demand используется спрос,
// сохранённый в сети.
type SolveRequest struct {
	Name     string
	Subject  string
	Topology *network.Topology
	Demand   *network.DemandMatrix
}

// SolveResponse результат расчёта
type SolveResponse struct {
	Run      *repository.Run
	Flow     *network.FlowResult
	Report   *aggregator.Report
	CacheHit bool
}

// Solve рассчитывает расходы, агрегирует их и сохраняет расчёт в истории.
// Повторный расчёт той же сети с тем же спросом берётся из кэша.
func (s *HeatingService) Solve(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.Solve")
	defer span.End()

	if s.solveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.solveTimeout)
		defer cancel()
	}

	top := req.Topology
	if top == nil {
		return nil, apperror.ErrNilTopology
	}
	if err := network.Validate(top); err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	demand := req.Demand
	if demand == nil {
		var ok bool
		if demand, ok = top.Demand(); !ok {
			return nil, apperror.ErrNilDemand
		}
	}

	netHash, demHash := cache.NetworkHash(top), cache.DemandHash(demand)
	span.SetAttributes(telemetry.NetworkAttributes(netHash, top.NodeCount(), top.PipeCount())...)

	start := time.Now()
	flow, hit, err := s.solve(ctx, top, demand, cache.FlowKey(netHash, demHash))
	elapsed := time.Since(start)
	if err != nil {
		s.recordSolve(false, elapsed, 0, 0, 0)
		telemetry.SetError(ctx, err)
		logger.WithNetwork(netHash).Warn("solve failed",
			"error", err,
			"code", apperror.Code(err),
		)
		return nil, err
	}

	fr := flow.FlowResult()
	report, err := aggregator.Aggregate(top, fr, demand)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	s.recordSolve(true, elapsed, len(fr.Snapshots), flow.MaxResidual, flow.Condition)
	span.SetAttributes(telemetry.SolveAttributes(len(fr.Snapshots), s.solver.Options().Workers,
		flow.MaxResidual, flow.Condition, hit)...)

	payload, err := encodeReport(report)
	if err != nil {
		return nil, err
	}
	run := &repository.Run{
		ID:            uuid.New(),
		Name:          req.Name,
		Subject:       req.Subject,
		NetworkHash:   netHash,
		DemandHash:    demHash,
		NodeCount:     top.NodeCount(),
		PipeCount:     top.PipeCount(),
		SnapshotCount: len(fr.Snapshots),
		TotalDemand:   totalDemand(demand),
		MaxResidual:   flow.MaxResidual,
		Condition:     flow.Condition,
		CacheHit:      hit,
		DurationMs:    float64(elapsed.Microseconds()) / 1000,
		Result:        payload,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to store run")
	}

	logger.WithRun(run.ID.String()).Info("network solved",
		"network_hash", netHash,
		"snapshots", run.SnapshotCount,
		"max_residual", run.MaxResidual,
		"cache_hit", hit,
		"duration_ms", run.DurationMs,
	)

	return &SolveResponse{Run: run, Flow: fr, Report: report, CacheHit: hit}, nil
}

// solve считает расход через кэш, если он настроен. Ошибка чтения кэша
// не мешает расчёту.
func (s *HeatingService) solve(ctx context.Context, top *network.Topology, demand *network.DemandMatrix, key string) (*cache.CachedFlow, bool, error) {
	compute := func(ctx context.Context) (*cache.CachedFlow, error) {
		res, err := s.solver.SolveDetailed(ctx, top, demand)
		if err != nil {
			return nil, err
		}
		return cache.NewCachedFlow(res.Flow, res.MaxResidual, res.Condition), nil
	}

	if s.flows == nil {
		flow, err := compute(ctx)
		return flow, false, err
	}

	flow, hit, err := s.flows.GetOrCompute(ctx, key, compute)
	if err == nil {
		return flow, hit, nil
	}
	if apperror.Code(err) != apperror.CodeInternal {
		return nil, false, err
	}

	logger.Log.Warn("flow cache unavailable, solving directly", "key", key, "error", err)
	flow, err = compute(ctx)
	return flow, false, err
}

// InvalidateNetwork удаляет из кэша все расчёты сети
func (s *HeatingService) InvalidateNetwork(ctx context.Context, networkHash string) (int64, error) {
	if s.flows == nil {
		return 0, nil
	}
	return s.flows.Invalidate(ctx, networkHash)
}

func (s *HeatingService) recordBuild(success bool, d time.Duration, nodes, pipes int) {
	if s.metrics != nil {
		s.metrics.RecordBuild(success, d, nodes, pipes)
	}
}

func (s *HeatingService) recordSolve(success bool, d time.Duration, snapshots int, maxResidual, condition float64) {
	if s.metrics != nil {
		s.metrics.RecordSolve(success, d, snapshots, maxResidual, condition)
	}
}

// checkDemand проверяет, что столбцы спроса относятся к потребителям сети
func checkDemand(t *network.Topology, d *network.DemandMatrix) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, id := range d.Columns {
		n, ok := t.Node(id)
		if !ok || n.Role != network.RoleConsumer {
			return apperror.NewWithField(apperror.CodeInvalidDemand,
				"demand column is not a consumer of the network", id)
		}
	}
	return nil
}

func totalDemand(d *network.DemandMatrix) float64 {
	var sum float64
	for i := range d.Snapshots {
		sum += d.Total(i)
	}
	return sum
}
