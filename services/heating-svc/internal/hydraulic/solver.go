// Package hydraulic решает гидравлическую задачу сети: по спросу
// потребителей находит расход по каждой трубе для каждого снимка.
package hydraulic

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"heatnet/pkg/apperror"
	"heatnet/pkg/config"
	"heatnet/pkg/network"
)

const (
	// DefaultConditionLimit порог числа обусловленности матрицы инцидентности
	DefaultConditionLimit = 1e12
)

// Options параметры решателя
type Options struct {
	// Workers число горутин для снимков; 0 = GOMAXPROCS
	Workers int

	ConditionLimit    float64
	ResidualTolerance float64
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Workers:           runtime.GOMAXPROCS(0),
		ConditionLimit:    DefaultConditionLimit,
		ResidualTolerance: network.DefaultResidualTolerance,
	}
}

// Solver решатель баланса расходов
type Solver struct {
	opts Options
}

// Result результат с диагностикой
type Result struct {
	Flow        *network.FlowResult
	Residuals   []float64
	MaxResidual float64
	Condition   float64
}

// New создаёт решатель, нулевые поля заменяются значениями по умолчанию
func New(opts Options) *Solver {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if !(opts.ConditionLimit > 0) {
		opts.ConditionLimit = def.ConditionLimit
	}
	if !(opts.ResidualTolerance > 0) {
		opts.ResidualTolerance = def.ResidualTolerance
	}
	return &Solver{opts: opts}
}

// Options возвращает действующие параметры
func (s *Solver) Options() Options {
	return s.opts
}

// Solve возвращает расходы по трубам для всех снимков спроса
func (s *Solver) Solve(ctx context.Context, t *network.Topology, demand *network.DemandMatrix) (*network.FlowResult, error) {
	res, err := s.SolveDetailed(ctx, t, demand)
	if err != nil {
		return nil, err
	}
	return res.Flow, nil
}

// SolveDetailed то же, что Solve, но с невязками и числом обусловленности
func (s *Solver) SolveDetailed(ctx context.Context, t *network.Topology, demand *network.DemandMatrix) (*Result, error) {
	if t == nil {
		return nil, apperror.ErrNilTopology
	}
	if demand == nil {
		return nil, apperror.ErrNilDemand
	}
	if err := demand.Validate(); err != nil {
		return nil, err
	}
	if network.HasLoops(t) {
		return nil, apperror.New(apperror.CodeUnsupportedTopology, "networks with loops are not supported")
	}

	inc, err := NewIncidence(t)
	if err != nil {
		return nil, err
	}

	rows, err := demandRows(t, inc, demand)
	if err != nil {
		return nil, err
	}

	if err := inc.Factorize(s.opts.ConditionLimit); err != nil {
		return nil, err
	}

	flow := network.NewFlowResult(append([]int(nil), demand.Snapshots...), append([]string(nil), inc.Pipes()...))
	residuals := make([]float64, len(demand.Snapshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i := range demand.Snapshots {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperror.Wrap(err, apperror.CodeTimeout, "solve cancelled")
			}

			b := rhs(inc, rows, demand.Values[i])
			x, err := inc.solve(b)
			if err != nil {
				return apperror.Wrap(err, apperror.CodeSingularSystem,
					fmt.Sprintf("least-squares solve failed for snapshot %d", demand.Snapshots[i])).
					WithDetails("snapshot", demand.Snapshots[i])
			}

			r := Residual(inc.Matrix(), x, b)
			if !(r <= s.opts.ResidualTolerance) {
				return apperror.NewWithField(apperror.CodeSingularSystem,
					fmt.Sprintf("residual %g exceeds tolerance %g", r, s.opts.ResidualTolerance),
					fmt.Sprintf("snapshot=%d", demand.Snapshots[i])).
					WithDetails("snapshot", demand.Snapshots[i]).
					WithDetails("residual", r)
			}

			// каждая горутина пишет только свою строку
			copy(flow.Values[i], x.RawVector().Data)
			residuals[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var worst float64
	for _, r := range residuals {
		if r > worst {
			worst = r
		}
	}

	return &Result{
		Flow:        flow,
		Residuals:   residuals,
		MaxResidual: worst,
		Condition:   inc.Condition(),
	}, nil
}

// demandRows сопоставляет столбцы спроса строкам матрицы
func demandRows(t *network.Topology, inc *Incidence, demand *network.DemandMatrix) ([]int, error) {
	rows := make([]int, len(demand.Columns))
	for j, id := range demand.Columns {
		node, ok := t.Node(id)
		if !ok || node.Role != network.RoleConsumer {
			return nil, apperror.NewWithField(apperror.CodeInvalidDemand,
				fmt.Sprintf("demand column %s is not a consumer of the network", id),
				"consumer="+id).
				WithDetails("consumer", id)
		}
		r, _ := inc.Row(id)
		rows[j] = r
	}
	return rows, nil
}

// rhs собирает правую часть: спрос в строках потребителей, строка
// источника равна минус сумме остальных
func rhs(inc *Incidence, rows []int, values []float64) *mat.VecDense {
	b := mat.NewVecDense(len(inc.Nodes()), nil)
	for j, r := range rows {
		b.SetVec(r, b.AtVec(r)+values[j])
	}

	var sum float64
	for i := 1; i < b.Len(); i++ {
		sum += b.AtVec(i)
	}
	b.SetVec(0, -sum)
	return b
}

// FromConfig переводит секцию solver файла конфигурации
func FromConfig(c config.SolverConfig) Options {
	return Options{
		Workers:           c.Workers,
		ConditionLimit:    c.ConditionLimit,
		ResidualTolerance: c.ResidualTolerance,
	}
}
