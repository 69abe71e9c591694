package hydraulic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"heatnet/pkg/apperror"
	"heatnet/pkg/network"
)

// Incidence ориентированная матрица инцидентности: строки = узлы, столбцы = трубы.
// В столбце трубы -1 стоит в строке узла From и +1 в строке узла To,
// поэтому положительный расход совпадает с ориентацией трубы.
//
// После построения матрица и её QR-разложение только читаются и могут
// использоваться из нескольких горутин.
type Incidence struct {
	m     *mat.Dense
	qr    *mat.QR
	nodes []string
	pipes []string
	row   map[string]int
	cond  float64
}

// NewIncidence строит матрицу для топологии. Порядок строк: источник,
// затем остальные узлы в порядке топологии. Порядок столбцов: порядок труб.
func NewIncidence(t *network.Topology) (*Incidence, error) {
	if t == nil {
		return nil, apperror.ErrNilTopology
	}

	producer, ok := t.Producer()
	if !ok {
		return nil, apperror.New(apperror.CodeProducerCount, "incidence matrix requires exactly one producer")
	}

	nodes := make([]string, 0, len(t.Nodes))
	nodes = append(nodes, producer.ID)
	for _, n := range t.Nodes {
		if n.ID != producer.ID {
			nodes = append(nodes, n.ID)
		}
	}

	row := make(map[string]int, len(nodes))
	for i, id := range nodes {
		row[id] = i
	}

	if len(t.Pipes) == 0 {
		return nil, apperror.New(apperror.CodeSingularSystem, "network has no pipes")
	}

	m := mat.NewDense(len(nodes), len(t.Pipes), nil)
	pipes := make([]string, len(t.Pipes))
	for j, p := range t.Pipes {
		from, okFrom := row[p.From]
		to, okTo := row[p.To]
		if !okFrom || !okTo {
			return nil, apperror.NewWithField(apperror.CodeDanglingEdge,
				fmt.Sprintf("pipe %s references unknown node", p.ID), p.ID)
		}
		m.Set(from, j, -1)
		m.Set(to, j, 1)
		pipes[j] = p.ID
	}

	return &Incidence{m: m, nodes: nodes, pipes: pipes, row: row}, nil
}

// Factorize вычисляет QR-разложение один раз и проверяет обусловленность.
// Система без решения методом наименьших квадратов (столбцов больше, чем
// строк, или вырожденная матрица) даёт CodeSingularSystem.
func (inc *Incidence) Factorize(conditionLimit float64) error {
	if inc.qr != nil {
		return nil
	}

	r, c := inc.m.Dims()
	if c > r {
		return apperror.Newf(apperror.CodeSingularSystem,
			"incidence matrix is %dx%d: more pipes than nodes, the network contains loops", r, c).
			WithDetails("nodes", r).
			WithDetails("pipes", c)
	}

	var qr mat.QR
	qr.Factorize(inc.m)

	cond := qr.Cond()
	if !(cond <= conditionLimit) {
		return apperror.Newf(apperror.CodeSingularSystem,
			"incidence matrix is rank deficient (condition number %g)", cond).
			WithDetails("condition", cond)
	}

	inc.qr = &qr
	inc.cond = cond
	return nil
}

// Matrix возвращает матрицу только для чтения
func (inc *Incidence) Matrix() mat.Matrix {
	return inc.m
}

// Nodes возвращает порядок строк
func (inc *Incidence) Nodes() []string {
	return inc.nodes
}

// Pipes возвращает порядок столбцов
func (inc *Incidence) Pipes() []string {
	return inc.pipes
}

// Row возвращает строку узла
func (inc *Incidence) Row(id string) (int, bool) {
	i, ok := inc.row[id]
	return i, ok
}

// Condition возвращает число обусловленности после Factorize
func (inc *Incidence) Condition() float64 {
	return inc.cond
}

// solve решает M x = b методом наименьших квадратов
func (inc *Incidence) solve(b *mat.VecDense) (*mat.VecDense, error) {
	_, c := inc.m.Dims()
	x := mat.NewVecDense(c, nil)
	if err := inc.qr.SolveVecTo(x, false, b); err != nil {
		return nil, err
	}
	return x, nil
}

// Residual возвращает ‖Mx − b‖∞
func Residual(m mat.Matrix, x, b mat.Vector) float64 {
	r, _ := m.Dims()
	res := mat.NewVecDense(r, nil)
	res.MulVec(m, x)
	res.SubVec(res, b)

	var worst float64
	for i := 0; i < r; i++ {
		v := res.AtVec(i)
		if v < 0 {
			v = -v
		}
		if v > worst {
			worst = v
		}
	}
	return worst
}
