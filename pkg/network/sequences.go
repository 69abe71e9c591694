package network

import (
	"fmt"
	"math"
	"sort"

	"heatnet/pkg/apperror"
)

// Table временной ряд: строки = снимки, столбцы = идентификаторы компонентов
type Table struct {
	Snapshots []int
	Columns   []string
	Values    [][]float64
}

// NewTable создаёт таблицу, заполненную нулями
func NewTable(snapshots []int, columns []string) *Table {
	values := make([][]float64, len(snapshots))
	for i := range values {
		values[i] = make([]float64, len(columns))
	}
	return &Table{
		Snapshots: append([]int(nil), snapshots...),
		Columns:   append([]string(nil), columns...),
		Values:    values,
	}
}

// Rows возвращает количество снимков
func (t *Table) Rows() int {
	return len(t.Snapshots)
}

// ColumnIndex возвращает позицию столбца
func (t *Table) ColumnIndex(id string) int {
	for i, c := range t.Columns {
		if c == id {
			return i
		}
	}
	return -1
}

// RowIndex возвращает позицию снимка
func (t *Table) RowIndex(snapshot int) int {
	for i, s := range t.Snapshots {
		if s == snapshot {
			return i
		}
	}
	return -1
}

// Column возвращает ряд значений столбца по всем снимкам
func (t *Table) Column(id string) ([]float64, bool) {
	j := t.ColumnIndex(id)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		out[i] = row[j]
	}
	return out, true
}

// Clone создаёт глубокую копию таблицы
func (t *Table) Clone() *Table {
	clone := &Table{
		Snapshots: append([]int(nil), t.Snapshots...),
		Columns:   append([]string(nil), t.Columns...),
		Values:    make([][]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		clone.Values[i] = append([]float64(nil), row...)
	}
	return clone
}

// ValidateShape проверяет размерность и уникальность снимков и столбцов
func (t *Table) ValidateShape() error {
	return t.validateShape(apperror.CodeMalformedTable)
}

// validateShape проверяет размерность и уникальность индексов
func (t *Table) validateShape(code apperror.ErrorCode) error {
	if len(t.Values) != len(t.Snapshots) {
		return apperror.Newf(code, "table has %d snapshots but %d rows", len(t.Snapshots), len(t.Values))
	}
	seenSnap := make(map[int]bool, len(t.Snapshots))
	for _, s := range t.Snapshots {
		if seenSnap[s] {
			return apperror.NewWithField(code, "duplicate snapshot index", fmt.Sprintf("snapshot=%d", s))
		}
		seenSnap[s] = true
	}
	seenCol := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seenCol[c] {
			return apperror.NewWithField(code, "duplicate column", c)
		}
		seenCol[c] = true
	}
	for i, row := range t.Values {
		if len(row) != len(t.Columns) {
			return apperror.NewWithField(code,
				fmt.Sprintf("row has %d values, expected %d", len(row), len(t.Columns)),
				fmt.Sprintf("snapshot=%d", t.Snapshots[i]))
		}
	}
	return nil
}

// SequenceStore явное вложенное отображение
// имя списка -> атрибут -> временной ряд.
//
// Ключи первого уровня: producers, consumers, forks, pipes.
// Ключи второго уровня: имена атрибутов (mass_flow, temperature_drop, ...).
type SequenceStore map[string]map[string]*Table

// NewSequenceStore создаёт пустое хранилище рядов
func NewSequenceStore() SequenceStore {
	return make(SequenceStore)
}

// Get возвращает ряд list/attr
func (s SequenceStore) Get(list, attr string) (*Table, bool) {
	attrs, ok := s[list]
	if !ok {
		return nil, false
	}
	tbl, ok := attrs[attr]
	return tbl, ok
}

// Set сохраняет ряд list/attr
func (s SequenceStore) Set(list, attr string, tbl *Table) {
	attrs, ok := s[list]
	if !ok {
		attrs = make(map[string]*Table)
		s[list] = attrs
	}
	attrs[attr] = tbl
}

// Lists возвращает имена списков в лексикографическом порядке
func (s SequenceStore) Lists() []string {
	lists := make([]string, 0, len(s))
	for l := range s {
		lists = append(lists, l)
	}
	sort.Strings(lists)
	return lists
}

// Attributes возвращает атрибуты списка в лексикографическом порядке
func (s SequenceStore) Attributes(list string) []string {
	attrs := make([]string, 0, len(s[list]))
	for a := range s[list] {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}

// Clone создаёт глубокую копию хранилища
func (s SequenceStore) Clone() SequenceStore {
	clone := NewSequenceStore()
	for list, attrs := range s {
		for attr, tbl := range attrs {
			clone.Set(list, attr, tbl.Clone())
		}
	}
	return clone
}

// DemandMatrix расходы потребителей, кг/с: строки = снимки, столбцы = потребители
type DemandMatrix struct {
	Table
}

// NewDemandMatrix создаёт матрицу спроса из строк значений
func NewDemandMatrix(snapshots []int, consumers []string, values [][]float64) *DemandMatrix {
	return &DemandMatrix{Table: Table{Snapshots: snapshots, Columns: consumers, Values: values}}
}

// Consumers возвращает идентификаторы потребителей
func (d *DemandMatrix) Consumers() []string {
	return d.Columns
}

// Validate проверяет, что все значения конечны и неотрицательны
func (d *DemandMatrix) Validate() error {
	if err := d.validateShape(apperror.CodeInvalidDemand); err != nil {
		return err
	}
	for i, row := range d.Values {
		for j, v := range row {
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				return apperror.NewWithField(apperror.CodeInvalidDemand,
					fmt.Sprintf("non-finite demand %v", v),
					fmt.Sprintf("snapshot=%d consumer=%s", d.Snapshots[i], d.Columns[j])).
					WithDetails("snapshot", d.Snapshots[i]).
					WithDetails("consumer", d.Columns[j])
			case v < 0:
				return apperror.NewWithField(apperror.CodeInvalidDemand,
					fmt.Sprintf("negative demand %v", v),
					fmt.Sprintf("snapshot=%d consumer=%s", d.Snapshots[i], d.Columns[j])).
					WithDetails("snapshot", d.Snapshots[i]).
					WithDetails("consumer", d.Columns[j])
			}
		}
	}
	return nil
}

// Total возвращает суммарный спрос снимка с позицией row
func (d *DemandMatrix) Total(row int) float64 {
	var sum float64
	for _, v := range d.Values[row] {
		sum += v
	}
	return sum
}

// FlowResult расход по трубам, кг/с: строки = снимки, столбцы = трубы.
// Знак согласован с ориентацией трубы.
type FlowResult struct {
	Table
}

// NewFlowResult создаёт пустой результат для снимков и труб
func NewFlowResult(snapshots []int, pipes []string) *FlowResult {
	return &FlowResult{Table: *NewTable(snapshots, pipes)}
}

// Pipes возвращает идентификаторы труб
func (f *FlowResult) Pipes() []string {
	return f.Columns
}

// Flow возвращает расход трубы в снимке
func (f *FlowResult) Flow(snapshot int, pipe string) (float64, bool) {
	i := f.RowIndex(snapshot)
	j := f.ColumnIndex(pipe)
	if i < 0 || j < 0 {
		return 0, false
	}
	return f.Values[i][j], true
}
