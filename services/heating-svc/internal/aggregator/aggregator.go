// Package aggregator преобразует расходы решателя в ряды по трубам и
// сводку по снимкам для отчётов.
package aggregator

import (
	"math"

	"heatnet/pkg/apperror"
	"heatnet/pkg/network"
)

// GeneralColumns колонки общей таблицы результатов. Значения мощности
// насоса и тепла заполняются внешней физической моделью.
var GeneralColumns = []string{"snapshot", "pump_power", "heat_feed_in", "heat_consumed", "heat_losses"}

// EdgeSeries временной ряд расхода по трубе
type EdgeSeries struct {
	PipeID    string    `json:"pipe_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Snapshots []int     `json:"snapshots"`
	Flow      []float64 `json:"flow"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
}

// SnapshotSummary сводка одного снимка
type SnapshotSummary struct {
	Snapshot       int     `json:"snapshot"`
	ProducerSupply float64 `json:"producer_supply"`
	ConsumerDemand float64 `json:"consumer_demand"`
	Imbalance      float64 `json:"imbalance"`

	PumpPower    float64 `json:"pump_power"`
	HeatFeedIn   float64 `json:"heat_feed_in"`
	HeatConsumed float64 `json:"heat_consumed"`
	HeatLosses   float64 `json:"heat_losses"`
}

// GeneralRow возвращает строку в порядке GeneralColumns
func (s SnapshotSummary) GeneralRow() []float64 {
	return []float64{float64(s.Snapshot), s.PumpPower, s.HeatFeedIn, s.HeatConsumed, s.HeatLosses}
}

// NetworkSummary итоги по сети за все снимки
type NetworkSummary struct {
	Snapshots    int     `json:"snapshots"`
	Pipes        int     `json:"pipes"`
	PeakSupply   float64 `json:"peak_supply"`
	TotalSupply  float64 `json:"total_supply"`
	MaxImbalance float64 `json:"max_imbalance"`
}

// Report полный результат агрегации
type Report struct {
	Network   NetworkSummary    `json:"network"`
	Edges     []EdgeSeries      `json:"edges"`
	Snapshots []SnapshotSummary `json:"snapshots"`
}

// EdgeSeriesOf раскладывает результат по трубам в порядке столбцов
func EdgeSeriesOf(t *network.Topology, fr *network.FlowResult) ([]EdgeSeries, error) {
	if t == nil {
		return nil, apperror.ErrNilTopology
	}
	if fr == nil {
		return nil, apperror.New(apperror.CodeNilInput, "flow result is nil")
	}

	series := make([]EdgeSeries, 0, len(fr.Columns))
	for j, id := range fr.Columns {
		pipe, ok := t.Pipe(id)
		if !ok {
			return nil, apperror.NewWithField(apperror.CodeInconsistentNetwork,
				"flow result references unknown pipe", id)
		}

		es := EdgeSeries{
			PipeID:    id,
			From:      pipe.From,
			To:        pipe.To,
			Snapshots: append([]int(nil), fr.Snapshots...),
			Flow:      make([]float64, len(fr.Snapshots)),
		}
		if len(fr.Snapshots) > 0 {
			es.Min, es.Max = math.Inf(1), math.Inf(-1)
		}

		var sum float64
		for i := range fr.Snapshots {
			v := fr.Values[i][j]
			es.Flow[i] = v
			sum += v
			es.Min = math.Min(es.Min, v)
			es.Max = math.Max(es.Max, v)
		}
		if len(fr.Snapshots) > 0 {
			es.Mean = sum / float64(len(fr.Snapshots))
		}
		series = append(series, es)
	}
	return series, nil
}

// Summaries строит сводку по снимкам. Поставка источника равна сумме
// расходов по его трубам со знаком: выходящие плюс, входящие минус.
func Summaries(t *network.Topology, fr *network.FlowResult, demand *network.DemandMatrix) ([]SnapshotSummary, error) {
	if t == nil {
		return nil, apperror.ErrNilTopology
	}
	if fr == nil {
		return nil, apperror.New(apperror.CodeNilInput, "flow result is nil")
	}

	producer, ok := t.Producer()
	if !ok {
		return nil, apperror.New(apperror.CodeProducerCount, "network has no single producer")
	}

	type signed struct {
		col  int
		sign float64
	}
	var producerPipes []signed
	for j, id := range fr.Columns {
		pipe, ok := t.Pipe(id)
		if !ok {
			return nil, apperror.NewWithField(apperror.CodeInconsistentNetwork,
				"flow result references unknown pipe", id)
		}
		switch producer.ID {
		case pipe.From:
			producerPipes = append(producerPipes, signed{j, 1})
		case pipe.To:
			producerPipes = append(producerPipes, signed{j, -1})
		}
	}

	out := make([]SnapshotSummary, len(fr.Snapshots))
	for i, snap := range fr.Snapshots {
		s := SnapshotSummary{Snapshot: snap}
		for _, p := range producerPipes {
			s.ProducerSupply += p.sign * fr.Values[i][p.col]
		}
		if demand != nil {
			if row := demand.RowIndex(snap); row >= 0 {
				s.ConsumerDemand = demand.Total(row)
			}
		}
		s.Imbalance = s.ProducerSupply - s.ConsumerDemand
		out[i] = s
	}
	return out, nil
}

// Aggregate собирает ряды, сводки и итоги
func Aggregate(t *network.Topology, fr *network.FlowResult, demand *network.DemandMatrix) (*Report, error) {
	edges, err := EdgeSeriesOf(t, fr)
	if err != nil {
		return nil, err
	}
	snaps, err := Summaries(t, fr, demand)
	if err != nil {
		return nil, err
	}

	ns := NetworkSummary{Snapshots: len(snaps), Pipes: len(edges)}
	for _, s := range snaps {
		ns.TotalSupply += s.ProducerSupply
		ns.PeakSupply = math.Max(ns.PeakSupply, s.ProducerSupply)
		ns.MaxImbalance = math.Max(ns.MaxImbalance, math.Abs(s.Imbalance))
	}

	return &Report{Network: ns, Edges: edges, Snapshots: snaps}, nil
}
