package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"heatnet/services/heating-svc/internal/aggregator"
)

// Листы книги
const (
	SheetSummary   = "Summary"
	SheetSnapshots = "Snapshots"
	SheetPipes     = "Pipes"
	SheetMassFlow  = "Mass Flow"
)

// ExcelRenderer пишет книгу XLSX: сводка, снимки, трубы и ряды расходов
type ExcelRenderer struct {
	opts Options
}

func (r *ExcelRenderer) Format() Format { return FormatXLSX }
func (r *ExcelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (r *ExcelRenderer) Extension() string { return "xlsx" }

// sheetWriter запоминает первую ошибку excelize
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(col, row int, v any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(w.sheet, cell(col, row), v)
}

func (w *sheetWriter) style(fromCol, toCol, row, style int) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, cell(fromCol, row), cell(toCol, row), style)
}

func (w *sheetWriter) header(row, style int, names ...string) {
	for i, name := range names {
		w.set(i+1, row, name)
	}
	w.style(1, len(names), row, style)
}

func (r *ExcelRenderer) Render(ctx context.Context, data *Data) ([]byte, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("excel style: %w", err)
	}

	steps := []func(*excelize.File, *Data, int) error{
		r.writeSummary,
		r.writeSnapshots,
		r.writePipes,
		r.writeMassFlow,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step(f, data, headerStyle); err != nil {
			return nil, err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newSheet(f *excelize.File, name string) (*sheetWriter, error) {
	if _, err := f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("excel sheet %s: %w", name, err)
	}
	return &sheetWriter{f: f, sheet: name}, nil
}

func (r *ExcelRenderer) writeSummary(f *excelize.File, data *Data, headerStyle int) error {
	w, err := newSheet(f, SheetSummary)
	if err != nil {
		return err
	}

	w.set(1, 1, title(r.opts, data))
	if r.opts.CompanyName != "" {
		w.set(1, 2, r.opts.CompanyName)
	}

	n := data.Report.Network
	rows := []struct {
		key   string
		value any
	}{
		{"Run ID", data.RunID},
		{"Name", data.Name},
		{"Subject", data.Subject},
		{"Created", data.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Nodes", data.Nodes},
		{"Pipes", n.Pipes},
		{"Snapshots", n.Snapshots},
		{"Peak Supply", n.PeakSupply},
		{"Total Supply", n.TotalSupply},
		{"Max Imbalance", n.MaxImbalance},
		{"Max Residual", data.MaxResidual},
		{"Condition Number", data.Condition},
		{"Cached", data.CacheHit},
	}

	w.header(4, headerStyle, "Parameter", "Value")
	for i, kv := range rows {
		w.set(1, 5+i, kv.key)
		w.set(2, 5+i, kv.value)
	}
	if w.err == nil {
		w.err = f.SetColWidth(SheetSummary, "A", "B", 24)
	}
	return w.err
}

func (r *ExcelRenderer) writeSnapshots(f *excelize.File, data *Data, headerStyle int) error {
	w, err := newSheet(f, SheetSnapshots)
	if err != nil {
		return err
	}

	cols := append([]string(nil), aggregator.GeneralColumns...)
	cols = append(cols, "producer_supply", "consumer_demand", "imbalance")
	w.header(1, headerStyle, cols...)

	for i, s := range data.Report.Snapshots {
		row := i + 2
		values := s.GeneralRow()
		w.set(1, row, s.Snapshot)
		for j := 1; j < len(values); j++ {
			w.set(j+1, row, values[j])
		}
		next := len(values) + 1
		w.set(next, row, s.ProducerSupply)
		w.set(next+1, row, s.ConsumerDemand)
		w.set(next+2, row, s.Imbalance)
	}
	return w.err
}

func (r *ExcelRenderer) writePipes(f *excelize.File, data *Data, headerStyle int) error {
	w, err := newSheet(f, SheetPipes)
	if err != nil {
		return err
	}

	w.header(1, headerStyle, "pipe", "from", "to", "min", "max", "mean")
	for i, e := range data.Report.Edges {
		row := i + 2
		w.set(1, row, e.PipeID)
		w.set(2, row, e.From)
		w.set(3, row, e.To)
		w.set(4, row, e.Min)
		w.set(5, row, e.Max)
		w.set(6, row, e.Mean)
	}
	return w.err
}

// writeMassFlow снимки по строкам, трубы по столбцам
func (r *ExcelRenderer) writeMassFlow(f *excelize.File, data *Data, headerStyle int) error {
	w, err := newSheet(f, SheetMassFlow)
	if err != nil {
		return err
	}

	edges := data.Report.Edges
	names := []string{"snapshot"}
	for _, e := range edges {
		names = append(names, e.PipeID)
	}
	w.header(1, headerStyle, names...)
	if len(edges) == 0 {
		return w.err
	}

	for i, snap := range edges[0].Snapshots {
		row := i + 2
		w.set(1, row, snap)
		for j, e := range edges {
			w.set(j+2, row, e.Flow[i])
		}
	}
	return w.err
}
