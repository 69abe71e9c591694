package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"heatnet/services/heating-svc/internal/aggregator"
)

// CSVRenderer пишет отчёт одним CSV-файлом из нескольких секций,
// разделённых пустой строкой
type CSVRenderer struct{}

func (r *CSVRenderer) Format() Format      { return FormatCSV }
func (r *CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }
func (r *CSVRenderer) Extension() string   { return "csv" }

// csvWriter запоминает первую ошибку записи
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) write(record ...string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) blank() {
	cw.write()
}

func (cw *csvWriter) flush() error {
	if cw.err != nil {
		return cw.err
	}
	cw.w.Flush()
	return cw.w.Error()
}

func (r *CSVRenderer) Render(ctx context.Context, data *Data) ([]byte, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	cw := &csvWriter{w: w}
	rep := data.Report

	cw.write("section", "run")
	cw.write("id", data.RunID)
	cw.write("name", data.Name)
	if !data.CreatedAt.IsZero() {
		cw.write("created_at", data.CreatedAt.UTC().Format(time.RFC3339))
	}
	cw.write("snapshots", strconv.Itoa(rep.Network.Snapshots))
	cw.write("pipes", strconv.Itoa(rep.Network.Pipes))
	cw.write("peak_supply", formatFloat(rep.Network.PeakSupply, 6))
	cw.write("total_supply", formatFloat(rep.Network.TotalSupply, 6))
	cw.write("max_imbalance", fmt.Sprintf("%g", rep.Network.MaxImbalance))
	cw.blank()

	cw.write("section", "general")
	cw.write(aggregator.GeneralColumns...)
	for _, s := range rep.Snapshots {
		row := s.GeneralRow()
		rec := make([]string, len(row))
		rec[0] = strconv.Itoa(s.Snapshot)
		for i := 1; i < len(row); i++ {
			rec[i] = formatFloat(row[i], 6)
		}
		cw.write(rec...)
	}
	cw.blank()

	cw.write("section", "mass_flow")
	header := []string{"snapshot"}
	for _, e := range rep.Edges {
		header = append(header, e.PipeID)
	}
	cw.write(header...)
	if len(rep.Edges) > 0 {
		for i, snap := range rep.Edges[0].Snapshots {
			rec := []string{strconv.Itoa(snap)}
			for _, e := range rep.Edges {
				rec = append(rec, formatFloat(e.Flow[i], 6))
			}
			cw.write(rec...)
		}
	}

	if err := cw.flush(); err != nil {
		return nil, fmt.Errorf("csv write error: %w", err)
	}
	return buf.Bytes(), nil
}
