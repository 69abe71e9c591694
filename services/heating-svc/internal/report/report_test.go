package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"heatnet/pkg/apperror"
	"heatnet/pkg/config"
	"heatnet/services/heating-svc/internal/aggregator"
)

func testData() *Data {
	return &Data{
		RunID:       "7f3c",
		Name:        "district-a",
		Subject:     "alice",
		CreatedAt:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Nodes:       4,
		Condition:   2.6,
		MaxResidual: 1e-15,
		Report: &aggregator.Report{
			Network: aggregator.NetworkSummary{Snapshots: 2, Pipes: 3, PeakSupply: 8, TotalSupply: 12, MaxImbalance: 0},
			Edges: []aggregator.EdgeSeries{
				{PipeID: "pipes-0", From: "producers-0", To: "forks-1", Snapshots: []int{0, 1}, Flow: []float64{8, 4}, Min: 4, Max: 8, Mean: 6},
				{PipeID: "pipes-1", From: "forks-1", To: "consumers-2", Snapshots: []int{0, 1}, Flow: []float64{5, 1}, Min: 1, Max: 5, Mean: 3},
				{PipeID: "pipes-2", From: "forks-1", To: "consumers-3", Snapshots: []int{0, 1}, Flow: []float64{3, 3}, Min: 3, Max: 3, Mean: 3},
			},
			Snapshots: []aggregator.SnapshotSummary{
				{Snapshot: 0, ProducerSupply: 8, ConsumerDemand: 8},
				{Snapshot: 1, ProducerSupply: 4, ConsumerDemand: 4},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"excel", FormatXLSX, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		r, err := New(f, Options{})
		require.NoError(t, err)
		assert.Equal(t, f, r.Format())
		assert.NotEmpty(t, r.ContentType())
		assert.Equal(t, "heatnet-7f3c."+r.Extension(), FileName(testData(), r))
	}

	_, err := New("odt", Options{})
	assert.Error(t, err)
}

func TestRender_EmptyData(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		r, _ := New(f, Options{})
		_, err := r.Render(context.Background(), &Data{})
		assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "format %s", f)
		_, err = r.Render(context.Background(), nil)
		assert.Error(t, err)
	}
}

func TestCSVRenderer(t *testing.T) {
	out, err := (&CSVRenderer{}).Render(context.Background(), testData())
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "id,7f3c\n")
	assert.Contains(t, text, strings.Join(aggregator.GeneralColumns, ","))
	assert.Contains(t, text, "snapshot,pipes-0,pipes-1,pipes-2\n")

	last := records[len(records)-1]
	assert.Equal(t, []string{"1", "4.000000", "1.000000", "3.000000"}, last)
}

func TestExcelRenderer(t *testing.T) {
	out, err := (&ExcelRenderer{opts: Options{Title: "Winter peak"}}).Render(context.Background(), testData())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetSnapshots, SheetPipes, SheetMassFlow}, f.GetSheetList())

	v, err := f.GetCellValue(SheetSummary, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Winter peak", v)

	v, _ = f.GetCellValue(SheetPipes, "A3")
	assert.Equal(t, "pipes-1", v)
	v, _ = f.GetCellValue(SheetPipes, "F2")
	assert.Equal(t, "6", v)

	v, _ = f.GetCellValue(SheetMassFlow, "D2")
	assert.Equal(t, "3", v)
	v, _ = f.GetCellValue(SheetMassFlow, "B3")
	assert.Equal(t, "4", v)

	v, _ = f.GetCellValue(SheetSnapshots, "F3")
	assert.Equal(t, "4", v, "producer supply of snapshot 1")
}

func TestPDFRenderer(t *testing.T) {
	data := testData()
	out, err := (&PDFRenderer{opts: Options{MaxEdges: 2, CompanyName: "Stadtwerke"}}).Render(context.Background(), data)
	require.NoError(t, err)
	require.Greater(t, len(out), 4)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestPDFRenderer_PageSetup(t *testing.T) {
	r := &PDFRenderer{opts: FromConfig(config.ReportConfig{PageSize: "A3", Orientation: "landscape"})}
	assert.Equal(t, pagesize.A3, r.pageSize())
	assert.Equal(t, orientation.Horizontal, r.orientation())

	def := &PDFRenderer{}
	assert.Equal(t, pagesize.A4, def.pageSize())
	assert.Equal(t, orientation.Vertical, def.orientation())

	out, err := r.Render(context.Background(), testData())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestRender_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		r, _ := New(f, Options{})
		_, err := r.Render(ctx, testData())
		assert.ErrorIs(t, err, context.Canceled, "format %s", f)
	}
}
