package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"heatnet/services/heating-svc/internal/aggregator"
)

const defaultMaxEdges = 30

// PDFRenderer печатный отчёт: метаданные, итоги, снимки и трубы
type PDFRenderer struct {
	opts Options
}

func (r *PDFRenderer) Format() Format      { return FormatPDF }
func (r *PDFRenderer) ContentType() string { return "application/pdf" }
func (r *PDFRenderer) Extension() string   { return "pdf" }

var (
	primaryColor   = &props.Color{Red: 192, Green: 57, Blue: 43}
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241}
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141}

	titleStyle = props.Text{
		Size:  20,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerBgColor,
	}

	h2Style = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Color: headerBgColor,
		Top:   4,
	}

	smallStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
	}

	metricValueStyle = props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: primaryColor,
	}

	metricLabelStyle = props.Text{
		Size:  8,
		Align: align.Center,
		Color: darkGrayColor,
		Top:   8,
	}

	tableHeaderStyle = &props.Cell{
		BackgroundColor: primaryColor,
	}

	tableHeaderTextStyle = props.Text{
		Size:  8,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}

	tableCellTextStyle = props.Text{
		Size:  8,
		Align: align.Center,
	}
)

func (r *PDFRenderer) Render(ctx context.Context, data *Data) ([]byte, error) {
	if err := checkData(data); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(r.pageSize()).
		WithOrientation(r.orientation()).
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	r.addHeader(m, data)
	r.addSummary(m, data)
	r.addSnapshots(m, data.Report.Snapshots)
	r.addPipes(m, data.Report.Edges)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func (r *PDFRenderer) pageSize() pagesize.Type {
	switch strings.ToUpper(r.opts.PageSize) {
	case "A3":
		return pagesize.A3
	case "LETTER":
		return pagesize.Letter
	case "LEGAL":
		return pagesize.Legal
	default:
		return pagesize.A4
	}
}

func (r *PDFRenderer) orientation() orientation.Type {
	if strings.EqualFold(r.opts.Orientation, "landscape") {
		return orientation.Horizontal
	}
	return orientation.Vertical
}

func (r *PDFRenderer) addHeader(m core.Maroto, data *Data) {
	m.AddRow(14, text.NewCol(12, title(r.opts, data), titleStyle))
	m.AddRow(4, line.NewCol(12))

	created := data.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	left := "Run: " + data.RunID
	if r.opts.CompanyName != "" {
		left = r.opts.CompanyName + " / " + left
	}
	m.AddRow(6,
		text.NewCol(8, left, smallStyle),
		text.NewCol(4, created.UTC().Format("2006-01-02 15:04:05 UTC"),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}),
	)
	m.AddRow(6)
}

func (r *PDFRenderer) addSection(m core.Maroto, title string) {
	m.AddRow(9, text.NewCol(12, title, h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))
	m.AddRow(3)
}

type metricCard struct {
	Label string
	Value string
}

func (r *PDFRenderer) addMetricCards(m core.Maroto, cards []metricCard) {
	size := 12 / len(cards)
	cols := make([]core.Col, 0, len(cards))
	for _, c := range cards {
		cols = append(cols, col.New(size).Add(
			text.New(c.Value, metricValueStyle),
			text.New(c.Label, metricLabelStyle),
		))
	}
	m.AddRow(16, cols...)
}

func (r *PDFRenderer) addSummary(m core.Maroto, data *Data) {
	n := data.Report.Network
	r.addSection(m, "Network")
	r.addMetricCards(m, []metricCard{
		{Label: "Nodes", Value: fmt.Sprintf("%d", data.Nodes)},
		{Label: "Pipes", Value: fmt.Sprintf("%d", n.Pipes)},
		{Label: "Snapshots", Value: fmt.Sprintf("%d", n.Snapshots)},
	})
	r.addMetricCards(m, []metricCard{
		{Label: "Peak Supply", Value: formatFloat(n.PeakSupply, 3)},
		{Label: "Total Supply", Value: formatFloat(n.TotalSupply, 3)},
		{Label: "Max Imbalance", Value: fmt.Sprintf("%.2g", n.MaxImbalance)},
	})
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Condition number: %.3g", data.Condition), smallStyle),
		text.NewCol(6, fmt.Sprintf("Max residual: %.3g", data.MaxResidual), smallStyle),
	)
}

func (r *PDFRenderer) addSnapshots(m core.Maroto, snaps []aggregator.SnapshotSummary) {
	r.addSection(m, "Snapshots")
	headers := []string{"Snapshot", "Producer Supply", "Consumer Demand", "Imbalance"}
	r.tableHeader(m, 3, headers)
	for _, s := range snaps {
		r.tableRow(m, 3, []string{
			fmt.Sprintf("%d", s.Snapshot),
			formatFloat(s.ProducerSupply, 4),
			formatFloat(s.ConsumerDemand, 4),
			fmt.Sprintf("%.2g", s.Imbalance),
		})
	}
}

func (r *PDFRenderer) addPipes(m core.Maroto, edges []aggregator.EdgeSeries) {
	r.addSection(m, "Pipes")
	r.tableHeader(m, 2, []string{"Pipe", "From", "To", "Min", "Max", "Mean"})

	limit := r.opts.MaxEdges
	if limit <= 0 {
		limit = defaultMaxEdges
	}
	for i, e := range edges {
		if i == limit {
			m.AddRow(6, text.NewCol(12, fmt.Sprintf("... and %d more pipes", len(edges)-limit), smallStyle))
			break
		}
		r.tableRow(m, 2, []string{
			e.PipeID, e.From, e.To,
			formatFloat(e.Min, 4), formatFloat(e.Max, 4), formatFloat(e.Mean, 4),
		})
	}
}

func (r *PDFRenderer) tableHeader(m core.Maroto, size int, names []string) {
	cols := make([]core.Col, 0, len(names))
	for _, name := range names {
		cols = append(cols, text.NewCol(size, name, tableHeaderTextStyle).WithStyle(tableHeaderStyle))
	}
	m.AddRow(7, cols...)
}

func (r *PDFRenderer) tableRow(m core.Maroto, size int, values []string) {
	cols := make([]core.Col, 0, len(values))
	for _, v := range values {
		cols = append(cols, text.NewCol(size, v, tableCellTextStyle).WithStyle(tableCellStyle))
	}
	m.AddRow(6, cols...)
}
