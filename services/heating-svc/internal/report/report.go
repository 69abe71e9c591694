// Package report выгружает результаты расчёта в CSV, XLSX и PDF.
package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"heatnet/pkg/apperror"
	"heatnet/pkg/config"
	"heatnet/services/heating-svc/internal/aggregator"
)

// Format формат выгрузки
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat разбирает формат без учёта регистра
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "excel":
		return FormatXLSX, nil
	default:
		return "", apperror.NewWithField(apperror.CodeInvalidArgument,
			fmt.Sprintf("unsupported report format %q", s), "format")
	}
}

// Options оформление отчёта
type Options struct {
	Title       string
	CompanyName string
	// MaxEdges ограничивает таблицу труб в PDF; 0 = 30
	MaxEdges int
	// PageSize A4, A3, Letter или Legal; пусто = A4
	PageSize string
	// Orientation portrait или landscape
	Orientation string
}

// FromConfig переводит секцию report конфигурации в Options
func FromConfig(c config.ReportConfig) Options {
	return Options{
		Title:       c.Title,
		CompanyName: c.CompanyName,
		MaxEdges:    c.MaxEdgesInTable,
		PageSize:    c.PageSize,
		Orientation: c.Orientation,
	}
}

// Data входные данные отчёта
type Data struct {
	RunID       string
	Name        string
	Subject     string
	CreatedAt   time.Time
	Nodes       int
	Condition   float64
	MaxResidual float64
	CacheHit    bool

	Report *aggregator.Report
}

// Renderer формирует отчёт в одном формате
type Renderer interface {
	Render(ctx context.Context, data *Data) ([]byte, error)
	Format() Format
	ContentType() string
	Extension() string
}

// New возвращает рендерер для формата
func New(format Format, opts Options) (Renderer, error) {
	switch format {
	case FormatCSV:
		return &CSVRenderer{}, nil
	case FormatXLSX:
		return &ExcelRenderer{opts: opts}, nil
	case FormatPDF:
		return &PDFRenderer{opts: opts}, nil
	default:
		return nil, apperror.NewWithField(apperror.CodeInvalidArgument,
			fmt.Sprintf("unsupported report format %q", format), "format")
	}
}

// FileName имя файла для выгрузки
func FileName(data *Data, r Renderer) string {
	base := data.RunID
	if base == "" {
		base = "report"
	}
	return "heatnet-" + base + "." + r.Extension()
}

func checkData(data *Data) error {
	if data == nil || data.Report == nil {
		return apperror.New(apperror.CodeInvalidArgument, "report data is empty")
	}
	return nil
}

func title(opts Options, data *Data) string {
	if opts.Title != "" {
		return opts.Title
	}
	if data.Name != "" {
		return "Heat Network Run: " + data.Name
	}
	return "Heat Network Run"
}

func formatFloat(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// cell адрес ячейки по номерам столбца и строки, оба с 1
func cell(col, row int) string {
	addr, _ := excelize.CoordinatesToCellName(col, row)
	return addr
}
