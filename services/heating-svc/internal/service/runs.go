package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"heatnet/pkg/apperror"
	"heatnet/pkg/telemetry"
	"heatnet/services/heating-svc/internal/aggregator"
	"heatnet/services/heating-svc/internal/report"
	"heatnet/services/heating-svc/internal/repository"
)

// RunDetails сохранённый расчёт с разобранным отчётом
type RunDetails struct {
	Run    *repository.Run
	Report *aggregator.Report
}

// RenderedReport готовый файл отчёта
type RenderedReport struct {
	Content     []byte
	ContentType string
	FileName    string
}

// GetRun возвращает расчёт по идентификатору
func (s *HeatingService) GetRun(ctx context.Context, id uuid.UUID) (*RunDetails, error) {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.GetRun")
	defer span.End()

	run, err := s.repo.Get(ctx, id)
	if err != nil {
		err = mapRepoError(err, id)
		telemetry.SetError(ctx, err)
		return nil, err
	}

	rep, err := decodeReport(run.Result)
	if err != nil {
		return nil, err
	}
	return &RunDetails{Run: run, Report: rep}, nil
}

// ListRuns возвращает страницу истории расчётов и общее число записей
func (s *HeatingService) ListRuns(ctx context.Context, opts repository.ListOptions) ([]*repository.RunSummary, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.ListRuns")
	defer span.End()

	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, 0, apperror.New(apperror.CodeInvalidArgument, "limit and offset must be non-negative")
	}

	runs, total, err := s.repo.List(ctx, &opts)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, 0, apperror.Wrap(err, apperror.CodeInternal, "failed to list runs")
	}
	return runs, total, nil
}

// DeleteRun удаляет расчёт из истории
func (s *HeatingService) DeleteRun(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.DeleteRun")
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		err = mapRepoError(err, id)
		telemetry.SetError(ctx, err)
		return err
	}
	return nil
}

// RenderReport формирует файл отчёта по сохранённому расчёту
func (s *HeatingService) RenderReport(ctx context.Context, id uuid.UUID, format report.Format) (*RenderedReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "HeatingService.RenderReport")
	defer span.End()

	renderer, err := report.New(format, s.reportOpts)
	if err != nil {
		return nil, err
	}

	details, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	run := details.Run
	data := &report.Data{
		RunID:       run.ID.String(),
		Name:        run.Name,
		Subject:     run.Subject,
		CreatedAt:   run.CreatedAt,
		Nodes:       run.NodeCount,
		Condition:   run.Condition,
		MaxResidual: run.MaxResidual,
		CacheHit:    run.CacheHit,
		Report:      details.Report,
	}

	content, err := renderer.Render(ctx, data)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return &RenderedReport{
		Content:     content,
		ContentType: renderer.ContentType(),
		FileName:    report.FileName(data, renderer),
	}, nil
}

func mapRepoError(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrRunNotFound) {
		return apperror.NewWithField(apperror.CodeNotFound,
			fmt.Sprintf("run %s not found", id), "id")
	}
	return apperror.Wrap(err, apperror.CodeInternal, "run repository failure")
}

func encodeReport(r *aggregator.Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

func decodeReport(data []byte) (*aggregator.Report, error) {
	var r aggregator.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stored run result is corrupted")
	}
	return &r, nil
}
