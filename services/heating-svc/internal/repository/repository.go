// Package repository хранит историю гидравлических расчётов.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("run not found")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Run сохранённый расчёт. Result содержит JSON агрегированного отчёта.
type Run struct {
	ID            uuid.UUID
	Name          string
	Subject       string
	NetworkHash   string
	DemandHash    string
	NodeCount     int
	PipeCount     int
	SnapshotCount int
	TotalDemand   float64
	MaxResidual   float64
	Condition     float64
	CacheHit      bool
	DurationMs    float64
	Result        []byte
	CreatedAt     time.Time
}

// Summary returns the list view of the run.
func (r *Run) Summary() *RunSummary {
	return &RunSummary{
		ID:            r.ID,
		Name:          r.Name,
		NetworkHash:   r.NetworkHash,
		NodeCount:     r.NodeCount,
		PipeCount:     r.PipeCount,
		SnapshotCount: r.SnapshotCount,
		TotalDemand:   r.TotalDemand,
		MaxResidual:   r.MaxResidual,
		CreatedAt:     r.CreatedAt,
	}
}

// RunSummary краткая информация о расчёте без результата
type RunSummary struct {
	ID            uuid.UUID
	Name          string
	NetworkHash   string
	NodeCount     int
	PipeCount     int
	SnapshotCount int
	TotalDemand   float64
	MaxResidual   float64
	CreatedAt     time.Time
}

// ListOptions опции списка. NetworkHash ограничивает расчёты одной сетью.
type ListOptions struct {
	Limit       int
	Offset      int
	NetworkHash string
}

func (o *ListOptions) normalize() ListOptions {
	var out ListOptions
	if o != nil {
		out = *o
	}
	if out.Limit <= 0 {
		out.Limit = defaultLimit
	}
	if out.Limit > maxLimit {
		out.Limit = maxLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// Repository хранилище расчётов. Списки упорядочены от новых к старым.
type Repository interface {
	// Create сохраняет расчёт; пустой ID заменяется новым
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, opts *ListOptions) ([]*RunSummary, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
	Close() error
}
