package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"heatnet/pkg/database"
	"heatnet/pkg/telemetry"
)

// PostgresRepository PostgreSQL реализация
type PostgresRepository struct {
	db database.DB
}

func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, run *Run) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Create")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO runs (
			id, name, subject, network_hash, demand_hash,
			node_count, pipe_count, snapshot_count,
			total_demand, max_residual, condition, cache_hit, duration_ms, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		run.ID,
		run.Name,
		run.Subject,
		run.NetworkHash,
		run.DemandHash,
		run.NodeCount,
		run.PipeCount,
		run.SnapshotCount,
		run.TotalDemand,
		run.MaxResidual,
		run.Condition,
		run.CacheHit,
		run.DurationMs,
		run.Result,
	).Scan(&run.CreatedAt)
	if err != nil {
		telemetry.SetError(ctx, err)
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Get")
	defer span.End()

	query := `
		SELECT
			id, name, subject, network_hash, demand_hash,
			node_count, pipe_count, snapshot_count,
			total_demand, max_residual, condition, cache_hit, duration_ms,
			result, created_at
		FROM runs
		WHERE id = $1
	`

	run := &Run{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Name,
		&run.Subject,
		&run.NetworkHash,
		&run.DemandHash,
		&run.NodeCount,
		&run.PipeCount,
		&run.SnapshotCount,
		&run.TotalDemand,
		&run.MaxResidual,
		&run.Condition,
		&run.CacheHit,
		&run.DurationMs,
		&run.Result,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		telemetry.SetError(ctx, err)
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) List(ctx context.Context, opts *ListOptions) ([]*RunSummary, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.List")
	defer span.End()

	o := opts.normalize()

	where := "TRUE"
	var args []any
	if o.NetworkHash != "" {
		where = "network_hash = $1"
		args = append(args, o.NetworkHash)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM runs WHERE %s", where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT
			id, name, network_hash, node_count, pipe_count, snapshot_count,
			total_demand, max_residual, created_at
		FROM runs
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, o.Limit, o.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	results := []*RunSummary{}
	for rows.Next() {
		s := &RunSummary{}
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.NetworkHash,
			&s.NodeCount,
			&s.PipeCount,
			&s.SnapshotCount,
			&s.TotalDemand,
			&s.MaxResidual,
			&s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}
	return results, total, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Delete")
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return database.HealthCheck(ctx, r.db)
}

func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
