package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock, NewPostgresRepository(mock)
}

func sampleRun() *Run {
	return &Run{
		ID:            uuid.MustParse("6f1c3d0e-6f3a-4a8e-9d0e-2b8f5c1a7e42"),
		Name:          "winter peak",
		Subject:       "bob",
		NetworkHash:   "nh",
		DemandHash:    "dh",
		NodeCount:     4,
		PipeCount:     3,
		SnapshotCount: 2,
		TotalDemand:   16,
		MaxResidual:   1e-12,
		Condition:     3.7,
		DurationMs:    12.5,
		Result:        []byte(`{"network":{"snapshots":2}}`),
	}
}

var runColumns = []string{
	"id", "name", "subject", "network_hash", "demand_hash",
	"node_count", "pipe_count", "snapshot_count",
	"total_demand", "max_residual", "condition", "cache_hit", "duration_ms",
	"result", "created_at",
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	run := sampleRun()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs(
			run.ID, run.Name, run.Subject, run.NetworkHash, run.DemandHash,
			run.NodeCount, run.PipeCount, run.SnapshotCount,
			run.TotalDemand, run.MaxResidual, run.Condition, run.CacheHit, run.DurationMs,
			run.Result,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Create(context.Background(), run))
	assert.Equal(t, now, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_AssignsID(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	run := sampleRun()
	run.ID = uuid.Nil

	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs(
			pgxmock.AnyArg(), run.Name, run.Subject, run.NetworkHash, run.DemandHash,
			run.NodeCount, run.PipeCount, run.SnapshotCount,
			run.TotalDemand, run.MaxResidual, run.Condition, run.CacheHit, run.DurationMs,
			run.Result,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	require.NoError(t, repo.Create(context.Background(), run))
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_Error(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO runs`).WillReturnError(errors.New("database error"))

	err := repo.Create(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create run")
}

func TestPostgresRepository_Get(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	want := sampleRun()
	want.CreatedAt = time.Now()

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id = \$1`).
		WithArgs(want.ID).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			want.ID, want.Name, want.Subject, want.NetworkHash, want.DemandHash,
			want.NodeCount, want.PipeCount, want.SnapshotCount,
			want.TotalDemand, want.MaxResidual, want.Condition, want.CacheHit, want.DurationMs,
			want.Result, want.CreatedAt,
		))

	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Get_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM runs`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestPostgresRepository_List(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	now := time.Now()
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM runs WHERE network_hash = \$1`).
		WithArgs("nh").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery(`SELECT .* FROM runs WHERE network_hash = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs("nh", 2, 4).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "network_hash", "node_count", "pipe_count", "snapshot_count",
			"total_demand", "max_residual", "created_at",
		}).
			AddRow(a, "second", "nh", 4, 3, 2, 16.0, 1e-12, now).
			AddRow(b, "first", "nh", 4, 3, 2, 12.0, 0.0, now.Add(-time.Hour)))

	runs, total, err := repo.List(context.Background(), &ListOptions{Limit: 2, Offset: 4, NetworkHash: "nh"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, runs, 2)
	assert.Equal(t, a, runs[0].ID)
	assert.Equal(t, 12.0, runs[1].TotalDemand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List_Defaults(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM runs WHERE TRUE`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT .* FROM runs WHERE TRUE`).
		WithArgs(defaultLimit, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "network_hash", "node_count", "pipe_count", "snapshot_count",
			"total_demand", "max_residual", "created_at",
		}))

	runs, total, err := repo.List(context.Background(), &ListOptions{Limit: -1, Offset: -3})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM runs WHERE id = \$1`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM runs WHERE id = \$1`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Ping(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, repo.Ping(context.Background()))

	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection reset"))
	assert.Error(t, repo.Ping(context.Background()))
}
