package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"heatnet/pkg/logger"
)

// Migrator применяет SQL-миграции goose из встроенной файловой системы.
// Файлы миграций лежат в корне migrations.
type Migrator struct {
	db         *sql.DB
	migrations fs.FS
}

// NewMigrator создаёт мигратор поверх пула pgx
func NewMigrator(pool *pgxpool.Pool, migrations fs.FS) *Migrator {
	return &Migrator{db: stdlib.OpenDBFromPool(pool), migrations: migrations}
}

// NewMigratorWithDB создаёт мигратор поверх готового *sql.DB
func NewMigratorWithDB(db *sql.DB, migrations fs.FS) *Migrator {
	return &Migrator{db: db, migrations: migrations}
}

func (m *Migrator) provider() (*goose.Provider, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, m.db, m.migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// Up применяет все миграции и возвращает число применённых
func (m *Migrator) Up(ctx context.Context) (int, error) {
	p, err := m.provider()
	if err != nil {
		return 0, err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	log := logger.WithComponent("migrations")
	for _, r := range results {
		log.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return len(results), nil
}

// Down откатывает последнюю миграцию
func (m *Migrator) Down(ctx context.Context) error {
	p, err := m.provider()
	if err != nil {
		return err
	}

	r, err := p.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	logger.WithComponent("migrations").Info("migration rolled back", "version", r.Source.Version)
	return nil
}

// Version возвращает текущую версию схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	p, err := m.provider()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// Close закрывает *sql.DB поверх пула. Сам пул остаётся открытым.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// RunMigrations применяет миграции, если autoMigrate включён
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, autoMigrate bool, migrations fs.FS) error {
	if !autoMigrate {
		logger.WithComponent("migrations").Info("auto-migration is disabled")
		return nil
	}

	m := NewMigrator(pool, migrations)
	defer m.Close()

	_, err := m.Up(ctx)
	return err
}
