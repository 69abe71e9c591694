package repository

import (
	"context"
	"fmt"

	"heatnet/pkg/config"
	"heatnet/pkg/database"
	"heatnet/pkg/logger"
	"heatnet/services/heating-svc/migrations"
)

// New создаёт хранилище по драйверу из конфигурации. Для postgres
// открывается пул и, если включено, применяются миграции.
func New(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.WithComponent("repository").Info("using in-memory run history")
		return NewMemoryRepository(), nil
	case "postgres":
		db, err := database.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, db.Pool(), cfg.AutoMigrate, migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewPostgresRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
