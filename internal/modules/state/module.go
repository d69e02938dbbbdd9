package state

import (
	"context"
	"fmt"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/state/service"
	"turtle_bot/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("state",
		fx.Provide(
			NewStore,
		),
	)
}

// NewStore выбирает бэкенд снапшота по конфигу: file или postgres.
func NewStore(ctx context.Context, cfg *config.Config, tx *db.PgTxManager) (service.Store, error) {
	switch cfg.SnapshotBackend {
	case "postgres":
		if tx == nil {
			return nil, fmt.Errorf("snapshot backend postgres requires db_dsn")
		}
		return service.NewPgStore(ctx, tx)
	case "", "file":
		return service.NewFileStore(cfg.SnapshotPath), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}
