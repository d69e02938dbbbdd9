package service

import (
	"context"

	"turtle_bot/internal/models"
)

// Store — персистентное состояние движка: снапшот плюс журнал
// закрытых сделок.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context) (*models.Snapshot, error)
	AppendTrade(ctx context.Context, trade models.ClosedTrade) error
}
