package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"turtle_bot/internal/models"
	"turtle_bot/pkg/db"
)

// PgStore хранит снапшот одной строкой jsonb плюс таблицу закрытых
// сделок. Схема создаётся при старте.
type PgStore struct {
	tx *db.PgTxManager
}

func NewPgStore(ctx context.Context, tx *db.PgTxManager) (*PgStore, error) {
	s := &PgStore{tx: tx}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("PgStore: %w", err)
	}
	return s, nil
}

func (s *PgStore) migrate(ctx context.Context) error {
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS engine_snapshot (
				id         int PRIMARY KEY DEFAULT 1,
				payload    jsonb NOT NULL,
				updated_at timestamptz NOT NULL
			)`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS closed_trades (
				id         bigserial PRIMARY KEY,
				ticker     text NOT NULL,
				payload    jsonb NOT NULL,
				closed_at  timestamptz NOT NULL
			)`)
		return err
	})
}

func (s *PgStore) Save(ctx context.Context, snap *models.Snapshot) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.Save: %w", err)
		}
	}()

	snap.LastUpdated = time.Now().UTC()
	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO engine_snapshot (id, payload, updated_at)
			VALUES (1, $1, $2)
			ON CONFLICT (id) DO UPDATE SET payload = $1, updated_at = $2`,
			data, snap.LastUpdated)
		return err
	})
}

func (s *PgStore) Load(ctx context.Context) (snap *models.Snapshot, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.Load: %w", err)
		}
	}()

	var data []byte
	err = s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT payload FROM engine_snapshot WHERE id = 1`).Scan(&data)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewSnapshot(), nil
		}
		return nil, err
	}

	var out models.Snapshot
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStateCorruption, err)
	}
	if out.Positions == nil {
		return models.NewSnapshot(), nil
	}
	return &out, nil
}

func (s *PgStore) AppendTrade(ctx context.Context, trade models.ClosedTrade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgStore.AppendTrade: %w", err)
		}
	}()

	data, err := sonic.Marshal(trade)
	if err != nil {
		return err
	}
	return s.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO closed_trades (ticker, payload, closed_at)
			VALUES ($1, $2, $3)`,
			trade.Ticker, data, trade.ClosedAt)
		return err
	})
}
