package backtest

import (
	"context"
	"sync"

	"turtle_bot/internal/models"
)

// memStore — снапшоты в памяти: реплею персистентность не нужна, а
// журнал сделок и есть результат прогона.
type memStore struct {
	mu     sync.Mutex
	snap   *models.Snapshot
	trades []models.ClosedTrade
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Save(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func (s *memStore) Load(_ context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return models.NewSnapshot(), nil
	}
	return s.snap, nil
}

func (s *memStore) AppendTrade(_ context.Context, trade models.ClosedTrade) error {
	s.mu.Lock()
	s.trades = append(s.trades, trade)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Trades() []models.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClosedTrade(nil), s.trades...)
}
