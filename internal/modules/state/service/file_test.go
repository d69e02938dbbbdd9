package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"turtle_bot/internal/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	snap := models.NewSnapshot()
	snap.Positions["AAPL"] = &models.Position{
		Ticker:   "AAPL",
		Side:     models.SideLong,
		System:   models.System1,
		InitialN: 2.5,
		PyramidUnits: []models.PyramidUnit{
			{EntryPrice: 100, EntryN: 2.5, Units: 40, OrderRef: "ord-1"},
		},
		StopPrice: 95,
	}
	snap.WhipsawFilters["AAPL"] = models.WhipsawFlags{Long: true}
	snap.PendingOrders["intent-1"] = &models.PendingOrder{
		IntentID: "intent-1",
		Ticker:   "MSFT",
		Kind:     models.OrderEntry,
		Side:     models.SideLong,
		Units:    10,
		Price:    300,
	}

	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, ok := got.Positions["AAPL"]
	if !ok {
		t.Fatalf("position lost after round trip")
	}
	if p.StopPrice != 95 || len(p.PyramidUnits) != 1 {
		t.Fatalf("position mangled: %+v", p)
	}
	if !got.WhipsawFilters["AAPL"].Long {
		t.Fatalf("whipsaw flag lost")
	}
	if got.PendingOrders["intent-1"].Ticker != "MSFT" {
		t.Fatalf("pending order lost")
	}
}

func TestFileStoreFreshStart(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Positions) != 0 || snap.Positions == nil {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestFileStoreCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	if err := s.Save(ctx, models.NewSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// портим файл: контрольная сумма не сойдётся
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.Load(ctx); !errors.Is(err, models.ErrStateCorruption) {
		t.Fatalf("expected ErrStateCorruption, got %v", err)
	}
}

func TestFileStoreAppendTrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	trade := models.ClosedTrade{
		Ticker:      "AAPL",
		Side:        models.SideLong,
		System:      models.System1,
		Units:       40,
		ExitPrice:   110,
		RealizedPnL: 400,
		ClosedAt:    time.Now().UTC(),
		Reason:      models.ExitChannel,
	}
	if err := s.AppendTrade(ctx, trade); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendTrade(ctx, trade); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(s.jpath)
	if err != nil {
		t.Fatalf("journal missing: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 journal lines, got %d", lines)
	}
}
