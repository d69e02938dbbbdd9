package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

func testLedger() *Ledger {
	return NewLedger(&config.Config{
		StopMultiplier: 2.0,
		RiskPerUnitPct: 0.01,
	})
}

func entryFill(ref string, price, n, units float64) models.Fill {
	return models.Fill{
		OrderRef: ref,
		Ticker:   "AAPL",
		Kind:     models.OrderEntry,
		Side:     models.SideLong,
		System:   models.System1,
		Units:    units,
		Price:    price,
		N:        n,
		FilledAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestSizeUnit(t *testing.T) {
	l := testLedger()

	// сценарий A: equity=100000, risk=1%, N=2.0 -> floor(1000/4) = 250
	units, err := l.SizeUnit(100000, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units != 250 {
		t.Fatalf("expected 250 units, got %v", units)
	}
}

func TestSizeUnitUnavailable(t *testing.T) {
	l := testLedger()
	if _, err := l.SizeUnit(100000, 0); !errors.Is(err, models.ErrSizingUnavailable) {
		t.Fatalf("expected ErrSizingUnavailable for N=0, got %v", err)
	}
	if _, err := l.SizeUnit(0, 2.0); !errors.Is(err, models.ErrSizingUnavailable) {
		t.Fatalf("expected ErrSizingUnavailable for equity=0, got %v", err)
	}
}

func TestSizeUnitFractional(t *testing.T) {
	l := NewLedger(&config.Config{
		StopMultiplier:  2.0,
		RiskPerUnitPct:  0.01,
		FractionalUnits: true,
	})
	units, err := l.SizeUnit(100000, 3.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1000.0 / 6.0
	if math.Abs(units-want) > 1e-9 {
		t.Fatalf("expected %v units, got %v", want, units)
	}
}

func TestOpenPositionSetsStop(t *testing.T) {
	l := testLedger()
	p, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StopPrice != 96 { // 100 - 2*2.0
		t.Fatalf("expected stop 96, got %v", p.StopPrice)
	}
	if len(p.PyramidUnits) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(p.PyramidUnits))
	}
	if p.InitialN != 2.0 {
		t.Fatalf("expected initialN 2.0, got %v", p.InitialN)
	}
}

func TestOpenPositionShortStopAbove(t *testing.T) {
	l := testLedger()
	f := entryFill("o1", 100, 2.0, 250)
	f.Side = models.SideShort
	p, err := l.OpenPosition(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StopPrice != 104 {
		t.Fatalf("expected short stop 104, got %v", p.StopPrice)
	}
}

func TestOpenPositionDuplicateRefIdempotent(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250))
	if err != nil {
		t.Fatalf("duplicate fill must be a no-op, got %v", err)
	}
	if len(p.PyramidUnits) != 1 {
		t.Fatalf("duplicate fill mutated ledger: %d units", len(p.PyramidUnits))
	}
}

func TestOpenPositionRejectsSecondPosition(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.OpenPosition(entryFill("o2", 101, 2.0, 250)); err == nil {
		t.Fatalf("expected error: one position per ticker")
	}
}

func TestAddPyramidImprovesStop(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// сценарий B: пирамида на 101 -> стоп 101-4 = 97 (был 96)
	f := entryFill("o2", 101, 2.0, 250)
	f.Kind = models.OrderPyramid
	p, err := l.AddPyramid(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StopPrice != 97 {
		t.Fatalf("expected stop 97, got %v", p.StopPrice)
	}
	if len(p.PyramidUnits) != 2 {
		t.Fatalf("expected 2 units, got %d", len(p.PyramidUnits))
	}
}

func TestAddPyramidNeverWorsensStop(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := entryFill("o2", 102, 2.0, 250)
	f.Kind = models.OrderPyramid
	if _, err := l.AddPyramid(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// запоздавший fill по худшей цене не должен опустить стоп (98 сейчас)
	late := entryFill("o3", 99, 2.0, 250)
	late.Kind = models.OrderPyramid
	p, err := l.AddPyramid(late)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StopPrice != 98 {
		t.Fatalf("stop moved unfavorably: %v", p.StopPrice)
	}
}

func TestAddPyramidCapsAtFour(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 2; i <= 4; i++ {
		f := entryFill(refN(i), 100+float64(i), 2.0, 250)
		f.Kind = models.OrderPyramid
		if _, err := l.AddPyramid(f); err != nil {
			t.Fatalf("pyramid %d failed: %v", i, err)
		}
	}
	f := entryFill("o5", 105, 2.0, 250)
	f.Kind = models.OrderPyramid
	if _, err := l.AddPyramid(f); err == nil {
		t.Fatalf("expected error: max 4 pyramid units")
	}
}

func TestClosePosition(t *testing.T) {
	l := testLedger()
	if _, err := l.OpenPosition(entryFill("o1", 100, 2.0, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := entryFill("o2", 101, 2.0, 100)
	f.Kind = models.OrderPyramid
	if _, err := l.AddPyramid(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC)
	rec, err := l.ClosePosition("AAPL", 105, models.ExitChannel, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Units != 200 {
		t.Fatalf("expected 200 units closed, got %v", rec.Units)
	}
	// avg entry 100.5, exit 105 -> pnl = 4.5*200 = 900
	if math.Abs(rec.RealizedPnL-900) > 1e-9 {
		t.Fatalf("expected pnl 900, got %v", rec.RealizedPnL)
	}
	if l.HasPosition("AAPL") {
		t.Fatalf("position must be removed after close")
	}
}

func TestShortClosePnL(t *testing.T) {
	l := testLedger()
	f := entryFill("o1", 100, 2.0, 100)
	f.Side = models.SideShort
	if _, err := l.OpenPosition(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := l.ClosePosition("AAPL", 90, models.ExitChannel, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(rec.RealizedPnL-1000) > 1e-9 {
		t.Fatalf("expected short pnl 1000, got %v", rec.RealizedPnL)
	}
}

func refN(i int) string {
	return "o" + string(rune('0'+i))
}
