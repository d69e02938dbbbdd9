package service

import (
	"testing"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

func testEngine() *Engine {
	return NewEngine(&config.Config{
		EnableLongs:    true,
		EnableShorts:   true,
		EnableSystem1:  true,
		EnableSystem2:  true,
		PyramidSpacing: 0.5,
		ProximityPct:   0.05,
	})
}

func testIndicators() models.IndicatorSet {
	return models.IndicatorSet{
		N:      2.0,
		High10: 104, Low10: 96,
		High20: 105, Low20: 95,
		High55: 110, Low55: 90,
	}
}

func longPosition(entry float64) *models.Position {
	return &models.Position{
		Ticker: "AAPL",
		Side:   models.SideLong,
		System: models.System1,
		PyramidUnits: []models.PyramidUnit{{
			EntryPrice: entry,
			EntryN:     2.0,
			Units:      250,
			OrderRef:   "o1",
			Timestamp:  time.Now(),
		}},
		StopPrice: entry - 4.0,
		InitialN:  2.0,
	}
}

func TestEntrySystem1Long(t *testing.T) {
	e := testEngine()
	d := e.Evaluate("AAPL", 105.5, testIndicators(), nil)
	if d.Entry == nil {
		t.Fatalf("expected entry intent")
	}
	if d.Entry.System != models.System1 || d.Entry.Side != models.SideLong {
		t.Fatalf("expected S1 long, got S%d %s", d.Entry.System, d.Entry.Side)
	}
}

func TestEntrySystem2WhenNoSystem1Breakout(t *testing.T) {
	e := testEngine()
	ind := testIndicators()
	ind.High20 = 120 // S1 не пробит
	d := e.Evaluate("AAPL", 111, ind, nil)
	if d.Entry == nil || d.Entry.System != models.System2 {
		t.Fatalf("expected S2 entry, got %+v", d.Entry)
	}
}

func TestEntryShortBreakdown(t *testing.T) {
	e := testEngine()
	d := e.Evaluate("AAPL", 94.5, testIndicators(), nil)
	if d.Entry == nil || d.Entry.Side != models.SideShort || d.Entry.System != models.System1 {
		t.Fatalf("expected S1 short, got %+v", d.Entry)
	}
}

func TestNoEntryInsideChannel(t *testing.T) {
	e := testEngine()
	d := e.Evaluate("AAPL", 100, testIndicators(), nil)
	if !d.Empty() {
		t.Fatalf("expected no decision, got %+v", d)
	}
}

func TestPyramidTrigger(t *testing.T) {
	e := testEngine()
	pos := longPosition(100)

	// сценарий B: +0.5N от последнего входа
	d := e.Evaluate("AAPL", 101.0, testIndicators(), pos)
	if d.Pyramid == nil {
		t.Fatalf("expected pyramid intent")
	}
	if d.Pyramid.Level != 2 {
		t.Fatalf("expected level 2, got %d", d.Pyramid.Level)
	}

	// ниже порога — ничего
	d = e.Evaluate("AAPL", 100.9, testIndicators(), pos)
	if d.Pyramid != nil {
		t.Fatalf("pyramid below threshold must not trigger")
	}
}

func TestPyramidCapAtFour(t *testing.T) {
	e := testEngine()
	pos := longPosition(100)
	for i := 0; i < 3; i++ {
		pos.PyramidUnits = append(pos.PyramidUnits, pos.PyramidUnits[0])
	}
	d := e.Evaluate("AAPL", 120, testIndicators(), pos)
	if d.Pyramid != nil {
		t.Fatalf("must not pyramid past 4 units")
	}
}

func TestStopExitBeatsChannel(t *testing.T) {
	e := testEngine()
	pos := longPosition(100) // стоп 96

	// сценарий C: цена ровно на стопе — стоп срабатывает,
	// хотя канал (low10=96) ещё формально не пробит
	d := e.Evaluate("AAPL", 96, testIndicators(), pos)
	if d.Exit == nil {
		t.Fatalf("expected exit intent at stop")
	}
	if d.Exit.Reason != models.ExitStopLoss {
		t.Fatalf("expected stop_loss, got %s", d.Exit.Reason)
	}
}

func TestChannelExitSystem1(t *testing.T) {
	e := testEngine()
	pos := longPosition(105) // стоп 101
	pos.StopPrice = 90       // стоп далеко, сработает канал

	d := e.Evaluate("AAPL", 95.5, testIndicators(), pos)
	if d.Exit == nil || d.Exit.Reason != models.ExitChannel {
		t.Fatalf("expected channel exit, got %+v", d.Exit)
	}
}

func TestChannelExitUsesOwningSystem(t *testing.T) {
	e := testEngine()
	pos := longPosition(105)
	pos.System = models.System2
	pos.StopPrice = 80

	// low10=96 пробит, но позиция S2 выходит только по low20=95
	d := e.Evaluate("AAPL", 95.5, testIndicators(), pos)
	if d.Exit != nil {
		t.Fatalf("S2 position must ignore 10d channel, got %+v", d.Exit)
	}

	d = e.Evaluate("AAPL", 94.5, testIndicators(), pos)
	if d.Exit == nil || d.Exit.Reason != models.ExitChannel {
		t.Fatalf("expected S2 channel exit, got %+v", d.Exit)
	}
}

func TestPyramidHasPriorityOverExit(t *testing.T) {
	e := testEngine()
	pos := longPosition(100)
	// искусственно: и пирамида (движение вверх), и "пробой" канала —
	// действие одно и это пирамида
	ind := testIndicators()
	ind.Low10 = 102
	d := e.Evaluate("AAPL", 101.5, ind, pos)
	if d.Pyramid == nil {
		t.Fatalf("pyramid must win priority, got %+v", d)
	}
}

func TestWhipsawScenarioD(t *testing.T) {
	e := testEngine()
	ind := testIndicators()

	// прибыльный выход S1 long взводит блок
	e.OnPositionClosed(models.ClosedTrade{
		Ticker: "AAPL", Side: models.SideLong, System: models.System1, RealizedPnL: 500,
	})
	if !e.Blocked("AAPL", models.SideLong) {
		t.Fatalf("expected long block after profitable S1 exit")
	}

	// следующий пробой 20д хая задавлен (и S2 не подхватывает)
	d := e.Evaluate("AAPL", 105.5, ind, nil)
	if d.Entry != nil {
		t.Fatalf("blocked S1 breakout must be suppressed, got %+v", d.Entry)
	}

	// пробой 20д лоу — смена режима, блок снят
	d = e.Evaluate("AAPL", 94.5, ind, nil)
	if e.Blocked("AAPL", models.SideLong) {
		t.Fatalf("expected long block reset after 20d low breach")
	}
	// сам пробой при этом — валидный шортовый вход
	if d.Entry == nil || d.Entry.Side != models.SideShort {
		t.Fatalf("expected short entry on the breach, got %+v", d.Entry)
	}

	// после сброса лонговый вход снова разрешён
	d = e.Evaluate("AAPL", 105.5, ind, nil)
	if d.Entry == nil || d.Entry.Side != models.SideLong {
		t.Fatalf("expected long entry after reset, got %+v", d.Entry)
	}
}

func TestWhipsawIgnoresLosingExit(t *testing.T) {
	e := testEngine()
	e.OnPositionClosed(models.ClosedTrade{
		Ticker: "AAPL", Side: models.SideLong, System: models.System1, RealizedPnL: -200,
	})
	if e.Blocked("AAPL", models.SideLong) {
		t.Fatalf("losing exit must not set the filter")
	}
}

func TestWhipsawNeverBlocksSystem2(t *testing.T) {
	e := testEngine()
	e.OnPositionClosed(models.ClosedTrade{
		Ticker: "AAPL", Side: models.SideLong, System: models.System2, RealizedPnL: 900,
	})
	if e.Blocked("AAPL", models.SideLong) {
		t.Fatalf("S2 exits must not set the filter")
	}

	// и заблокированный S1 не мешает чистому S2-пробою
	e.OnPositionClosed(models.ClosedTrade{
		Ticker: "MSFT", Side: models.SideLong, System: models.System1, RealizedPnL: 100,
	})
	ind := testIndicators()
	ind.High20 = 120 // S1 пробоя нет
	d := e.Evaluate("MSFT", 111, ind, nil)
	if d.Entry == nil || d.Entry.System != models.System2 {
		t.Fatalf("S2 entry must pass the filter, got %+v", d.Entry)
	}
}

func TestFiltersRoundTrip(t *testing.T) {
	e := testEngine()
	e.OnPositionClosed(models.ClosedTrade{
		Ticker: "AAPL", Side: models.SideShort, System: models.System1, RealizedPnL: 10,
	})

	saved := e.Filters()
	e2 := testEngine()
	e2.Restore(saved)
	if !e2.Blocked("AAPL", models.SideShort) {
		t.Fatalf("filter state lost in round trip")
	}
}
