package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"turtle_bot/internal/models"
	brksvc "turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"
	indsvc "turtle_bot/internal/modules/indicators/service"
	ledsvc "turtle_bot/internal/modules/ledger/service"
	ordsvc "turtle_bot/internal/modules/orders/service"
	recsvc "turtle_bot/internal/modules/reconcile/service"
	sigsvc "turtle_bot/internal/modules/signals/service"
	statesvc "turtle_bot/internal/modules/state/service"
	"turtle_bot/pkg/logger"
)

func init() {
	logger.InfoLogger = zap.NewNop()
}

// fakeFeed отдаёт заранее заданные бары и цены; History может
// блокироваться для проверки замка прогона.
type fakeFeed struct {
	mu     sync.Mutex
	bars   map[string][]models.PriceBar
	prices map[string]float64
	block  chan struct{} // если не nil, History ждёт закрытия
}

func (f *fakeFeed) History(_ context.Context, ticker string, _ int) ([]models.PriceBar, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bars, ok := f.bars[ticker]
	if !ok {
		return nil, models.ErrDataUnavailable
	}
	return bars, nil
}

func (f *fakeFeed) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[ticker]
	if !ok {
		return 0, models.ErrDataUnavailable
	}
	return p, nil
}

func (f *fakeFeed) setPrice(ticker string, price float64) {
	f.mu.Lock()
	f.prices[ticker] = price
	f.mu.Unlock()
}

type captureNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *captureNotifier) Publish(e models.Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *captureNotifier) byType(t models.EventType) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func flatBars(ticker string, n int, price float64) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.PriceBar{
			Ticker:    ticker,
			Timestamp: ts.AddDate(0, 0, i),
			Open:      price, High: price + 2, Low: price - 2, Close: price,
		}
	}
	return bars
}

func testConfig(t *testing.T, universe ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Universe = universe
	cfg.EnableLongs = true
	cfg.EnableShorts = true
	cfg.EnableSystem1 = true
	cfg.EnableSystem2 = true
	cfg.NPeriod = 20
	cfg.System1EntryDays = 20
	cfg.System1ExitDays = 10
	cfg.System2EntryDays = 55
	cfg.System2ExitDays = 20
	cfg.HistoryLookback = 90
	cfg.ProximityPct = 0.05
	cfg.RiskPerUnitPct = 0.01
	cfg.StopMultiplier = 2.0
	cfg.PyramidSpacing = 0.5
	cfg.OrderRetryAttempts = 2
	cfg.OrderRetryDelay = time.Millisecond
	cfg.ZombieThreshold = 15 * time.Minute
	cfg.ReconcileApply = true
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "state.json")
	return cfg
}

type harness struct {
	cfg     *config.Config
	feed    *fakeFeed
	engine  *Engine
	ledger  *ledsvc.Ledger
	signals *sigsvc.Engine
	orders  *ordsvc.Coordinator
	paper   *brksvc.Paper
	store   statesvc.Store
	events  *captureNotifier
}

func newHarness(t *testing.T, universe ...string) *harness {
	cfg := testConfig(t, universe...)
	feed := &fakeFeed{
		bars:   make(map[string][]models.PriceBar),
		prices: make(map[string]float64),
	}
	calc := indsvc.NewCalculator(cfg)
	signals := sigsvc.NewEngine(cfg)
	ledger := ledsvc.NewLedger(cfg)
	paper := brksvc.NewPaper(100_000)
	events := &captureNotifier{}
	orders := ordsvc.NewCoordinator(cfg, paper, events)
	rec := recsvc.NewReconciler(cfg, paper, ledger, calc, feed)
	store := statesvc.NewFileStore(cfg.SnapshotPath)

	return &harness{
		cfg:     cfg,
		feed:    feed,
		ledger:  ledger,
		signals: signals,
		orders:  orders,
		paper:   paper,
		store:   store,
		events:  events,
		engine:  New(cfg, feed, calc, signals, ledger, orders, paper, rec, store, events, nil),
	}
}

func TestRunLockSkipsOverlap(t *testing.T) {
	h := newHarness(t, "AAPL")
	h.feed.block = make(chan struct{})
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100)
	h.feed.setPrice("AAPL", 100)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_ = h.engine.RunCycle(ctx) // повиснет на History
		close(done)
	}()

	// ждём, пока первый прогон возьмёт замок
	deadline := time.Now().Add(2 * time.Second)
	for {
		if !h.engine.runMu.TryLock() {
			break // замок занят первым прогоном
		}
		h.engine.runMu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("first run never took the lock")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("overlapping run must not error: %v", err)
	}
	if len(h.events.byType(models.EventCycleSkipped)) != 1 {
		t.Fatalf("expected cycle_skipped event")
	}

	close(h.feed.block)
	<-done
}

func TestCycleOpensPositionOnBreakout(t *testing.T) {
	h := newHarness(t, "AAPL")
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100) // High20 = 102, N = 4
	h.feed.setPrice("AAPL", 103)                    // пробой 20-дневного хая
	ctx := context.Background()

	// первый цикл: сигнал -> очередь -> ордер, бумажный брокер
	// исполняет мгновенно
	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if h.ledger.HasPosition("AAPL") {
		t.Fatalf("fill must be applied only after poll, not in the same pass")
	}

	// второй цикл забирает fill и открывает позицию
	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	p, ok := h.ledger.Position("AAPL")
	if !ok {
		t.Fatalf("position not opened after fill")
	}
	if p.Side != models.SideLong || p.System != models.System1 {
		t.Fatalf("wrong position: %+v", p)
	}
	// юнит: 100000*0.01/(2*4) = 125
	if p.TotalUnits() != 125 {
		t.Fatalf("units = %v, want 125", p.TotalUnits())
	}
	if len(h.events.byType(models.EventEntryFilled)) != 1 {
		t.Fatalf("expected entry_filled event")
	}
	// сигнал отработан — очередь пуста
	if len(h.engine.QueuedEntries()) != 0 {
		t.Fatalf("queue must be drained after fill")
	}
}

func TestCycleFaultIsolation(t *testing.T) {
	h := newHarness(t, "AAPL", "BROKEN")
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100)
	h.feed.setPrice("AAPL", 103)
	// BROKEN без данных: History вернёт ErrDataUnavailable
	ctx := context.Background()

	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle must survive a broken ticker: %v", err)
	}
	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if !h.ledger.HasPosition("AAPL") {
		t.Fatalf("healthy ticker must still trade")
	}
}

func TestStartupRestoresState(t *testing.T) {
	h := newHarness(t, "AAPL")
	ctx := context.Background()

	snap := models.NewSnapshot()
	snap.Positions["AAPL"] = &models.Position{
		Ticker:   "AAPL",
		Side:     models.SideLong,
		System:   models.System1,
		InitialN: 4,
		PyramidUnits: []models.PyramidUnit{
			{EntryPrice: 100, EntryN: 4, Units: 125, OrderRef: "ord-1"},
		},
		StopPrice: 92,
	}
	snap.WhipsawFilters["MSFT"] = models.WhipsawFlags{Long: true}
	if err := h.store.Save(ctx, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	if err := h.engine.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if !h.ledger.HasPosition("AAPL") {
		t.Fatalf("position not restored")
	}
	if !h.signals.Blocked("MSFT", models.SideLong) {
		t.Fatalf("whipsaw filter not restored")
	}
}

func TestEndOfDayScanRebuildsQueue(t *testing.T) {
	h := newHarness(t, "AAPL", "MSFT")
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100) // High20 = 102
	h.feed.setPrice("AAPL", 101)                    // в пределах 5% от пробоя
	h.feed.bars["MSFT"] = flatBars("MSFT", 60, 300) // High20 = 302
	h.feed.setPrice("MSFT", 250)                    // далеко от пробоя
	ctx := context.Background()

	if err := h.engine.RunEndOfDayScan(ctx); err != nil {
		t.Fatalf("eod scan: %v", err)
	}

	queue := h.engine.QueuedEntries()
	for _, s := range queue {
		if s.Ticker == "MSFT" {
			t.Fatalf("far-from-breakout ticker must not be queued")
		}
	}
	var aapl bool
	for _, s := range queue {
		if s.Ticker == "AAPL" && s.Side == models.SideLong {
			aapl = true
		}
	}
	if !aapl {
		t.Fatalf("near-breakout ticker missing from queue: %+v", queue)
	}
}

func TestCycleManagesPositionOutsideUniverse(t *testing.T) {
	h := newHarness(t, "AAPL")
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100)
	h.feed.setPrice("AAPL", 100)
	h.feed.bars["GONE"] = flatBars("GONE", 60, 100)
	h.feed.setPrice("GONE", 50) // глубоко под стопом 92
	ctx := context.Background()

	// позиция по тикеру, которого во вселенной больше нет
	if _, err := h.ledger.OpenPosition(models.Fill{
		OrderRef: "ord-1", Ticker: "GONE", Kind: models.OrderEntry,
		Side: models.SideLong, System: models.System1,
		Units: 125, Price: 100, N: 4, FilledAt: time.Now(),
	}); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if h.ledger.HasPosition("GONE") {
		t.Fatalf("stop-loss must still fire for a position whose ticker left the universe")
	}
	if len(h.events.byType(models.EventExitFilled)) != 1 {
		t.Fatalf("expected exit_filled event")
	}
}

func TestCycleDropsQueuedEntriesForRemovedTicker(t *testing.T) {
	h := newHarness(t, "AAPL")
	h.feed.bars["AAPL"] = flatBars("AAPL", 60, 100)
	h.feed.setPrice("AAPL", 100) // пробоя нет, сигнал остаётся ждать
	ctx := context.Background()

	snap := models.NewSnapshot()
	snap.EntryQueue = []models.EntrySignal{
		{Ticker: "GONE", Side: models.SideLong, System: models.System1, EntryPrice: 102, N: 4},
		{Ticker: "AAPL", Side: models.SideLong, System: models.System1, EntryPrice: 102, N: 4},
	}
	if err := h.store.Save(ctx, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if err := h.engine.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}

	if err := h.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	queue := h.engine.QueuedEntries()
	if len(queue) != 1 || queue[0].Ticker != "AAPL" {
		t.Fatalf("queue after cycle = %+v, want only AAPL", queue)
	}
}

func TestReconciliationClosesExternalPosition(t *testing.T) {
	h := newHarness(t, "AAPL")
	h.feed.setPrice("AAPL", 110)
	ctx := context.Background()

	// позиция есть у нас, но не у брокера: закрыта вне системы
	if _, err := h.ledger.OpenPosition(models.Fill{
		OrderRef: "ord-1", Ticker: "AAPL", Kind: models.OrderEntry,
		Side: models.SideLong, System: models.System1,
		Units: 125, Price: 100, N: 4, FilledAt: time.Now(),
	}); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := h.engine.RunReconciliation(ctx); err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if h.ledger.HasPosition("AAPL") {
		t.Fatalf("externally closed position must be dropped")
	}
	if len(h.events.byType(models.EventReconcileMismatch)) == 0 {
		t.Fatalf("expected reconciliation_mismatch event")
	}
	// прибыльное внешнее закрытие S1 взводит whipsaw-блок
	if !h.signals.Blocked("AAPL", models.SideLong) {
		t.Fatalf("profitable S1 close must arm the whipsaw filter")
	}
}
