package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"turtle_bot/internal/models"
	brksvc "turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"
	healthsvc "turtle_bot/internal/modules/health/service"
	indsvc "turtle_bot/internal/modules/indicators/service"
	ledsvc "turtle_bot/internal/modules/ledger/service"
	mdsvc "turtle_bot/internal/modules/marketdata/service"
	ordsvc "turtle_bot/internal/modules/orders/service"
	recsvc "turtle_bot/internal/modules/reconcile/service"
	sigsvc "turtle_bot/internal/modules/signals/service"
	statesvc "turtle_bot/internal/modules/state/service"
	"turtle_bot/pkg/logger"
)

// Notifier — доставка событий наружу, best-effort.
type Notifier interface {
	Publish(e models.Event)
}

// Engine — дирижёр: гоняет циклы решений, EOD-сканы и реконсиляцию.
// Оценка тикеров параллельная, но мутации (леджер, ордера, очередь)
// применяет только он сам, последовательно. runMu — замок прогона:
// два прохода одновременно не бывают, опоздавший пропускается.
type Engine struct {
	cfg     *config.Config
	feed    mdsvc.Provider
	calc    *indsvc.Calculator
	signals *sigsvc.Engine
	ledger  *ledsvc.Ledger
	orders  *ordsvc.Coordinator
	broker  brksvc.Gateway
	rec     *recsvc.Reconciler
	store   statesvc.Store
	n       Notifier
	health  *healthsvc.State

	runMu sync.Mutex

	queueMu    sync.Mutex
	entryQueue []models.EntrySignal
}

func New(
	cfg *config.Config,
	feed mdsvc.Provider,
	calc *indsvc.Calculator,
	signals *sigsvc.Engine,
	ledger *ledsvc.Ledger,
	orders *ordsvc.Coordinator,
	broker brksvc.Gateway,
	rec *recsvc.Reconciler,
	store statesvc.Store,
	n Notifier,
	health *healthsvc.State,
) *Engine {
	return &Engine{
		cfg:     cfg,
		feed:    feed,
		calc:    calc,
		signals: signals,
		ledger:  ledger,
		orders:  orders,
		broker:  broker,
		rec:     rec,
		store:   store,
		n:       n,
		health:  health,
	}
}

// Startup восстанавливает состояние из снапшота и доигрывает ордера,
// исполнившиеся за время простоя. Битый снапшот — отказ стартовать.
func (e *Engine) Startup(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	e.ledger.Restore(snap.Positions)
	e.signals.Restore(snap.WhipsawFilters)
	e.orders.Restore(snap.PendingOrders)

	e.queueMu.Lock()
	e.entryQueue = snap.EntryQueue
	e.queueMu.Unlock()

	e.applyFills(ctx, e.orders.RecoverPending(ctx))

	if err := e.saveSnapshot(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	logger.Info("startup: %d positions, %d queued entries, %d pending orders",
		len(snap.Positions), len(snap.EntryQueue), len(snap.PendingOrders))

	if e.health != nil {
		e.health.SetReady(true)
	}
	return nil
}

// applyFills применяет подтверждённые исполнения к леджеру. Дубли
// отфильтрует сам леджер по orderRef.
func (e *Engine) applyFills(ctx context.Context, fills []models.Fill) {
	for _, f := range fills {
		switch f.Kind {
		case models.OrderEntry:
			if _, err := e.ledger.OpenPosition(f); err != nil {
				logger.Error("apply entry fill %s: %v", f.Ticker, err)
				continue
			}
			e.dropQueued(f.Ticker)
			e.publish(models.NewEvent(models.EventEntryFilled, f.Ticker,
				fmt.Sprintf("entry %s %.4f @ %.2f", f.Side, f.Units, f.Price)))

		case models.OrderPyramid:
			p, err := e.ledger.AddPyramid(f)
			if err != nil {
				logger.Error("apply pyramid fill %s: %v", f.Ticker, err)
				continue
			}
			e.publish(models.NewEvent(models.EventPyramidAdded, f.Ticker,
				fmt.Sprintf("pyramid level %d @ %.2f, stop %.2f",
					len(p.PyramidUnits), f.Price, p.StopPrice)))

		case models.OrderExit:
			trade, err := e.ledger.ClosePosition(f.Ticker, f.Price, f.Reason, f.FilledAt)
			if err != nil {
				logger.Error("apply exit fill %s: %v", f.Ticker, err)
				continue
			}
			e.signals.OnPositionClosed(trade)
			if err := e.store.AppendTrade(ctx, trade); err != nil {
				logger.Error("journal %s: %v", f.Ticker, err)
			}
			e.publish(models.NewEvent(models.EventExitFilled, f.Ticker,
				fmt.Sprintf("exit %s (%s) pnl %.2f", f.Side, trade.Reason, trade.RealizedPnL)))
		}
	}
}

// dropQueued убирает из очереди сигналы по тикеру: позиция уже есть.
func (e *Engine) dropQueued(ticker string) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	keep := e.entryQueue[:0]
	for _, s := range e.entryQueue {
		if s.Ticker != ticker {
			keep = append(keep, s)
		}
	}
	e.entryQueue = keep
}

// saveSnapshot собирает и пишет состояние целиком, в конце прогона.
// Либо весь снапшот, либо никакого — частичных записей не бывает.
func (e *Engine) saveSnapshot(ctx context.Context) error {
	snap := models.NewSnapshot()
	snap.Positions = e.ledger.Positions()
	snap.PendingOrders = e.orders.Export()
	snap.WhipsawFilters = e.signals.Filters()

	e.queueMu.Lock()
	snap.EntryQueue = append([]models.EntrySignal(nil), e.entryQueue...)
	e.queueMu.Unlock()

	return e.store.Save(ctx, snap)
}

// QueuedEntries — копия очереди входов (для отчётов и тестов).
func (e *Engine) QueuedEntries() []models.EntrySignal {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return append([]models.EntrySignal(nil), e.entryQueue...)
}

func (e *Engine) publish(ev models.Event) {
	if e.n != nil {
		e.n.Publish(ev)
	}
}

func intentID(ticker string, kind models.OrderKind) string {
	return fmt.Sprintf("%s-%s-%d", ticker, kind, time.Now().UnixNano())
}
