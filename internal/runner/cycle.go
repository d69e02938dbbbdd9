package runner

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"turtle_bot/internal/models"
	sigsvc "turtle_bot/internal/modules/signals/service"
	"turtle_bot/pkg/logger"
)

type evalResult struct {
	ticker   string
	decision models.Decision
}

// RunCycle — один проход принятия решений по всей вселенной.
// Опоздавший к замку проход пропускается целиком: лучше пропустить
// цикл, чем гнать два параллельно.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.runMu.TryLock() {
		logger.Info("cycle overlap, skipping")
		e.publish(models.NewEvent(models.EventCycleSkipped, "",
			"previous run still in progress"))
		return nil
	}
	defer e.runMu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "decision_cycle")
	defer span.Finish()

	started := time.Now()

	// судьба ордеров прошлых циклов
	e.applyFills(ctx, e.orders.Poll(ctx))

	// оценка тикеров параллельная, упавший тикер не валит цикл
	results := e.evaluateUniverse(ctx)

	// применение решений — последовательно, единственным писателем
	acct, acctErr := e.broker.Account(ctx)
	if acctErr != nil {
		logger.Error("account: %v", acctErr)
	}

	var fresh []models.EntrySignal
	for _, res := range results {
		d := res.decision
		switch {
		case d.Exit != nil:
			if err := e.orders.Submit(ctx, d); err != nil {
				logger.Error("submit exit %s: %v", res.ticker, err)
			}
		case d.Pyramid != nil:
			if acctErr != nil {
				continue // без equity юнит не отмерить
			}
			units, err := e.ledger.SizeUnit(acct.Equity, d.Pyramid.N)
			if err != nil || units <= 0 {
				logger.Error("size pyramid %s: %v", res.ticker, err)
				continue
			}
			d.Pyramid.Units = units
			if err := e.orders.Submit(ctx, d); err != nil {
				logger.Error("submit pyramid %s: %v", res.ticker, err)
			}
		case d.Entry != nil:
			// входы идут через очередь: она сортирует по близости и
			// упирается в покупательную способность
			i := d.Entry
			fresh = append(fresh, models.EntrySignal{
				Ticker:     i.Ticker,
				Side:       i.Side,
				System:     i.System,
				EntryPrice: i.Price,
				N:          i.N,
				CreatedAt:  time.Now(),
			})
		}
	}

	// сигналы по тикерам, выбывшим из вселенной, из очереди выпадают
	inUniverse := make(map[string]bool, len(e.cfg.Universe))
	for _, t := range e.cfg.Universe {
		inUniverse[t] = true
	}
	e.queueMu.Lock()
	var kept []models.EntrySignal
	for _, s := range append(e.entryQueue, fresh...) {
		if inUniverse[s.Ticker] {
			kept = append(kept, s)
		}
	}
	e.entryQueue = sigsvc.SortQueue(kept)
	e.queueMu.Unlock()

	if acctErr == nil {
		e.processEntryQueue(ctx, acct)
	}

	e.applyFills(ctx, e.orders.DetectZombies(ctx, time.Now()))

	if err := e.saveSnapshot(ctx); err != nil {
		logger.Error("save snapshot: %v", err)
		return err
	}

	if e.health != nil {
		e.health.TouchCycle(time.Now())
	}
	logger.Info("cycle done in %s: %d decisions, %d queued",
		time.Since(started), len(results), len(e.QueuedEntries()))
	return nil
}

// managedTickers — вселенная плюс тикеры с открытыми позициями: позицию,
// чей тикер убрали из вселенной, всё равно ведём до выхода (стопы и
// каналы выхода проверяются каждый цикл).
func (e *Engine) managedTickers() []string {
	seen := make(map[string]bool, len(e.cfg.Universe))
	out := make([]string, 0, len(e.cfg.Universe))
	for _, t := range e.cfg.Universe {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for t := range e.ledger.Positions() {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) evaluateUniverse(ctx context.Context) []evalResult {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []evalResult
	)
	for _, ticker := range e.managedTickers() {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					logger.Error("evaluate %s panicked: %v", ticker, p)
				}
			}()

			d, err := e.evaluateTicker(ctx, ticker)
			if err != nil {
				logger.Error("evaluate %s: %v", ticker, err)
				return
			}
			if d.Empty() {
				return
			}
			mu.Lock()
			out = append(out, evalResult{ticker: ticker, decision: d})
			mu.Unlock()
		}(ticker)
	}
	wg.Wait()
	return out
}

func (e *Engine) evaluateTicker(ctx context.Context, ticker string) (models.Decision, error) {
	bars, err := e.feed.History(ctx, ticker, e.cfg.HistoryLookback)
	if err != nil {
		return models.Decision{}, err
	}
	ind, err := e.calc.Latest(bars)
	if err != nil {
		return models.Decision{}, err
	}
	price, err := e.feed.CurrentPrice(ctx, ticker)
	if err != nil {
		return models.Decision{}, err
	}

	pos, _ := e.ledger.Position(ticker)
	return e.signals.Evaluate(ticker, price, ind, pos), nil
}

// processEntryQueue проходит очередь в порядке близости к пробою и
// отправляет входы, пока хватает покупательной способности. На что не
// хватило — остаётся ждать следующего цикла.
func (e *Engine) processEntryQueue(ctx context.Context, acct models.Account) {
	e.queueMu.Lock()
	queue := e.entryQueue
	e.queueMu.Unlock()
	if len(queue) == 0 {
		return
	}

	bp := acct.BuyingPower
	var keep []models.EntrySignal

	for _, s := range queue {
		if e.ledger.HasPosition(s.Ticker) {
			continue
		}
		if s.System == models.System1 && e.signals.Blocked(s.Ticker, s.Side) {
			continue
		}
		if e.orders.HasPending(s.Ticker, models.OrderEntry) {
			keep = append(keep, s)
			continue
		}

		price, err := e.feed.CurrentPrice(ctx, s.Ticker)
		if err != nil {
			keep = append(keep, s)
			continue
		}
		if s.Side.Dir()*(price-s.EntryPrice) < 0 {
			// пробой ещё не случился — сигнал ждёт в очереди
			keep = append(keep, s)
			continue
		}

		units, err := e.ledger.SizeUnit(acct.Equity, s.N)
		if err != nil || units <= 0 {
			logger.Error("size entry %s: %v", s.Ticker, err)
			continue
		}
		cost := units * price
		if cost > bp {
			keep = append(keep, s)
			continue
		}

		d := models.Decision{Entry: &models.EntryIntent{
			ID:     intentID(s.Ticker, models.OrderEntry),
			Ticker: s.Ticker,
			Side:   s.Side,
			System: s.System,
			Price:  price,
			N:      s.N,
			Units:  units,
		}}
		if err := e.orders.Submit(ctx, d); err != nil {
			keep = append(keep, s)
			continue
		}
		bp -= cost
		keep = append(keep, s) // сигнал живёт до подтверждённого fill'а
	}

	e.queueMu.Lock()
	e.entryQueue = keep
	e.queueMu.Unlock()
}
