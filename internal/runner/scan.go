package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/opentracing/opentracing-go"

	"turtle_bot/internal/models"
	sigsvc "turtle_bot/internal/modules/signals/service"
	"turtle_bot/pkg/logger"
)

// RunEndOfDayScan пересобирает очередь входов: проходит вселенную и
// оставляет кандидатов, которые в пределах proximityPct от пробоя.
// Старая очередь замещается целиком — свежий скан главнее.
func (e *Engine) RunEndOfDayScan(ctx context.Context) error {
	if !e.runMu.TryLock() {
		logger.Info("eod scan overlap, skipping")
		e.publish(models.NewEvent(models.EventCycleSkipped, "",
			"eod scan skipped, previous run still in progress"))
		return nil
	}
	defer e.runMu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "eod_scan")
	defer span.Finish()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []models.EntrySignal
	)
	for _, ticker := range e.cfg.Universe {
		if e.ledger.HasPosition(ticker) {
			continue
		}
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					logger.Error("eod scan %s panicked: %v", ticker, p)
				}
			}()

			bars, err := e.feed.History(ctx, ticker, e.cfg.HistoryLookback)
			if err != nil {
				logger.Error("eod scan %s: %v", ticker, err)
				return
			}
			ind, err := e.calc.Latest(bars)
			if err != nil {
				logger.Error("eod scan %s: %v", ticker, err)
				return
			}
			price, err := e.feed.CurrentPrice(ctx, ticker)
			if err != nil {
				logger.Error("eod scan %s: %v", ticker, err)
				return
			}

			if cands := e.signals.EntryCandidates(ticker, price, ind); len(cands) > 0 {
				mu.Lock()
				all = append(all, cands...)
				mu.Unlock()
			}
		}(ticker)
	}
	wg.Wait()

	queue := sigsvc.SortQueue(all)
	e.queueMu.Lock()
	e.entryQueue = queue
	e.queueMu.Unlock()

	logger.Info("eod scan: %d candidates queued", len(queue))
	return e.saveSnapshot(ctx)
}

// RunReconciliation сверяет леджер с брокером. Расхождения уходят
// нотификацией; в apply-режиме леджер подгоняется под брокера.
func (e *Engine) RunReconciliation(ctx context.Context) error {
	if !e.runMu.TryLock() {
		logger.Info("reconciliation overlap, skipping")
		return nil
	}
	defer e.runMu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "reconciliation")
	defer span.Finish()

	report, err := e.rec.Run(ctx, e.cfg.ReconcileApply)
	if err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}

	for _, trade := range report.ClosedTrades {
		e.signals.OnPositionClosed(trade)
		if err := e.store.AppendTrade(ctx, trade); err != nil {
			logger.Error("journal %s: %v", trade.Ticker, err)
		}
	}
	for _, m := range report.Mismatches {
		text := m.Detail
		if m.Resolution != "" {
			text += "; " + m.Resolution
		}
		e.publish(models.NewEvent(models.EventReconcileMismatch, m.Ticker, text))
		logger.Info("reconcile %s (%s): %s", m.Ticker, m.Kind, text)
	}

	if len(report.Mismatches) > 0 && report.Applied {
		return e.saveSnapshot(ctx)
	}
	return nil
}
