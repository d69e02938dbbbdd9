package backtest

import (
	"context"
	"fmt"

	"turtle_bot/internal/models"
	brksvc "turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"
	indsvc "turtle_bot/internal/modules/indicators/service"
	ledsvc "turtle_bot/internal/modules/ledger/service"
	ordsvc "turtle_bot/internal/modules/orders/service"
	recsvc "turtle_bot/internal/modules/reconcile/service"
	sigsvc "turtle_bot/internal/modules/signals/service"
	"turtle_bot/internal/runner"
)

// Result — итог реплея.
type Result struct {
	Cycles        int
	Trades        []models.ClosedTrade
	OpenPositions map[string]*models.Position
	StartEquity   float64
	FinalEquity   float64
	TotalPnL      float64
	WinRate       float64
}

// Run прогоняет движок решений по исторической дневной истории с
// бумажным брокером. Тот же цикл, что и в бою, день за днём.
func Run(ctx context.Context, cfg *config.Config, startEquity float64, history map[string][]models.PriceBar) (*Result, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("backtest: empty history")
	}
	if len(cfg.Universe) == 0 {
		for ticker := range history {
			cfg.Universe = append(cfg.Universe, ticker)
		}
	}

	feed := NewFeed(history)
	calc := indsvc.NewCalculator(cfg)
	signals := sigsvc.NewEngine(cfg)
	ledger := ledsvc.NewLedger(cfg)
	paper := brksvc.NewPaper(startEquity)
	store := newMemStore()
	var quiet discardNotifier
	orders := ordsvc.NewCoordinator(cfg, paper, quiet)
	rec := recsvc.NewReconciler(cfg, paper, ledger, calc, feed)

	engine := runner.New(cfg, feed, calc, signals, ledger, orders, paper, rec, store, quiet, nil)
	if err := engine.Startup(ctx); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	res := &Result{StartEquity: startEquity}
	for feed.Advance() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := engine.RunCycle(ctx); err != nil {
			return nil, fmt.Errorf("backtest cycle %d: %w", res.Cycles, err)
		}
		res.Cycles++
	}
	// последний проход забирает fill'ы финального дня
	if err := engine.RunCycle(ctx); err != nil {
		return nil, fmt.Errorf("backtest final cycle: %w", err)
	}

	acct, err := paper.Account(ctx)
	if err != nil {
		return nil, err
	}

	res.Trades = store.Trades()
	res.OpenPositions = ledger.Positions()
	res.FinalEquity = acct.Equity
	res.TotalPnL = acct.Equity - startEquity

	wins := 0
	for _, t := range res.Trades {
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	if len(res.Trades) > 0 {
		res.WinRate = float64(wins) / float64(len(res.Trades)) * 100
	}
	return res, nil
}

// discardNotifier глушит события: реплею телеграм ни к чему.
type discardNotifier struct{}

func (discardNotifier) Publish(models.Event) {}
