package service

import (
	"context"
	"fmt"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
	indsvc "turtle_bot/internal/modules/indicators/service"
	mdsvc "turtle_bot/internal/modules/marketdata/service"
	"turtle_bot/pkg/logger"
)

// Broker — часть шлюза, нужная реконсиляции.
type Broker interface {
	OpenPositions(ctx context.Context) ([]models.BrokerPosition, error)
}

// Ledger — часть леджера, которую реконсиляция правит.
type Ledger interface {
	Positions() map[string]*models.Position
	Adopt(p *models.Position)
	ClosePosition(ticker string, exitPrice float64, reason models.ExitReason, at time.Time) (models.ClosedTrade, error)
}

// MismatchKind — вид расхождения между леджером и брокером.
type MismatchKind string

const (
	MismatchMissingLocal  MismatchKind = "missing_local"  // брокер видит, мы нет
	MismatchMissingBroker MismatchKind = "missing_broker" // мы видим, брокер нет
	MismatchDrift         MismatchKind = "drift"          // объём или сторона разъехались
)

type Mismatch struct {
	Ticker     string
	Kind       MismatchKind
	Detail     string
	Resolution string
}

// Report — итог прохода реконсиляции. ClosedTrades отдаём наружу:
// журнал и whipsaw-фильтр обновляет цикл, не мы.
type Report struct {
	At           time.Time
	Applied      bool
	Mismatches   []Mismatch
	ClosedTrades []models.ClosedTrade
}

// Reconciler сверяет леджер с брокером. Брокер — истина: локальное
// состояние подгоняется под него, никогда наоборот.
type Reconciler struct {
	broker   Broker
	ledger   Ledger
	calc     *indsvc.Calculator
	feed     mdsvc.Provider
	stopMult float64
	lookback int
}

func NewReconciler(cfg *config.Config, broker Broker, ledger Ledger, calc *indsvc.Calculator, feed mdsvc.Provider) *Reconciler {
	return &Reconciler{
		broker:   broker,
		ledger:   ledger,
		calc:     calc,
		feed:     feed,
		stopMult: cfg.StopMultiplier,
		lookback: cfg.HistoryLookback,
	}
}

// Run сверяет и, при apply=true, чинит. Dry-run только отчитывается.
// Идемпотентно: повторный прогон после apply находит ноль расхождений.
func (r *Reconciler) Run(ctx context.Context, apply bool) (*Report, error) {
	brokerPos, err := r.broker.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("Reconciler.Run: %w", err)
	}

	byTicker := make(map[string]models.BrokerPosition, len(brokerPos))
	for _, bp := range brokerPos {
		byTicker[bp.Ticker] = bp
	}
	local := r.ledger.Positions()

	report := &Report{At: time.Now().UTC(), Applied: apply}

	// позиции, которые брокер знает, а мы нет (или знаем иначе)
	for ticker, bp := range byTicker {
		lp, ok := local[ticker]
		if !ok {
			m := Mismatch{
				Ticker: ticker,
				Kind:   MismatchMissingLocal,
				Detail: fmt.Sprintf("broker holds %s %.4f units, ledger empty", bp.Side, bp.Units),
			}
			if apply {
				r.adoptEstimated(ctx, bp)
				m.Resolution = "adopted estimated position"
			}
			report.Mismatches = append(report.Mismatches, m)
			continue
		}
		if lp.Side != bp.Side || drift(lp.TotalUnits(), bp.Units) {
			m := Mismatch{
				Ticker: ticker,
				Kind:   MismatchDrift,
				Detail: fmt.Sprintf("ledger %s %.4f vs broker %s %.4f",
					lp.Side, lp.TotalUnits(), bp.Side, bp.Units),
			}
			if apply {
				r.adoptEstimated(ctx, bp)
				m.Resolution = "rebuilt from broker"
			}
			report.Mismatches = append(report.Mismatches, m)
		}
	}

	// позиции, которые мы знаем, а брокер нет: закрыты вне системы
	for ticker := range local {
		if _, ok := byTicker[ticker]; ok {
			continue
		}
		m := Mismatch{
			Ticker: ticker,
			Kind:   MismatchMissingBroker,
			Detail: "ledger holds position unknown to broker",
		}
		if apply {
			price, perr := r.feed.CurrentPrice(ctx, ticker)
			if perr != nil {
				// без цены закрываем по средней входа, PnL нулевой
				price = local[ticker].AvgEntryPrice()
			}
			trade, cerr := r.ledger.ClosePosition(ticker, price, models.ExitReconcile, report.At)
			if cerr != nil {
				logger.Error("reconcile close %s: %v", ticker, cerr)
			} else {
				report.ClosedTrades = append(report.ClosedTrades, trade)
				m.Resolution = "dropped local position"
			}
		}
		report.Mismatches = append(report.Mismatches, m)
	}

	return report, nil
}

// adoptEstimated строит позицию из брокерской: N оцениваем по истории,
// стоп отмеряем от неё. Помечаем Estimated, чтобы было видно в отчётах.
func (r *Reconciler) adoptEstimated(ctx context.Context, bp models.BrokerPosition) {
	n := r.estimateN(ctx, bp.Ticker)
	stop := bp.AvgEntryPrice - bp.Side.Dir()*r.stopMult*n

	r.ledger.Adopt(&models.Position{
		Ticker:   bp.Ticker,
		Side:     bp.Side,
		System:   models.System1,
		InitialN: n,
		PyramidUnits: []models.PyramidUnit{{
			EntryPrice: bp.AvgEntryPrice,
			EntryN:     n,
			Units:      bp.Units,
			OrderRef:   "reconcile-" + bp.Ticker,
			Timestamp:  time.Now().UTC(),
		}},
		StopPrice: stop,
		OpenedAt:  time.Now().UTC(),
		Estimated: true,
	})
}

func (r *Reconciler) estimateN(ctx context.Context, ticker string) float64 {
	bars, err := r.feed.History(ctx, ticker, r.lookback)
	if err != nil {
		logger.Error("reconcile estimate N %s: %v", ticker, err)
		return 0
	}
	ind, err := r.calc.Latest(bars)
	if err != nil {
		logger.Error("reconcile estimate N %s: %v", ticker, err)
		return 0
	}
	return ind.N
}

// drift — расхождение объёма больше пыли от дробных исполнений.
func drift(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d > 1e-6
}
