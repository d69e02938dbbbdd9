package service

import (
	"fmt"
	"sync"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

// Engine решает по тикеру за цикл максимум одно действие, в строгом
// порядке приоритетов: пирамида -> выход (стоп важнее канала) -> вход
// (System 1 раньше System 2). Леджер не трогает — только выдаёт интенты.
// Единственное его состояние — whipsaw-фильтры.
type Engine struct {
	mu      sync.Mutex
	filters map[string]models.WhipsawFlags

	enableLongs   bool
	enableShorts  bool
	enableSystem1 bool
	enableSystem2 bool

	spacing      float64 // шаг пирамиды в N
	useLatestN   bool
	proximityPct float64
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		filters:       make(map[string]models.WhipsawFlags),
		enableLongs:   cfg.EnableLongs,
		enableShorts:  cfg.EnableShorts,
		enableSystem1: cfg.EnableSystem1,
		enableSystem2: cfg.EnableSystem2,
		spacing:       cfg.PyramidSpacing,
		useLatestN:    cfg.UseLatestN,
		proximityPct:  cfg.ProximityPct,
	}
}

// Evaluate — решение по одному тикеру. pos == nil, если позиции нет.
// Побочный эффект один: сброс whipsaw-флага при пробое противоположного
// края 20-дневного канала (смена режима), независимо от позиции.
func (e *Engine) Evaluate(ticker string, price float64, ind models.IndicatorSet, pos *models.Position) models.Decision {
	e.maybeResetFilters(ticker, price, ind)

	if pos != nil {
		if py := e.checkPyramid(price, ind, pos); py != nil {
			return models.Decision{Pyramid: py}
		}
		if ex := e.checkExit(price, ind, pos); ex != nil {
			return models.Decision{Exit: ex}
		}
		return models.Decision{}
	}

	return models.Decision{Entry: e.checkEntry(ticker, price, ind)}
}

// checkPyramid: добавляем юнит, если цена ушла в нашу сторону на spacing*N
// от последнего входа и уровней меньше четырёх.
func (e *Engine) checkPyramid(price float64, ind models.IndicatorSet, pos *models.Position) *models.PyramidIntent {
	if len(pos.PyramidUnits) >= models.MaxPyramids {
		return nil
	}

	n := pos.InitialN
	if e.useLatestN && ind.N > 0 {
		n = ind.N
	}
	if n <= 0 {
		return nil
	}

	move := pos.Side.Dir() * (price - pos.LastUnit().EntryPrice)
	if move < e.spacing*n {
		return nil
	}

	return &models.PyramidIntent{
		ID:     intentID(pos.Ticker, models.OrderPyramid),
		Ticker: pos.Ticker,
		Side:   pos.Side,
		Price:  price,
		N:      n,
		Level:  len(pos.PyramidUnits) + 1,
	}
}

// checkExit: сначала стоп (он всегда главнее), потом канал выхода
// системы-владельца (10д для S1, 20д для S2).
func (e *Engine) checkExit(price float64, ind models.IndicatorSet, pos *models.Position) *models.ExitIntent {
	dir := pos.Side.Dir()

	if dir*(price-pos.StopPrice) <= 0 {
		return &models.ExitIntent{
			ID:     intentID(pos.Ticker, models.OrderExit),
			Ticker: pos.Ticker,
			Side:   pos.Side,
			Price:  price,
			Units:  pos.TotalUnits(),
			Reason: models.ExitStopLoss,
		}
	}

	breached := false
	if pos.Side == models.SideLong {
		breached = ind.ExitLow(pos.System) > 0 && price < ind.ExitLow(pos.System)
	} else {
		breached = ind.ExitHigh(pos.System) > 0 && price > ind.ExitHigh(pos.System)
	}
	if breached {
		return &models.ExitIntent{
			ID:     intentID(pos.Ticker, models.OrderExit),
			Ticker: pos.Ticker,
			Side:   pos.Side,
			Price:  price,
			Units:  pos.TotalUnits(),
			Reason: models.ExitChannel,
		}
	}
	return nil
}

// checkEntry: System 1 раньше System 2; если S1 дал пробой (пусть даже
// задавленный whipsaw-фильтром) — S2 в этом цикле не смотрим.
func (e *Engine) checkEntry(ticker string, price float64, ind models.IndicatorSet) *models.EntryIntent {
	if e.enableSystem1 {
		if side, ok := e.breakout(price, ind, models.System1); ok {
			if e.Blocked(ticker, side) {
				return nil // S1 задавлен фильтром, S2 не оцениваем
			}
			return e.entryIntent(ticker, side, models.System1, price, ind.N)
		}
	}
	if e.enableSystem2 {
		if side, ok := e.breakout(price, ind, models.System2); ok {
			// System 2 фильтром не ограничивается
			return e.entryIntent(ticker, side, models.System2, price, ind.N)
		}
	}
	return nil
}

// breakout — пробита ли граница входного канала системы (с учётом
// включённых сторон).
func (e *Engine) breakout(price float64, ind models.IndicatorSet, sys models.System) (models.Side, bool) {
	if e.enableLongs && ind.EntryHigh(sys) > 0 && price > ind.EntryHigh(sys) {
		return models.SideLong, true
	}
	if e.enableShorts && ind.EntryLow(sys) > 0 && price < ind.EntryLow(sys) {
		return models.SideShort, true
	}
	return models.SideNone, false
}

func (e *Engine) entryIntent(ticker string, side models.Side, sys models.System, price, n float64) *models.EntryIntent {
	return &models.EntryIntent{
		ID:     intentID(ticker, models.OrderEntry),
		Ticker: ticker,
		Side:   side,
		System: sys,
		Price:  price,
		N:      n,
	}
}

func intentID(ticker string, kind models.OrderKind) string {
	return fmt.Sprintf("%s-%s-%d", ticker, kind, time.Now().UnixNano())
}
