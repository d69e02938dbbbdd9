package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

// Ledger владеет всеми открытыми позициями и пирамидами. Мутируется только
// подтверждёнными fill'ами (координатор ордеров шлёт их после дедупликации,
// но леджер страхуется сам: повторный fill с тем же orderRef — no-op).
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*models.Position

	stopMult   float64
	riskPct    float64
	fractional bool
}

func NewLedger(cfg *config.Config) *Ledger {
	return &Ledger{
		positions:  make(map[string]*models.Position),
		stopMult:   cfg.StopMultiplier,
		riskPct:    cfg.RiskPerUnitPct,
		fractional: cfg.FractionalUnits,
	}
}

// SizeUnit — размер юнита от риска: floor(equity*riskPct / (stopMult*N)).
// В дробном режиме floor не применяется (брокер поддерживает доли).
func (l *Ledger) SizeUnit(equity, n float64) (float64, error) {
	if n <= 0 || equity <= 0 {
		return 0, fmt.Errorf("%w: equity=%.2f n=%.4f", models.ErrSizingUnavailable, equity, n)
	}
	units := equity * l.riskPct / (l.stopMult * n)
	if !l.fractional {
		units = math.Floor(units)
	}
	return units, nil
}

// Position возвращает открытую позицию по тикеру.
func (l *Ledger) Position(ticker string) (*models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[ticker]
	return p, ok
}

func (l *Ledger) HasPosition(ticker string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.positions[ticker]
	return ok
}

// Positions — снимок мапы (сами позиции не копируются, писатель один).
func (l *Ledger) Positions() map[string]*models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*models.Position, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// OpenPosition создаёт позицию с первым юнитом и стопом entry ∓ stopMult*N.
func (l *Ledger) OpenPosition(fill models.Fill) (*models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.positions[fill.Ticker]; ok {
		// повторный fill того же ордера — идемпотентный no-op
		for _, u := range existing.PyramidUnits {
			if u.OrderRef == fill.OrderRef {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("open %s: position already exists (%s %s)",
			fill.Ticker, existing.Side, sysName(existing.System))
	}

	p := &models.Position{
		Ticker: fill.Ticker,
		Side:   fill.Side,
		System: fill.System,
		PyramidUnits: []models.PyramidUnit{{
			EntryPrice: fill.Price,
			EntryN:     fill.N,
			Units:      fill.Units,
			OrderRef:   fill.OrderRef,
			Timestamp:  fill.FilledAt,
		}},
		StopPrice: fill.Price - fill.Side.Dir()*l.stopMult*fill.N,
		InitialN:  fill.N,
		OpenedAt:  fill.FilledAt,
	}
	l.positions[fill.Ticker] = p
	return p, nil
}

// AddPyramid добавляет юнит и пересчитывает стоп от последнего входа.
// Стоп может только улучшаться (вверх для лонга, вниз для шорта) — повторные
// и пришедшие не по порядку fill'ы не двигают его назад.
func (l *Ledger) AddPyramid(fill models.Fill) (*models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[fill.Ticker]
	if !ok {
		return nil, fmt.Errorf("pyramid %s: no open position", fill.Ticker)
	}
	for _, u := range p.PyramidUnits {
		if u.OrderRef == fill.OrderRef {
			return p, nil // дубль
		}
	}
	if len(p.PyramidUnits) >= models.MaxPyramids {
		return nil, fmt.Errorf("pyramid %s: already %d units", fill.Ticker, len(p.PyramidUnits))
	}

	p.PyramidUnits = append(p.PyramidUnits, models.PyramidUnit{
		EntryPrice: fill.Price,
		EntryN:     fill.N,
		Units:      fill.Units,
		OrderRef:   fill.OrderRef,
		Timestamp:  fill.FilledAt,
	})

	newStop := fill.Price - p.Side.Dir()*l.stopMult*fill.N
	if p.Side.Dir()*(newStop-p.StopPrice) > 0 {
		p.StopPrice = newStop
	}
	return p, nil
}

// ClosePosition атомарно закрывает все юниты и убирает позицию из леджера.
func (l *Ledger) ClosePosition(ticker string, exitPrice float64, reason models.ExitReason, at time.Time) (models.ClosedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[ticker]
	if !ok {
		return models.ClosedTrade{}, fmt.Errorf("close %s: no open position", ticker)
	}

	units := p.TotalUnits()
	entryValue := p.EntryValue()
	pnl := p.Side.Dir() * (exitPrice - p.AvgEntryPrice()) * units
	pnlPct := 0.0
	if entryValue > 0 {
		pnlPct = pnl / entryValue * 100
	}

	delete(l.positions, ticker)

	return models.ClosedTrade{
		Ticker:       ticker,
		Side:         p.Side,
		System:       p.System,
		Units:        units,
		EntryValue:   entryValue,
		ExitPrice:    exitPrice,
		RealizedPnL:  pnl,
		PnLPct:       pnlPct,
		OpenedAt:     p.OpenedAt,
		ClosedAt:     at,
		HoldDuration: at.Sub(p.OpenedAt),
		Reason:       reason,
	}, nil
}

// Adopt вставляет позицию как есть (реконсиляция: брокер — истина).
func (l *Ledger) Adopt(p *models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[p.Ticker] = p
}

// Drop удаляет позицию без закрытия (закрыта вне системы).
func (l *Ledger) Drop(ticker string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[ticker]
	delete(l.positions, ticker)
	return ok
}

// Restore загружает позиции из снапшота.
func (l *Ledger) Restore(positions map[string]*models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]*models.Position, len(positions))
	for k, v := range positions {
		l.positions[k] = v
	}
}

func sysName(s models.System) string {
	if s == models.System2 {
		return "S2"
	}
	return "S1"
}
