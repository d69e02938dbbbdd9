package models

import "time"

// Side — направление позиции.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Dir — знак направления: +1 для лонга, -1 для шорта.
// Вся арифметика стопов/пирамид едина для обеих сторон через этот знак.
func (s Side) Dir() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// System — какая из двух систем владеет позицией.
// Система фиксируется при входе и не меняется до закрытия.
type System int

const (
	System1 System = 1 // вход 20д, выход 10д
	System2 System = 2 // вход 55д, выход 20д
)

// MaxPyramids — максимум юнитов в одной позиции.
const MaxPyramids = 4

// PyramidUnit — одно добавление к позиции. После создания не меняется,
// порядок в слайсе = уровень пирамиды (1..4).
type PyramidUnit struct {
	EntryPrice float64   `json:"entryPrice"`
	EntryN     float64   `json:"n"`
	Units      float64   `json:"units"`
	OrderRef   string    `json:"orderRef"`
	Timestamp  time.Time `json:"timestamp"`
}

// Position — открытая позиция по тикеру. На тикер — максимум одна,
// независимо от стороны и системы.
type Position struct {
	Ticker       string        `json:"ticker"`
	Side         Side          `json:"side"`
	System       System        `json:"system"`
	PyramidUnits []PyramidUnit `json:"pyramidUnits"`
	StopPrice    float64       `json:"stopPrice"`
	InitialN     float64       `json:"initialN"`
	OpenedAt     time.Time     `json:"openedAt"`

	// Estimated — позиция восстановлена из брокера при реконсиляции,
	// InitialN оценён по истории, а не зафиксирован при входе.
	Estimated bool `json:"estimated,omitempty"`
}

func (p *Position) LastUnit() PyramidUnit {
	return p.PyramidUnits[len(p.PyramidUnits)-1]
}

func (p *Position) TotalUnits() float64 {
	var total float64
	for _, u := range p.PyramidUnits {
		total += u.Units
	}
	return total
}

func (p *Position) EntryValue() float64 {
	var total float64
	for _, u := range p.PyramidUnits {
		total += u.Units * u.EntryPrice
	}
	return total
}

func (p *Position) AvgEntryPrice() float64 {
	units := p.TotalUnits()
	if units <= 0 {
		return 0
	}
	return p.EntryValue() / units
}

// PnLAt — нереализованный PnL при цене px (знак через Dir).
func (p *Position) PnLAt(px float64) float64 {
	return p.Side.Dir() * (px - p.AvgEntryPrice()) * p.TotalUnits()
}

// ClosedTrade — итог закрытия позиции. Все юниты закрываются разом,
// частичных выходов нет.
type ClosedTrade struct {
	Ticker       string        `json:"ticker"`
	Side         Side          `json:"side"`
	System       System        `json:"system"`
	Units        float64       `json:"units"`
	EntryValue   float64       `json:"entryValue"`
	ExitPrice    float64       `json:"exitPrice"`
	RealizedPnL  float64       `json:"realizedPnl"`
	PnLPct       float64       `json:"pnlPct"`
	OpenedAt     time.Time     `json:"openedAt"`
	ClosedAt     time.Time     `json:"closedAt"`
	HoldDuration time.Duration `json:"holdDuration"`
	Reason       ExitReason    `json:"reason"`
}
