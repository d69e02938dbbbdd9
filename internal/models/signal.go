package models

import "time"

// EntrySignal — кандидат на вход, живёт в очереди между циклами.
// Proximity — насколько цена близка к пробою (в процентах), по ней очередь
// отсортирована: сначала самые близкие.
type EntrySignal struct {
	Ticker     string    `json:"ticker"`
	Side       Side      `json:"side"`
	System     System    `json:"system"`
	EntryPrice float64   `json:"entryPrice"`
	N          float64   `json:"n"`
	Proximity  float64   `json:"proximity"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ExitReason — почему позиция закрывается.
type ExitReason string

const (
	ExitStopLoss  ExitReason = "stop_loss"
	ExitChannel   ExitReason = "channel_exit"
	ExitReconcile ExitReason = "reconcile" // закрыта вне системы, брокер — истина
)

// EntryIntent / PyramidIntent / ExitIntent — решения SignalEngine за цикл.
// Потребляются координатором ордеров ровно один раз.

type EntryIntent struct {
	ID     string
	Ticker string
	Side   Side
	System System
	Price  float64
	N      float64
	Units  float64
}

type PyramidIntent struct {
	ID     string
	Ticker string
	Side   Side
	Price  float64
	N      float64
	Units  float64
	Level  int // уровень пирамиды, который добавляем (2..4)
}

type ExitIntent struct {
	ID     string
	Ticker string
	Side   Side
	Price  float64
	Units  float64
	Reason ExitReason
}

// Decision — итог оценки одного тикера за цикл: максимум одно действие.
type Decision struct {
	Pyramid *PyramidIntent
	Exit    *ExitIntent
	Entry   *EntryIntent
}

func (d Decision) Empty() bool {
	return d.Pyramid == nil && d.Exit == nil && d.Entry == nil
}
