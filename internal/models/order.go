package models

import "time"

// OrderKind — тип ордера. На (тикер, тип) — максимум один висящий ордер.
type OrderKind string

const (
	OrderEntry   OrderKind = "entry"
	OrderPyramid OrderKind = "pyramid"
	OrderExit    OrderKind = "exit"
)

// OrderStatus — жизненный цикл ордера:
// Created -> Submitted -> {Filled | PartiallyFilled | Cancelled | Rejected | Expired}.
// PartiallyFilled — переходное: либо дольётся до Filled, либо остаток отменяем.
type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderSubmitted       OrderStatus = "submitted"
	OrderFilled          OrderStatus = "filled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
)

// Terminal — статус конечный, ордер больше не изменится.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// PendingOrder — отправленный, но ещё не завершённый ордер.
// Поля System/N/Level/Reason тащим с интента, чтобы при подтверждении
// применить fill к леджеру без обратного поиска.
type PendingOrder struct {
	IntentID    string      `json:"intentId"`
	OrderRef    string      `json:"orderRef"`
	Ticker      string      `json:"ticker"`
	Kind        OrderKind   `json:"kind"`
	Side        Side        `json:"side"`
	Units       float64     `json:"units"`
	Price       float64     `json:"price"`
	Status      OrderStatus `json:"status"`
	SubmittedAt time.Time   `json:"submittedAt"`

	System System     `json:"system,omitempty"`
	N      float64    `json:"n,omitempty"`
	Level  int        `json:"level,omitempty"`
	Reason ExitReason `json:"reason,omitempty"`

	// Retried — зомби уже один раз отменяли и переставляли.
	Retried bool `json:"retried,omitempty"`

	// Последний известный прогресс частичного исполнения: при отмене
	// остатка заполненная часть уходит в леджер как Fill.
	FilledUnits  float64 `json:"filledUnits,omitempty"`
	AvgFillPrice float64 `json:"avgFillPrice,omitempty"`
}

// Fill — подтверждённое исполнение, единственное, что видит леджер.
type Fill struct {
	OrderRef string
	Ticker   string
	Kind     OrderKind
	Side     Side
	System   System
	Units    float64
	Price    float64
	N        float64
	Reason   ExitReason
	FilledAt time.Time
}
