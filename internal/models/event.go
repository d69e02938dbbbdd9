package models

import "time"

// EventType — события ядра для внешнего нотифайера.
type EventType string

const (
	EventEntryFilled       EventType = "entry_filled"
	EventPyramidAdded      EventType = "pyramid_added"
	EventExitFilled        EventType = "exit_filled"
	EventOrderFailed       EventType = "order_failed"
	EventZombieDetected    EventType = "zombie_detected"
	EventReconcileMismatch EventType = "reconciliation_mismatch"
	EventCycleSkipped      EventType = "cycle_skipped"
)

// Event — структурированная запись для доставки наружу.
// Доставка best-effort: её падение никогда не блокирует и не откатывает ядро.
type Event struct {
	Type   EventType
	Ticker string
	Text   string
	At     time.Time
}

func NewEvent(t EventType, ticker, text string) Event {
	return Event{Type: t, Ticker: ticker, Text: text, At: time.Now()}
}
