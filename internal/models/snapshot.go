package models

import "time"

// WhipsawFlags — блокировки повторного входа System 1 по направлениям.
type WhipsawFlags struct {
	Long  bool `json:"long"`
	Short bool `json:"short"`
}

// Snapshot — персистентное состояние: леджер + висящие ордера + фильтры.
// Сериализуется атомарно в конце цикла (snapshot-then-save, никогда частично).
type Snapshot struct {
	Positions      map[string]*Position     `json:"positions"`
	EntryQueue     []EntrySignal            `json:"entryQueue"`
	PendingOrders  map[string]*PendingOrder `json:"pendingOrders"`
	WhipsawFilters map[string]WhipsawFlags  `json:"whipsawFilters"`
	LastUpdated    time.Time                `json:"lastUpdated"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Positions:      make(map[string]*Position),
		PendingOrders:  make(map[string]*PendingOrder),
		WhipsawFilters: make(map[string]WhipsawFlags),
	}
}
