package models

import "time"

// PriceBar — завершённый дневной OHLCV-бар одного тикера.
type PriceBar struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IndicatorSet — N и каналы Дончиана на последний завершённый бар.
// Нулевое значение канала = не посчитан (истории не хватило).
type IndicatorSet struct {
	Date time.Time `json:"date"`
	N    float64   `json:"n"`

	High10 float64 `json:"high10"`
	Low10  float64 `json:"low10"`
	High20 float64 `json:"high20"`
	Low20  float64 `json:"low20"`
	High55 float64 `json:"high55"`
	Low55  float64 `json:"low55"`
}

// Входные и выходные каналы по системе-владельцу:
// S1 — вход 20д, выход 10д; S2 — вход 55д, выход 20д.

func (s IndicatorSet) EntryHigh(sys System) float64 {
	if sys == System2 {
		return s.High55
	}
	return s.High20
}

func (s IndicatorSet) EntryLow(sys System) float64 {
	if sys == System2 {
		return s.Low55
	}
	return s.Low20
}

func (s IndicatorSet) ExitHigh(sys System) float64 {
	if sys == System2 {
		return s.High20
	}
	return s.High10
}

func (s IndicatorSet) ExitLow(sys System) float64 {
	if sys == System2 {
		return s.Low20
	}
	return s.Low10
}
