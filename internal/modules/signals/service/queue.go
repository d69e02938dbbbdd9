package service

import (
	"math"
	"sort"
	"time"

	"turtle_bot/internal/models"
)

// EntryCandidates — кандидаты в очередь входов для EOD-скана: цена в
// пределах proximityPct от границы канала. Заблокированные фильтром
// сигналы S1 в очередь не попадают.
func (e *Engine) EntryCandidates(ticker string, price float64, ind models.IndicatorSet) []models.EntrySignal {
	if price <= 0 {
		return nil
	}

	var out []models.EntrySignal
	now := time.Now()

	systems := []models.System{}
	if e.enableSystem1 {
		systems = append(systems, models.System1)
	}
	if e.enableSystem2 {
		systems = append(systems, models.System2)
	}

	for _, sys := range systems {
		if e.enableLongs {
			entry := ind.EntryHigh(sys)
			if entry > 0 && !(sys == models.System1 && e.Blocked(ticker, models.SideLong)) {
				// насколько не дотянули до пробоя; чуть выше пробоя тоже годится
				prox := (entry - price) / price
				if prox >= -0.02 && prox <= e.proximityPct {
					out = append(out, models.EntrySignal{
						Ticker:     ticker,
						Side:       models.SideLong,
						System:     sys,
						EntryPrice: entry,
						N:          ind.N,
						Proximity:  prox * 100,
						CreatedAt:  now,
					})
				}
			}
		}
		if e.enableShorts {
			entry := ind.EntryLow(sys)
			if entry > 0 && !(sys == models.System1 && e.Blocked(ticker, models.SideShort)) {
				prox := (price - entry) / price
				if prox >= -0.02 && prox <= e.proximityPct {
					out = append(out, models.EntrySignal{
						Ticker:     ticker,
						Side:       models.SideShort,
						System:     sys,
						EntryPrice: entry,
						N:          ind.N,
						Proximity:  prox * 100,
						CreatedAt:  now,
					})
				}
			}
		}
	}
	return out
}

// SortQueue: на пару (тикер, сторона) остаётся один сигнал — System 2
// приоритетнее; итог отсортирован по близости к пробою.
func SortQueue(signals []models.EntrySignal) []models.EntrySignal {
	best := make(map[[2]string]models.EntrySignal, len(signals))
	for _, s := range signals {
		key := [2]string{s.Ticker, string(s.Side)}
		cur, ok := best[key]
		if !ok || s.System > cur.System {
			best[key] = s
		}
	}

	out := make([]models.EntrySignal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Proximity) < math.Abs(out[j].Proximity)
	})
	return out
}
