package service

import (
	"fmt"
	"math"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

// Calculator считает N (средний true range) и каналы Дончиана {10, 20, 55}
// по упорядоченной истории дневных баров одного тикера.
//
// Контракт: bars — только ЗАВЕРШЁННЫЕ бары по возрастанию даты. Канал на
// "сейчас" — экстремум последних w завершённых баров; формирующийся бар в
// историю не входит, так что внутридневной пробой всегда сверяется с
// предыдущим каналом.
type Calculator struct {
	nPeriod int
	windows [3]int // {exit S1, entry S1 / exit S2, entry S2}
}

func NewCalculator(cfg *config.Config) *Calculator {
	return &Calculator{
		nPeriod: cfg.NPeriod,
		windows: [3]int{cfg.System1ExitDays, cfg.System1EntryDays, cfg.System2EntryDays},
	}
}

// required — минимум завершённых баров: самое длинное окно каналов
// и nPeriod+1 (TR первому бару не посчитать — нет prevClose).
func (c *Calculator) required() int {
	need := c.nPeriod + 1
	for _, w := range c.windows {
		if w > need {
			need = w
		}
	}
	if need < 2 {
		need = 2
	}
	return need
}

// Latest возвращает IndicatorSet на последний завершённый бар.
func (c *Calculator) Latest(bars []models.PriceBar) (models.IndicatorSet, error) {
	if len(bars) < c.required() {
		return models.IndicatorSet{}, fmt.Errorf("%w: have %d bars, need %d",
			models.ErrInsufficientHistory, len(bars), c.required())
	}

	last := len(bars) - 1
	set := models.IndicatorSet{
		Date: bars[last].Timestamp,
		N:    c.rollingN(bars, last),
	}

	set.High10, set.Low10 = channel(bars, last, c.windows[0])
	set.High20, set.Low20 = channel(bars, last, c.windows[1])
	set.High55, set.Low55 = channel(bars, last, c.windows[2])

	return set, nil
}

// Series — IndicatorSet по каждому бару с достаточной историей (для реплея).
// Индекс результата совпадает с индексом бара; бары до прогрева — нулевые.
func (c *Calculator) Series(bars []models.PriceBar) ([]models.IndicatorSet, error) {
	if len(bars) < c.required() {
		return nil, fmt.Errorf("%w: have %d bars, need %d",
			models.ErrInsufficientHistory, len(bars), c.required())
	}

	out := make([]models.IndicatorSet, len(bars))
	for i := c.required() - 1; i < len(bars); i++ {
		out[i] = models.IndicatorSet{
			Date: bars[i].Timestamp,
			N:    c.rollingN(bars, i),
		}
		out[i].High10, out[i].Low10 = channel(bars, i, c.windows[0])
		out[i].High20, out[i].Low20 = channel(bars, i, c.windows[1])
		out[i].High55, out[i].Low55 = channel(bars, i, c.windows[2])
	}
	return out, nil
}

// rollingN — среднее TR за nPeriod баров, заканчивая баром last.
func (c *Calculator) rollingN(bars []models.PriceBar, last int) float64 {
	var sum float64
	n := 0
	for i := last; i > last-c.nPeriod && i >= 1; i-- {
		sum += trueRange(bars[i], bars[i-1])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// channel — max(high)/min(low) за w баров, заканчивая баром last включительно.
func channel(bars []models.PriceBar, last, w int) (hi, lo float64) {
	start := last - w + 1
	if start < 0 {
		start = 0
	}
	hi = bars[start].High
	lo = bars[start].Low
	for i := start + 1; i <= last; i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	return hi, lo
}

// trueRange = max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(cur, prev models.PriceBar) float64 {
	tr := cur.High - cur.Low
	if v := math.Abs(cur.High - prev.Close); v > tr {
		tr = v
	}
	if v := math.Abs(cur.Low - prev.Close); v > tr {
		tr = v
	}
	return tr
}
