package service

import "turtle_bot/internal/models"

// Whipsaw-фильтр: после прибыльного выхода System 1 повторный вход в ту же
// сторону блокируется, пока цена не пробьёт противоположный край
// 20-дневного канала (смена режима). System 2 не фильтруется никогда.

// Blocked — заблокирован ли вход System 1 по направлению.
func (e *Engine) Blocked(ticker string, side models.Side) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.filters[ticker]
	if side == models.SideLong {
		return f.Long
	}
	return f.Short
}

// OnPositionClosed вызывается после ПОДТВЕРЖДЁННОГО закрытия позиции.
// Прибыльный выход S1 взводит блок в сторону закрытой позиции.
// Безубыток и убыток флаг не трогают.
func (e *Engine) OnPositionClosed(trade models.ClosedTrade) {
	if trade.System != models.System1 || trade.RealizedPnL <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.filters[trade.Ticker]
	if trade.Side == models.SideLong {
		f.Long = true
	} else {
		f.Short = true
	}
	e.filters[trade.Ticker] = f
}

// maybeResetFilters снимает блок при пробое противоположного края канала
// входа S1: лонговый блок сбрасывает пробой 20-дневного лоу, шортовый —
// 20-дневного хая. Работает независимо от того, открыта ли позиция.
func (e *Engine) maybeResetFilters(ticker string, price float64, ind models.IndicatorSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.filters[ticker]
	if !ok || (!f.Long && !f.Short) {
		return
	}
	changed := false
	if f.Long && ind.Low20 > 0 && price < ind.Low20 {
		f.Long = false
		changed = true
	}
	if f.Short && ind.High20 > 0 && price > ind.High20 {
		f.Short = false
		changed = true
	}
	if changed {
		e.filters[ticker] = f
	}
}

// Filters — копия состояния для снапшота.
func (e *Engine) Filters() map[string]models.WhipsawFlags {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]models.WhipsawFlags, len(e.filters))
	for k, v := range e.filters {
		out[k] = v
	}
	return out
}

// Restore загружает состояние фильтров из снапшота.
func (e *Engine) Restore(filters map[string]models.WhipsawFlags) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = make(map[string]models.WhipsawFlags, len(filters))
	for k, v := range filters {
		e.filters[k] = v
	}
}
