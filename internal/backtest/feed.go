package backtest

import (
	"context"
	"fmt"
	"sync"

	"turtle_bot/internal/models"
)

// Feed проигрывает дневную историю по шагам: History отдаёт завершённые
// бары до курсора, CurrentPrice — закрытие бара под курсором (это
// "сегодняшняя" цена реплея).
type Feed struct {
	mu      sync.Mutex
	history map[string][]models.PriceBar
	cursor  int
	length  int
}

func NewFeed(history map[string][]models.PriceBar) *Feed {
	length := 0
	for _, bars := range history {
		if length == 0 || len(bars) < length {
			length = len(bars)
		}
	}
	return &Feed{history: history, length: length}
}

// Advance сдвигает курсор на день. false — история кончилась.
func (f *Feed) Advance() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursor+1 >= f.length {
		return false
	}
	f.cursor++
	return true
}

func (f *Feed) Seek(cursor int) {
	f.mu.Lock()
	f.cursor = cursor
	f.mu.Unlock()
}

func (f *Feed) History(_ context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bars, ok := f.history[ticker]
	if !ok || f.cursor == 0 {
		return nil, fmt.Errorf("replay %s: %w", ticker, models.ErrDataUnavailable)
	}
	completed := bars[:f.cursor]
	if lookback > 0 && len(completed) > lookback {
		completed = completed[len(completed)-lookback:]
	}
	return completed, nil
}

func (f *Feed) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bars, ok := f.history[ticker]
	if !ok || f.cursor >= len(bars) {
		return 0, fmt.Errorf("replay %s: %w", ticker, models.ErrDataUnavailable)
	}
	return bars[f.cursor].Close, nil
}
