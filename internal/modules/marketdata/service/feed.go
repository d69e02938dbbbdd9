package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

// Provider — рыночные данные, нужные циклу решений.
type Provider interface {
	History(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error)
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
}

// Feed — REST-история плюс WS-кэш последних цен с REST-фолбэком.
type Feed struct {
	baseURL   string
	streamURL string
	apiKey    string
	http      *http.Client
	wsDialer  wsDialer

	mu     sync.RWMutex
	prices map[string]float64

	status func(bool) // коллбэк состояния WS-коннекта (health)
}

// OnStatus регистрирует приёмник состояния стрима. Зовётся до запуска.
func (f *Feed) OnStatus(fn func(bool)) { f.status = fn }

func NewFeed(cfg *config.Config) *Feed {
	timeout := cfg.BrokerCallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Feed{
		baseURL:   strings.TrimRight(cfg.Broker.BaseURL, "/"),
		streamURL: cfg.Broker.StreamURL,
		apiKey:    cfg.Broker.APIKey,
		http:      &http.Client{Timeout: timeout},
		wsDialer:  newDialer(),
		prices:    make(map[string]float64),
	}
}

// History возвращает дневные ЗАВЕРШЁННЫЕ бары по возрастанию времени.
// Текущий (формирующийся) бар провайдер не отдаёт.
func (f *Feed) History(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("timeframe", "1Day")
	q.Set("limit", strconv.Itoa(lookback))

	data, err := f.get(ctx, "/v2/bars?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("History %s: %w: %v", ticker, models.ErrDataUnavailable, err)
	}

	var rows []struct {
		T string  `json:"t"`
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	}
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("History %s decode: %w: %v", ticker, models.ErrDataUnavailable, err)
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.T)
		if err != nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Ticker:    ticker,
			Timestamp: ts,
			Open:      r.O,
			High:      r.H,
			Low:       r.L,
			Close:     r.C,
			Volume:    r.V,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("History %s: %w: empty response", ticker, models.ErrDataUnavailable)
	}
	return bars, nil
}

// CurrentPrice — из WS-кэша; при промахе ходим в REST за последней сделкой.
func (f *Feed) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	f.mu.RLock()
	p := f.prices[ticker]
	f.mu.RUnlock()
	if p > 0 {
		return p, nil
	}

	data, err := f.get(ctx, "/v2/trades/"+url.PathEscape(ticker)+"/latest")
	if err != nil {
		return 0, fmt.Errorf("CurrentPrice %s: %w: %v", ticker, models.ErrDataUnavailable, err)
	}
	var r struct {
		Price float64 `json:"p"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil || r.Price <= 0 {
		return 0, fmt.Errorf("CurrentPrice %s: %w", ticker, models.ErrDataUnavailable)
	}
	f.setPrice(ticker, r.Price)
	return r.Price, nil
}

func (f *Feed) setPrice(ticker string, price float64) {
	f.mu.Lock()
	f.prices[ticker] = price
	f.mu.Unlock()
}

func (f *Feed) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", f.apiKey)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
