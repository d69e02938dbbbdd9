package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
)

// Gateway — минимальная поверхность брокера, нужная ядру.
type Gateway interface {
	PlaceOrder(ctx context.Context, o *models.PendingOrder) (string, error)
	OrderStatus(ctx context.Context, orderRef string) (models.BrokerOrderUpdate, error)
	CancelOrder(ctx context.Context, orderRef string) error
	OpenPositions(ctx context.Context) ([]models.BrokerPosition, error)
	Account(ctx context.Context) (models.Account, error)
}

// Client — REST-клиент брокера с подписью запросов.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.BrokerCallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.Broker.BaseURL, "/"),
		apiKey:    cfg.Broker.APIKey,
		apiSecret: cfg.Broker.APISecret,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// doRequest выполняет подписанный запрос и классифицирует ошибки:
// сеть/5xx/429 — transient (ретраим), остальные 4xx — permanent.
func (c *Client) doRequest(ctx context.Context, method, requestPath, body string) ([]byte, error) {
	op := method + " " + requestPath

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, rd)
	if err != nil {
		return nil, models.NewBrokerPermanent(op, err)
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-API-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("X-API-TIMESTAMP", ts)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// транспортные ошибки считаем transient
		return nil, models.NewBrokerTransient(op, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode/100 == 2:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
		return nil, models.NewBrokerTransient(op,
			fmt.Errorf("http %d: %s", resp.StatusCode, string(data)))
	default:
		return nil, models.NewBrokerPermanent(op,
			fmt.Errorf("http %d: %s", resp.StatusCode, string(data)))
	}
}
