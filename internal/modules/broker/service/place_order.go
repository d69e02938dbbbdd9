package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
)

// PlaceOrder отправляет стоп-лимитный ордер. Возвращает orderRef брокера.
func (c *Client) PlaceOrder(ctx context.Context, o *models.PendingOrder) (string, error) {
	side := "buy"
	if o.Side == models.SideShort {
		side = "sell"
	}
	if o.Kind == models.OrderExit {
		// выход — противоположная сторона
		if o.Side == models.SideLong {
			side = "sell"
		} else {
			side = "buy"
		}
	}

	body := map[string]any{
		"client_order_id": o.IntentID,
		"symbol":          o.Ticker,
		"qty":             fmt.Sprintf("%.9f", o.Units),
		"side":            side,
		"type":            "stop_limit",
		"time_in_force":   "day",
		"stop_price":      fmt.Sprintf("%.2f", o.Price),
	}
	payload, _ := sonic.Marshal(body)

	data, err := c.doRequest(ctx, http.MethodPost, "/v2/orders", string(payload))
	if err != nil {
		return "", fmt.Errorf("PlaceOrder %s: %w", o.Ticker, err)
	}

	var r struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return "", models.NewBrokerPermanent("PlaceOrder decode", err)
	}
	if r.ID == "" {
		return "", models.NewBrokerPermanent("PlaceOrder",
			fmt.Errorf("empty order id RAW=%s", string(data)))
	}
	return r.ID, nil
}

// CancelOrder отменяет ордер.
func (c *Client) CancelOrder(ctx context.Context, orderRef string) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, "/v2/orders/"+orderRef, ""); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderRef, err)
	}
	return nil
}
