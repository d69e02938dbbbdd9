package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
)

// OrderStatus опрашивает ордер и нормализует статус брокера в наш enum.
func (c *Client) OrderStatus(ctx context.Context, orderRef string) (models.BrokerOrderUpdate, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v2/orders/"+orderRef, "")
	if err != nil {
		return models.BrokerOrderUpdate{}, fmt.Errorf("OrderStatus %s: %w", orderRef, err)
	}

	var r struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		FilledQty      string `json:"filled_qty"`
		FilledAvgPrice string `json:"filled_avg_price"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.BrokerOrderUpdate{}, models.NewBrokerPermanent("OrderStatus decode", err)
	}

	filled, _ := strconv.ParseFloat(r.FilledQty, 64)
	avg, _ := strconv.ParseFloat(r.FilledAvgPrice, 64)

	return models.BrokerOrderUpdate{
		OrderRef:     r.ID,
		Status:       normalizeStatus(r.Status),
		FilledUnits:  filled,
		AvgFillPrice: avg,
	}, nil
}

func normalizeStatus(raw string) models.OrderStatus {
	switch raw {
	case "new", "accepted", "pending_new":
		return models.OrderSubmitted
	case "filled":
		return models.OrderFilled
	case "partially_filled":
		return models.OrderPartiallyFilled
	case "canceled", "cancelled", "pending_cancel", "done_for_day":
		return models.OrderCancelled
	case "rejected":
		return models.OrderRejected
	case "expired":
		return models.OrderExpired
	default:
		return models.OrderSubmitted
	}
}
