package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
)

// OpenPositions — открытые позиции по версии брокера (ground truth
// для реконсиляции).
func (c *Client) OpenPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v2/positions", "")
	if err != nil {
		return nil, fmt.Errorf("OpenPositions: %w", err)
	}

	var rows []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"` // long/short
		Qty           string `json:"qty"`
		AvgEntryPrice string `json:"avg_entry_price"`
	}
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, models.NewBrokerPermanent("OpenPositions decode", err)
	}

	out := make([]models.BrokerPosition, 0, len(rows))
	for _, r := range rows {
		qty, _ := strconv.ParseFloat(r.Qty, 64)
		if qty < 0 {
			qty = -qty // шорты брокер отдаёт с минусом
		}
		if qty == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(r.AvgEntryPrice, 64)
		side := models.SideLong
		if r.Side == "short" {
			side = models.SideShort
		}
		out = append(out, models.BrokerPosition{
			Ticker:        r.Symbol,
			Side:          side,
			Units:         qty,
			AvgEntryPrice: avg,
		})
	}
	return out, nil
}
