package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
)

// Account — equity и доступная покупательная способность.
func (c *Client) Account(ctx context.Context) (models.Account, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v2/account", "")
	if err != nil {
		return models.Account{}, fmt.Errorf("Account: %w", err)
	}

	var r struct {
		Equity      string `json:"equity"`
		BuyingPower string `json:"buying_power"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.Account{}, models.NewBrokerPermanent("Account decode", err)
	}

	equity, _ := strconv.ParseFloat(r.Equity, 64)
	bp, _ := strconv.ParseFloat(r.BuyingPower, 64)
	return models.Account{Equity: equity, BuyingPower: bp}, nil
}
