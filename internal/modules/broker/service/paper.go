package service

import (
	"context"
	"fmt"
	"sync"

	"turtle_bot/internal/models"
)

// Paper — in-memory брокер для бэктестов и тестов. Ордера исполняются
// мгновенно по стоп-цене, позиции и equity ведутся локально.
type Paper struct {
	mu        sync.Mutex
	equity    float64
	cash      float64
	seq       int
	orders    map[string]models.BrokerOrderUpdate
	positions map[string]*models.BrokerPosition
}

func NewPaper(startEquity float64) *Paper {
	return &Paper{
		equity:    startEquity,
		cash:      startEquity,
		orders:    make(map[string]models.BrokerOrderUpdate),
		positions: make(map[string]*models.BrokerPosition),
	}
}

func (p *Paper) PlaceOrder(_ context.Context, o *models.PendingOrder) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	ref := fmt.Sprintf("paper-%d", p.seq)
	p.orders[ref] = models.BrokerOrderUpdate{
		OrderRef:     ref,
		Status:       models.OrderFilled,
		FilledUnits:  o.Units,
		AvgFillPrice: o.Price,
	}
	p.apply(o)
	return ref, nil
}

// apply обновляет бумажную позицию после мгновенного исполнения.
func (p *Paper) apply(o *models.PendingOrder) {
	pos := p.positions[o.Ticker]
	switch o.Kind {
	case models.OrderExit:
		if pos != nil {
			p.cash += pos.Side.Dir() * (o.Price - pos.AvgEntryPrice) * o.Units
			pos.Units -= o.Units
			if pos.Units <= 0 {
				delete(p.positions, o.Ticker)
			}
		}
	default:
		if pos == nil {
			p.positions[o.Ticker] = &models.BrokerPosition{
				Ticker:        o.Ticker,
				Side:          o.Side,
				Units:         o.Units,
				AvgEntryPrice: o.Price,
			}
			return
		}
		total := pos.Units + o.Units
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Units + o.Price*o.Units) / total
		pos.Units = total
	}
}

func (p *Paper) OrderStatus(_ context.Context, orderRef string) (models.BrokerOrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.orders[orderRef]
	if !ok {
		return models.BrokerOrderUpdate{}, models.NewBrokerPermanent("OrderStatus",
			fmt.Errorf("unknown order %s", orderRef))
	}
	return u, nil
}

func (p *Paper) CancelOrder(_ context.Context, orderRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.orders[orderRef]
	if !ok {
		return models.NewBrokerPermanent("CancelOrder",
			fmt.Errorf("unknown order %s", orderRef))
	}
	if !u.Status.Terminal() {
		u.Status = models.OrderCancelled
		p.orders[orderRef] = u
	}
	return nil
}

func (p *Paper) OpenPositions(_ context.Context) ([]models.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.BrokerPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) Account(_ context.Context) (models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return models.Account{Equity: p.cash, BuyingPower: p.cash * 2}, nil
}
