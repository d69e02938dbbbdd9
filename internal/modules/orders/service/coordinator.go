package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
	"turtle_bot/pkg/logger"
	"turtle_bot/pkg/retry"
)

// Broker — часть шлюза, нужная координатору.
type Broker interface {
	PlaceOrder(ctx context.Context, o *models.PendingOrder) (string, error)
	OrderStatus(ctx context.Context, orderRef string) (models.BrokerOrderUpdate, error)
	CancelOrder(ctx context.Context, orderRef string) error
}

// Notifier — доставка событий наружу, best-effort.
type Notifier interface {
	Publish(e models.Event)
}

// Coordinator держит висящие ордера и единственный разговаривает с
// брокером про их судьбу. Леджер он не трогает: наружу отдаёт Fill,
// применяет их цикл.
type Coordinator struct {
	mu       sync.Mutex
	broker   Broker
	notifier Notifier

	policy    retry.Policy
	zombieTTL time.Duration

	pending map[string]*models.PendingOrder // по IntentID
}

func NewCoordinator(cfg *config.Config, broker Broker, notifier Notifier) *Coordinator {
	policy := retry.DefaultPolicy()
	if cfg.OrderRetryAttempts > 0 {
		policy.MaxAttempts = cfg.OrderRetryAttempts
	}
	if cfg.OrderRetryDelay > 0 {
		policy.BaseDelay = cfg.OrderRetryDelay
	}
	return &Coordinator{
		broker:    broker,
		notifier:  notifier,
		policy:    policy,
		zombieTTL: cfg.ZombieThreshold,
		pending:   make(map[string]*models.PendingOrder),
	}
}

// Submit отправляет решение цикла брокеру. Transient-ошибки ретраим
// по политике, permanent — отказ сразу, состояние не меняется.
func (c *Coordinator) Submit(ctx context.Context, d models.Decision) error {
	switch {
	case d.Exit != nil:
		i := d.Exit
		return c.place(ctx, &models.PendingOrder{
			IntentID: i.ID,
			Ticker:   i.Ticker,
			Kind:     models.OrderExit,
			Side:     i.Side,
			Units:    i.Units,
			Price:    i.Price,
			Reason:   i.Reason,
		})
	case d.Pyramid != nil:
		i := d.Pyramid
		return c.place(ctx, &models.PendingOrder{
			IntentID: i.ID,
			Ticker:   i.Ticker,
			Kind:     models.OrderPyramid,
			Side:     i.Side,
			Units:    i.Units,
			Price:    i.Price,
			N:        i.N,
			Level:    i.Level,
		})
	case d.Entry != nil:
		i := d.Entry
		return c.place(ctx, &models.PendingOrder{
			IntentID: i.ID,
			Ticker:   i.Ticker,
			Kind:     models.OrderEntry,
			Side:     i.Side,
			System:   i.System,
			Units:    i.Units,
			Price:    i.Price,
			N:        i.N,
		})
	}
	return nil
}

func (c *Coordinator) place(ctx context.Context, o *models.PendingOrder) error {
	if c.HasPending(o.Ticker, o.Kind) {
		// на (тикер, тип) — максимум один висящий ордер
		return nil
	}

	var ref string
	err := retry.Do(ctx, c.policy, models.IsBrokerTransient, func() error {
		var perr error
		ref, perr = c.broker.PlaceOrder(ctx, o)
		return perr
	})
	if err != nil {
		c.publish(models.NewEvent(models.EventOrderFailed, o.Ticker,
			fmt.Sprintf("%s %s %s: %v", o.Kind, o.Side, o.Ticker, err)))
		return fmt.Errorf("place %s %s: %w", o.Kind, o.Ticker, err)
	}

	o.OrderRef = ref
	o.Status = models.OrderSubmitted
	o.SubmittedAt = time.Now().UTC()

	c.mu.Lock()
	c.pending[o.IntentID] = o
	c.mu.Unlock()

	logger.Info("order submitted: %s %s %s units=%.4f price=%.2f ref=%s",
		o.Kind, o.Side, o.Ticker, o.Units, o.Price, ref)
	return nil
}

// Poll опрашивает висящие ордера и возвращает подтверждённые исполнения.
// Повторное применение того же филла безопасно: леджер дедуплицирует
// по orderRef.
func (c *Coordinator) Poll(ctx context.Context) []models.Fill {
	c.mu.Lock()
	orders := make([]*models.PendingOrder, 0, len(c.pending))
	for _, o := range c.pending {
		orders = append(orders, o)
	}
	c.mu.Unlock()

	var fills []models.Fill
	for _, o := range orders {
		upd, err := c.broker.OrderStatus(ctx, o.OrderRef)
		if err != nil {
			logger.Error("order status %s (%s): %v", o.OrderRef, o.Ticker, err)
			continue
		}

		switch upd.Status {
		case models.OrderFilled:
			fills = append(fills, c.toFill(o, upd))
			c.remove(o.IntentID)
		case models.OrderPartiallyFilled:
			// переходное, ждём дозаполнения или отмены остатка;
			// прогресс запоминаем — пригодится при отмене
			c.recordProgress(o, upd)
		case models.OrderCancelled, models.OrderRejected, models.OrderExpired:
			c.recordProgress(o, upd)
			c.remove(o.IntentID)
			if o.FilledUnits > 0 {
				// остаток отменён, но заполненная часть — настоящий fill
				fills = append(fills, c.partialFill(o))
				c.publish(models.NewEvent(models.EventOrderFailed, o.Ticker,
					fmt.Sprintf("%s %s %s: %s, %.4f of %.4f units filled",
						o.Kind, o.Side, o.Ticker, upd.Status, o.FilledUnits, o.Units)))
				continue
			}
			c.publish(models.NewEvent(models.EventOrderFailed, o.Ticker,
				fmt.Sprintf("%s %s %s: %s", o.Kind, o.Side, o.Ticker, upd.Status)))
		}
	}
	return fills
}

func (c *Coordinator) toFill(o *models.PendingOrder, upd models.BrokerOrderUpdate) models.Fill {
	price := upd.AvgFillPrice
	if price <= 0 {
		price = o.Price
	}
	units := upd.FilledUnits
	if units <= 0 {
		units = o.Units
	}
	return models.Fill{
		OrderRef: o.OrderRef,
		Ticker:   o.Ticker,
		Kind:     o.Kind,
		Side:     o.Side,
		System:   o.System,
		Units:    units,
		Price:    price,
		N:        o.N,
		Reason:   o.Reason,
		FilledAt: time.Now().UTC(),
	}
}

// DetectZombies находит ордера, висящие дольше порога: отменяет и один
// раз переставляет остаток; повторный зомби уходит оператору как
// расхождение. Частично исполненная часть возвращается как Fill.
func (c *Coordinator) DetectZombies(ctx context.Context, now time.Time) []models.Fill {
	c.mu.Lock()
	var stale []*models.PendingOrder
	for _, o := range c.pending {
		if now.Sub(o.SubmittedAt) > c.zombieTTL {
			stale = append(stale, o)
		}
	}
	c.mu.Unlock()

	var fills []models.Fill
	for _, o := range stale {
		// сверяемся с брокером: за время зависания ордер мог долиться
		if upd, err := c.broker.OrderStatus(ctx, o.OrderRef); err == nil {
			if upd.Status == models.OrderFilled {
				fills = append(fills, c.toFill(o, upd))
				c.remove(o.IntentID)
				continue
			}
			c.recordProgress(o, upd)
		}

		if err := c.broker.CancelOrder(ctx, o.OrderRef); err != nil {
			logger.Error("cancel zombie %s (%s): %v", o.OrderRef, o.Ticker, err)
			continue
		}
		c.remove(o.IntentID)

		if o.FilledUnits > 0 {
			fills = append(fills, c.partialFill(o))
		}
		remainder := o.Units - o.FilledUnits

		if o.Retried {
			c.publish(models.NewEvent(models.EventReconcileMismatch, o.Ticker,
				fmt.Sprintf("order %s stuck twice, cancelled for good", o.OrderRef)))
			continue
		}
		if remainder <= 0 {
			continue
		}

		c.publish(models.NewEvent(models.EventZombieDetected, o.Ticker,
			fmt.Sprintf("order %s stale, cancel and resubmit %.4f units", o.OrderRef, remainder)))

		resub := *o
		resub.OrderRef = ""
		resub.Retried = true
		resub.Units = remainder
		resub.FilledUnits = 0
		resub.AvgFillPrice = 0
		if err := c.place(ctx, &resub); err != nil {
			logger.Error("resubmit zombie %s: %v", o.Ticker, err)
		}
	}
	return fills
}

// recordProgress запоминает последний известный частичный прогресс.
func (c *Coordinator) recordProgress(o *models.PendingOrder, upd models.BrokerOrderUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if upd.FilledUnits > o.FilledUnits {
		o.FilledUnits = upd.FilledUnits
		o.AvgFillPrice = upd.AvgFillPrice
	}
}

// partialFill — fill на заполненную часть отменённого ордера.
func (c *Coordinator) partialFill(o *models.PendingOrder) models.Fill {
	price := o.AvgFillPrice
	if price <= 0 {
		price = o.Price
	}
	return models.Fill{
		OrderRef: o.OrderRef,
		Ticker:   o.Ticker,
		Kind:     o.Kind,
		Side:     o.Side,
		System:   o.System,
		Units:    o.FilledUnits,
		Price:    price,
		N:        o.N,
		Reason:   o.Reason,
		FilledAt: time.Now().UTC(),
	}
}

// RecoverPending опрашивает восстановленные из снапшота ордера при
// старте: всё, что брокер успел исполнить за время простоя, вернётся
// как Fill.
func (c *Coordinator) RecoverPending(ctx context.Context) []models.Fill {
	return c.Poll(ctx)
}

func (c *Coordinator) HasPending(ticker string, kind models.OrderKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range c.pending {
		if o.Ticker == ticker && o.Kind == kind {
			return true
		}
	}
	return false
}

func (c *Coordinator) remove(intentID string) {
	c.mu.Lock()
	delete(c.pending, intentID)
	c.mu.Unlock()
}

// Export — копия висящих ордеров для снапшота.
func (c *Coordinator) Export() map[string]*models.PendingOrder {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*models.PendingOrder, len(c.pending))
	for id, o := range c.pending {
		cp := *o
		out[id] = &cp
	}
	return out
}

func (c *Coordinator) Restore(pending map[string]*models.PendingOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = make(map[string]*models.PendingOrder, len(pending))
	for id, o := range pending {
		cp := *o
		c.pending[id] = &cp
	}
}

func (c *Coordinator) publish(e models.Event) {
	if c.notifier != nil {
		c.notifier.Publish(e)
	}
}
