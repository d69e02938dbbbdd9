package service

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
	"turtle_bot/pkg/logger"
)

// Telegram шлёт события ядра в чат. Доставка best-effort: очередь
// ограничена, переполнение и ошибки API только логируются — ядро
// нотификаций не ждёт никогда.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	queue  chan models.Event
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("NewTelegram: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: cfg.Telegram.ChatID,
		queue:  make(chan models.Event, 64),
	}, nil
}

func (t *Telegram) Publish(e models.Event) {
	select {
	case t.queue <- e:
	default:
		logger.Error("notify queue full, dropping %s %s", e.Type, e.Ticker)
	}
}

func (t *Telegram) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-t.queue:
				msg := tgbot.NewMessage(t.chatID, format(e))
				if _, err := t.bot.Send(msg); err != nil {
					logger.Error("telegram send: %v", err)
				}
			}
		}
	}()
}

func format(e models.Event) string {
	icon := "ℹ️"
	switch e.Type {
	case models.EventEntryFilled:
		icon = "🟢"
	case models.EventPyramidAdded:
		icon = "📐"
	case models.EventExitFilled:
		icon = "🔴"
	case models.EventOrderFailed:
		icon = "⚠️"
	case models.EventZombieDetected:
		icon = "🧟"
	case models.EventReconcileMismatch:
		icon = "❗"
	case models.EventCycleSkipped:
		icon = "⏭"
	}
	if e.Ticker == "" {
		return fmt.Sprintf("%s %s: %s", icon, e.Type, e.Text)
	}
	return fmt.Sprintf("%s %s | %s: %s", icon, e.Type, e.Ticker, e.Text)
}

// Log — запасной нотифайер, когда телеграм не настроен.
type Log struct{}

func (Log) Publish(e models.Event) {
	logger.Info("event %s %s: %s", e.Type, e.Ticker, e.Text)
}
