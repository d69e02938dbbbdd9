package notify

import (
	"context"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/notify/service"
	ordsvc "turtle_bot/internal/modules/orders/service"
	"turtle_bot/internal/runner"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewNotifier,
			// один и тот же нотифайер для координатора и для раннера
			func(n runner.Notifier) ordsvc.Notifier { return n },
		),
		fx.Invoke(start),
	)
}

// NewNotifier — телеграм при настроенном токене, иначе просто лог.
func NewNotifier(cfg *config.Config) (runner.Notifier, error) {
	if cfg.Telegram.Token == "" {
		return service.Log{}, nil
	}
	return service.NewTelegram(cfg)
}

func start(lc fx.Lifecycle, n runner.Notifier) {
	t, ok := n.(*service.Telegram)
	if !ok {
		return
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			t.Start(workerCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
