package orders

import (
	"turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"
	ordsvc "turtle_bot/internal/modules/orders/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("orders",
		fx.Provide(
			func(cfg *config.Config, gw service.Gateway, n ordsvc.Notifier) *ordsvc.Coordinator {
				return ordsvc.NewCoordinator(cfg, gw, n)
			},
		),
	)
}
