package broker

import (
	"turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			NewGateway,
		),
	)
}

// NewGateway — бумажный брокер при broker.paper=true, иначе боевой REST.
func NewGateway(cfg *config.Config) service.Gateway {
	if cfg.Broker.Paper {
		return service.NewPaper(100_000)
	}
	return service.NewClient(cfg)
}
