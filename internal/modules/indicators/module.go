package indicators

import (
	"turtle_bot/internal/modules/indicators/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("indicators",
		fx.Provide(
			service.NewCalculator,
		),
	)
}
