package marketdata

import (
	"context"

	"turtle_bot/internal/modules/config"
	healthsvc "turtle_bot/internal/modules/health/service"
	"turtle_bot/internal/modules/marketdata/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			service.NewFeed,
			func(f *service.Feed) service.Provider { return f },
		),
		fx.Invoke(runStream),
	)
}

// runStream поднимает WS-стрим цен на время жизни приложения.
func runStream(lc fx.Lifecycle, cfg *config.Config, f *service.Feed, hs *healthsvc.State) {
	streamCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			f.OnStatus(hs.SetWSConnected)
			go f.StreamPrices(streamCtx, cfg.Universe)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
