package reconcile

import (
	brksvc "turtle_bot/internal/modules/broker/service"
	"turtle_bot/internal/modules/config"
	indsvc "turtle_bot/internal/modules/indicators/service"
	ledsvc "turtle_bot/internal/modules/ledger/service"
	mdsvc "turtle_bot/internal/modules/marketdata/service"
	"turtle_bot/internal/modules/reconcile/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("reconcile",
		fx.Provide(
			func(cfg *config.Config, gw brksvc.Gateway, l *ledsvc.Ledger, calc *indsvc.Calculator, feed mdsvc.Provider) *service.Reconciler {
				return service.NewReconciler(cfg, gw, l, calc, feed)
			},
		),
	)
}
