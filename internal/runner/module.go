package runner

import (
	"context"
	"time"

	"turtle_bot/internal/modules/config"
	"turtle_bot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			New, // *Engine
		),
		fx.Invoke(run),
	)
}

func run(lc fx.Lifecycle, cfg *config.Config, e *Engine) {
	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := e.Startup(ctx); err != nil {
				return err
			}
			go e.loop(loopCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

// loop — расписание: цикл решений по интервалу, реконсиляция пореже,
// EOD-скан раз в сутки в назначенный час UTC.
func (e *Engine) loop(ctx context.Context) {
	cycle := time.NewTicker(e.cfg.CycleInterval)
	defer cycle.Stop()
	rec := time.NewTicker(e.cfg.ReconcileInterval)
	defer rec.Stop()
	eod := time.NewTicker(time.Minute)
	defer eod.Stop()

	var lastEOD time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-cycle.C:
			if err := e.RunCycle(ctx); err != nil {
				logger.Error("cycle: %v", err)
			}

		case <-rec.C:
			if err := e.RunReconciliation(ctx); err != nil {
				logger.Error("reconciliation: %v", err)
			}

		case now := <-eod.C:
			utc := now.UTC()
			if utc.Hour() != e.cfg.EODScanHourUTC {
				continue
			}
			if utc.Truncate(24 * time.Hour).Equal(lastEOD) {
				continue // сегодня уже сканировали
			}
			if err := e.RunEndOfDayScan(ctx); err != nil {
				logger.Error("eod scan: %v", err)
				continue
			}
			lastEOD = utc.Truncate(24 * time.Hour)
		}
	}
}
