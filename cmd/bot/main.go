package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/broker"
	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/health"
	"turtle_bot/internal/modules/indicators"
	"turtle_bot/internal/modules/ledger"
	"turtle_bot/internal/modules/marketdata"
	"turtle_bot/internal/modules/notify"
	"turtle_bot/internal/modules/orders"
	"turtle_bot/internal/modules/postgres"
	"turtle_bot/internal/modules/reconcile"
	"turtle_bot/internal/modules/signals"
	"turtle_bot/internal/modules/state"
	"turtle_bot/internal/runner"
	"turtle_bot/pkg/logger"
	"turtle_bot/pkg/tracing"
)

func main() {
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	logger.InfoLogger = l
	logger.FatalLogger = l
	logger.SetServiceName("turtle_bot")

	tracing.SetServiceName("turtle_bot")
	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: "127.0.0.1", Port: 6831})
	if err != nil {
		// без джегера жить можно
		logger.Error("jaeger init: %v", err)
	} else {
		defer closeTracer()
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		state.Module(),
		broker.Module(),
		marketdata.Module(),
		indicators.Module(),
		signals.Module(),
		ledger.Module(),
		orders.Module(),
		reconcile.Module(),
		notify.Module(),
		runner.Module(),
		health.Module(),
	)
	app.Run()
}
