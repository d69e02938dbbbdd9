package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"turtle_bot/internal/backtest"
	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
	"turtle_bot/pkg/logger"
)

// Реплей стратегии по дневным CSV-файлам (date,open,high,low,close,volume).
// Конфиг: .backtest.yaml в текущей директории.
func main() {
	l, _ := zap.NewProduction()
	logger.InfoLogger = l
	logger.SetServiceName("turtle_backtest")

	viper.SetConfigName(".backtest")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("equity", 100_000.0)
	viper.SetDefault("data_dir", "data")
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	dataDir := viper.GetString("data_dir")
	universe := viper.GetStringSlice("universe")
	equity := viper.GetFloat64("equity")

	history, err := loadHistory(dataDir, universe)
	if err != nil {
		panic(err)
	}

	cfg := backtestConfig()
	res, err := backtest.Run(context.Background(), cfg, equity, history)
	if err != nil {
		panic(err)
	}

	fmt.Printf("cycles:        %d\n", res.Cycles)
	fmt.Printf("closed trades: %d (win rate %.1f%%)\n", len(res.Trades), res.WinRate)
	fmt.Printf("open at end:   %d\n", len(res.OpenPositions))
	fmt.Printf("equity:        %.2f -> %.2f (pnl %.2f)\n",
		res.StartEquity, res.FinalEquity, res.TotalPnL)
	for _, t := range res.Trades {
		fmt.Printf("  %s %s S%d units=%.2f exit=%.2f pnl=%.2f (%s)\n",
			t.Ticker, t.Side, t.System, t.Units, t.ExitPrice, t.RealizedPnL, t.Reason)
	}
}

// backtestConfig — боевые дефолты стратегии плюс переопределения из
// секции strategy конфига.
func backtestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.EnableLongs = true
	cfg.EnableShorts = true
	cfg.EnableSystem1 = true
	cfg.EnableSystem2 = true
	cfg.NPeriod = 20
	cfg.System1EntryDays = 20
	cfg.System1ExitDays = 10
	cfg.System2EntryDays = 55
	cfg.System2ExitDays = 20
	cfg.HistoryLookback = 90
	cfg.ProximityPct = 0.05
	cfg.RiskPerUnitPct = 0.01
	cfg.StopMultiplier = 2.0
	cfg.PyramidSpacing = 0.5
	cfg.OrderRetryAttempts = 1
	cfg.OrderRetryDelay = time.Millisecond
	cfg.ZombieThreshold = time.Hour

	if v := viper.GetFloat64("strategy.risk_per_unit_pct"); v > 0 {
		cfg.RiskPerUnitPct = v
	}
	if v := viper.GetFloat64("strategy.stop_multiplier"); v > 0 {
		cfg.StopMultiplier = v
	}
	if v := viper.GetFloat64("strategy.pyramid_spacing"); v > 0 {
		cfg.PyramidSpacing = v
	}
	if viper.IsSet("strategy.enable_shorts") {
		cfg.EnableShorts = viper.GetBool("strategy.enable_shorts")
	}
	if viper.IsSet("strategy.use_latest_n") {
		cfg.UseLatestN = viper.GetBool("strategy.use_latest_n")
	}
	return cfg
}

// loadHistory читает <ticker>.csv из dataDir. Пустая вселенная — берём
// все csv подряд.
func loadHistory(dataDir string, universe []string) (map[string][]models.PriceBar, error) {
	if len(universe) == 0 {
		files, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
		if err != nil {
			return nil, errors.Wrap(err, "glob data dir")
		}
		for _, f := range files {
			universe = append(universe, strings.TrimSuffix(filepath.Base(f), ".csv"))
		}
	}
	if len(universe) == 0 {
		return nil, errors.Errorf("no csv files in %s", dataDir)
	}

	history := make(map[string][]models.PriceBar, len(universe))
	for _, ticker := range universe {
		bars, err := loadCSV(filepath.Join(dataDir, ticker+".csv"), ticker)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", ticker)
		}
		history[ticker] = bars
	}
	return history, nil
}

func loadCSV(path, ticker string) ([]models.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, errors.Errorf("row %d: want date,open,high,low,close[,volume]", i+1)
		}
		if i == 0 && strings.EqualFold(row[0], "date") {
			continue // заголовок
		}
		ts, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: date", i+1)
		}
		vals := make([]float64, 4)
		for j := 0; j < 4; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d col %d", i+1, j+2)
			}
			vals[j] = v
		}
		var volume float64
		if len(row) > 5 {
			volume, _ = strconv.ParseFloat(row[5], 64)
		}
		bars = append(bars, models.PriceBar{
			Ticker:    ticker,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    volume,
		})
	}
	if len(bars) == 0 {
		return nil, errors.New("empty file")
	}
	return bars, nil
}
