package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	brokerKeyENV      = "BROKER_API_KEY"
	brokerSecretENV   = "BROKER_API_SECRET"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`

	Broker struct {
		BaseURL   string `yaml:"base_url"`
		StreamURL string `yaml:"stream_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Paper     bool   `yaml:"paper"`
	} `yaml:"broker"`

	// Вселенная тикеров
	Universe []string `yaml:"universe"`

	// Какие стороны/системы включены
	EnableLongs   bool `yaml:"enable_longs"`
	EnableShorts  bool `yaml:"enable_shorts"`
	EnableSystem1 bool `yaml:"enable_system1"`
	EnableSystem2 bool `yaml:"enable_system2"`

	// Окна индикаторов
	NPeriod           int `yaml:"n_period"`            // окно ATR для N (20)
	System1EntryDays  int `yaml:"system1_entry_days"`  // 20
	System1ExitDays   int `yaml:"system1_exit_days"`   // 10
	System2EntryDays  int `yaml:"system2_entry_days"`  // 55
	System2ExitDays   int `yaml:"system2_exit_days"`   // 20
	HistoryLookback   int `yaml:"history_lookback"`    // дней истории на тикер
	ProximityPct      float64 `yaml:"proximity_pct"`   // близость к пробою для очереди, 0.05 = 5%

	// Риск
	RiskPerUnitPct   float64 `yaml:"risk_per_unit_pct"`  // доля equity на юнит, напр. 0.01
	StopMultiplier   float64 `yaml:"stop_multiplier"`    // стоп = entry ∓ mult*N (2.0)
	PyramidSpacing   float64 `yaml:"pyramid_spacing"`    // шаг пирамиды в N (0.5)
	UseLatestN       bool    `yaml:"use_latest_n"`       // пирамидить от свежего N вместо initialN
	FractionalUnits  bool    `yaml:"fractional_units"`   // дробные юниты (floor выключается)

	// Расписание. Интервалы — только через env (yaml.v2 не умеет
	// разбирать "1m" в time.Duration).
	CycleInterval     time.Duration `yaml:"-"`
	ReconcileInterval time.Duration `yaml:"-"`
	ReconcileApply    bool          `yaml:"reconcile_apply"` // false — только отчёт
	EODScanHourUTC    int           `yaml:"eod_scan_hour_utc"`

	// Ордера
	OrderRetryAttempts int           `yaml:"order_retry_attempts"`
	OrderRetryDelay    time.Duration `yaml:"-"`
	ZombieThreshold    time.Duration `yaml:"-"`
	BrokerCallTimeout  time.Duration `yaml:"-"`

	// Снапшот
	SnapshotBackend string `yaml:"snapshot_backend"` // file | postgres
	SnapshotPath    string `yaml:"snapshot_path"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		EnableLongs:   true,
		EnableShorts:  boolFromEnv("ENABLE_SHORTS", true),
		EnableSystem1: true,
		EnableSystem2: true,

		NPeriod:          intFromEnv("N_PERIOD", 20),
		System1EntryDays: 20,
		System1ExitDays:  10,
		System2EntryDays: 55,
		System2ExitDays:  20,
		HistoryLookback:  intFromEnv("HISTORY_LOOKBACK", 90),
		ProximityPct:     floatFromEnv("PROXIMITY_PCT", 0.05),

		RiskPerUnitPct:  floatFromEnv("RISK_PER_UNIT_PCT", 0.01),
		StopMultiplier:  floatFromEnv("STOP_MULTIPLIER", 2.0),
		PyramidSpacing:  floatFromEnv("PYRAMID_SPACING", 0.5),
		UseLatestN:      boolFromEnv("USE_LATEST_N", false),
		FractionalUnits: boolFromEnv("FRACTIONAL_UNITS", false),

		CycleInterval:     durationFromEnv("CYCLE_INTERVAL", "1m"),
		ReconcileInterval: durationFromEnv("RECONCILE_INTERVAL", "1h"),
		ReconcileApply:    boolFromEnv("RECONCILE_APPLY", true),
		EODScanHourUTC:    intFromEnv("EOD_SCAN_HOUR_UTC", 21),

		OrderRetryAttempts: intFromEnv("ORDER_RETRY_ATTEMPTS", 3),
		OrderRetryDelay:    durationFromEnv("ORDER_RETRY_DELAY", "2s"),
		ZombieThreshold:    durationFromEnv("ZOMBIE_THRESHOLD", "15m"),
		BrokerCallTimeout:  durationFromEnv("BROKER_CALL_TIMEOUT", "10s"),

		SnapshotBackend: getenvDefault("SNAPSHOT_BACKEND", "file"),
		SnapshotPath:    getenvDefault("SNAPSHOT_PATH", "trading_state.json"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if key := os.Getenv(brokerKeyENV); key != "" {
		config.Broker.APIKey = key
	}
	if secret := os.Getenv(brokerSecretENV); secret != "" {
		config.Broker.APISecret = secret
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if universe := os.Getenv("UNIVERSE"); universe != "" {
		config.Universe = splitCSV(universe)
	}

	return &config, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
