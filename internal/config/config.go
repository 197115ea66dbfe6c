package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxPriceAge    time.Duration `yaml:"max_price_age"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TradingConfig struct {
	Symbol          string        `yaml:"symbol"`
	SpreadBps       float64       `yaml:"spread_bps"`
	OrderSizeUSD    float64       `yaml:"order_size_usd"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DryRun          bool          `yaml:"dry_run"`
}

// RiskConfig carries empirically tuned thresholds. They are plain
// configuration, not derived values; in particular ReferencePrice is a
// fixed price so the inventory stop cannot flip-flop as the mark moves.
type RiskConfig struct {
	TakeProfitUSD           float64 `yaml:"take_profit_usd"`
	FavorableMovePct        float64 `yaml:"favorable_move_pct"`
	LossProtectionTargetUSD float64 `yaml:"loss_protection_target_usd"`
	CollateralUSD           float64 `yaml:"collateral_usd"`
	MaxLeverage             float64 `yaml:"max_leverage"`
	InventoryStopFraction   float64 `yaml:"inventory_stop_fraction"`
	ReferencePrice          float64 `yaml:"reference_price"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// Credentials are the Orderly API secrets. They never live in the yaml
// file; the transport layer is their only consumer.
type Credentials struct {
	AccountID string
	APIKey    string
	APISecret string
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.orderly.org"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 10 * time.Second
	}
	if cfg.WS.MaxPriceAge == 0 {
		cfg.WS.MaxPriceAge = 5 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/orderly-mm-bot.db"
	}
	if cfg.Trading.Symbol == "" {
		cfg.Trading.Symbol = "PERP_ETH_USDC"
	}
	if cfg.Trading.SpreadBps == 0 {
		cfg.Trading.SpreadBps = 10
	}
	if cfg.Trading.OrderSizeUSD == 0 {
		cfg.Trading.OrderSizeUSD = 50
	}
	if cfg.Trading.RefreshInterval == 0 {
		cfg.Trading.RefreshInterval = 5 * time.Second
	}
	if cfg.Risk.TakeProfitUSD == 0 {
		cfg.Risk.TakeProfitUSD = 0.08
	}
	if cfg.Risk.FavorableMovePct == 0 {
		cfg.Risk.FavorableMovePct = 0.5
	}
	if cfg.Risk.LossProtectionTargetUSD == 0 {
		cfg.Risk.LossProtectionTargetUSD = 0.05
	}
	if cfg.Risk.CollateralUSD == 0 {
		cfg.Risk.CollateralUSD = 100
	}
	if cfg.Risk.MaxLeverage == 0 {
		cfg.Risk.MaxLeverage = 8
	}
	if cfg.Risk.InventoryStopFraction == 0 {
		cfg.Risk.InventoryStopFraction = 0.6
	}
	if cfg.Risk.ReferencePrice == 0 {
		cfg.Risk.ReferencePrice = 2000
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9091"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func validate(cfg *Config) error {
	if cfg.Trading.Symbol == "" {
		return errors.New("trading.symbol is required")
	}
	if cfg.Trading.SpreadBps <= 0 {
		return errors.New("trading.spread_bps must be > 0")
	}
	if cfg.Trading.OrderSizeUSD <= 0 {
		return errors.New("trading.order_size_usd must be > 0")
	}
	if cfg.Trading.RefreshInterval <= 0 {
		return errors.New("trading.refresh_interval must be > 0")
	}
	if cfg.Risk.InventoryStopFraction <= 0 || cfg.Risk.InventoryStopFraction > 1 {
		return errors.New("risk.inventory_stop_fraction must be in (0, 1]")
	}
	if cfg.Risk.MaxLeverage <= 0 {
		return errors.New("risk.max_leverage must be > 0")
	}
	if cfg.Risk.ReferencePrice <= 0 {
		return errors.New("risk.reference_price must be > 0")
	}
	if cfg.WS.Enabled && cfg.WS.URL == "" {
		return errors.New("ws.url is required when ws is enabled")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// LoadCredentials reads Orderly credentials from the environment.
// The returned error lists every missing variable so a broken deployment
// fails with one actionable message.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		AccountID: strings.TrimSpace(os.Getenv("ORDERLY_ACCOUNT_ID")),
		APIKey:    strings.TrimSpace(os.Getenv("ORDERLY_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("ORDERLY_SECRET")),
	}
	var missing []string
	if creds.AccountID == "" {
		missing = append(missing, "ORDERLY_ACCOUNT_ID")
	}
	if creds.APIKey == "" {
		missing = append(missing, "ORDERLY_KEY")
	}
	if creds.APISecret == "" {
		missing = append(missing, "ORDERLY_SECRET")
	}
	if len(missing) > 0 {
		return creds, fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}
