package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeedConfig points at the crawler service that exposes captured posts.
type FeedConfig struct {
	BaseURL      string            `mapstructure:"base_url"`
	AuthToken    string            `mapstructure:"auth_token"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
	Accounts     []string          `mapstructure:"accounts"`
	PageLimit    int               `mapstructure:"page_limit"`
	AuthorNotes  map[string]string `mapstructure:"author_notes"`
}

type AnalysisConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`
	MaxRetries int `mapstructure:"max_retries"`
}

type ReaperConfig struct {
	Schedule   string        `mapstructure:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	EvictAfter time.Duration `mapstructure:"evict_after"`
}

type ExchangeConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	WSURL      string        `mapstructure:"ws_url"`
	APIKey     string        `mapstructure:"api_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RecvWindow int           `mapstructure:"recv_window"`
	QuoteAsset string        `mapstructure:"quote_asset"`
	DryRun     bool          `mapstructure:"dry_run"`
	DualSide   bool          `mapstructure:"dual_side"`
	Leverage   int           `mapstructure:"leverage"`
	// Staleness bound for WS-cached prices before the REST fallback kicks in.
	PriceMaxAge time.Duration `mapstructure:"price_max_age"`
}

type TradingConfig struct {
	PositionSizeFraction float64       `mapstructure:"position_size_fraction"`
	StopLossFraction     float64       `mapstructure:"stop_loss_fraction"`
	TakeProfitTiers      []TierConfig  `mapstructure:"take_profit_tiers"`
	MinConfidence        int           `mapstructure:"min_confidence"`
	Blacklist            []string      `mapstructure:"blacklist"`
	MonitorInterval      time.Duration `mapstructure:"monitor_interval"`
}

type TierConfig struct {
	TriggerFraction float64 `mapstructure:"trigger_fraction"`
	CloseFraction   float64 `mapstructure:"close_fraction"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)

	v.SetDefault("feed.base_url", "http://127.0.0.1:8001")
	v.SetDefault("feed.auth_token", "")
	v.SetDefault("feed.timeout", "8s")
	v.SetDefault("feed.poll_interval", "10s")
	v.SetDefault("feed.page_limit", 50)

	v.SetDefault("analysis.base_url", "")
	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.timeout", "30s")

	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.max_retries", 3)

	v.SetDefault("reaper.schedule", "@every 5s")
	v.SetDefault("reaper.stale_after", "5m")
	v.SetDefault("reaper.evict_after", "30m")

	v.SetDefault("exchange.base_url", "https://fapi.binance.com")
	v.SetDefault("exchange.ws_url", "wss://fstream.binance.com/ws")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.recv_window", 5000)
	v.SetDefault("exchange.quote_asset", "USDT")
	v.SetDefault("exchange.dry_run", true)
	v.SetDefault("exchange.dual_side", true)
	v.SetDefault("exchange.leverage", 20)
	v.SetDefault("exchange.price_max_age", "10s")

	v.SetDefault("trading.position_size_fraction", 0.02)
	v.SetDefault("trading.stop_loss_fraction", 0.01)
	v.SetDefault("trading.min_confidence", 60)
	v.SetDefault("trading.monitor_interval", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if len(cfg.Trading.TakeProfitTiers) == 0 {
		cfg.Trading.TakeProfitTiers = []TierConfig{
			{TriggerFraction: 0.02, CloseFraction: 0.5},
			{TriggerFraction: 0.05, CloseFraction: 0.5},
		}
	}

	return cfg, nil
}
