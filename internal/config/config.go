// Package config loads application configuration from file and
// environment via viper, with hot reload for the tunables that are
// safe to change without a restart.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// envPrefix namespaces every environment variable this process reads,
// e.g. TRADEENGINE_MIN_BUY_SCORE overrides min_buy_score.
const envPrefix = "TRADEENGINE"

// Config holds every tunable named in spec §6's configuration key
// list, plus the connection strings and credentials the CLI needs to
// wire up the stores and broker.
type Config struct {
	AccountID string   `mapstructure:"account_id"`
	Watchlist []string `mapstructure:"watchlist"`

	ScanIntervalSec int `mapstructure:"scan_interval"`
	WorkerCount     int `mapstructure:"worker_count"`

	MinBuyScore    float64 `mapstructure:"min_buy_score"`
	WeakBuyEnabled bool    `mapstructure:"weak_buy_enabled"`
	CooldownSec    int     `mapstructure:"cooldown_sec"`

	ATRKStop   float64 `mapstructure:"atr_k_stop"`
	ATRKProfit float64 `mapstructure:"atr_k_profit"`

	BudgetFractionMin float64 `mapstructure:"budget_range_min"`
	BudgetFractionMax float64 `mapstructure:"budget_range_max"`

	MaxPriceSlippagePct float64 `mapstructure:"max_price_slippage_pct"`
	FXHKDPerUSD         float64 `mapstructure:"fx_hkd_per_usd"`

	NotificationURL string `mapstructure:"notification_url"`

	Broker   BrokerConfig   `mapstructure:"broker"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Log      LogConfig      `mapstructure:"log"`
}

// BrokerConfig holds broker credentials and endpoint selection.
type BrokerConfig struct {
	Active     string `mapstructure:"active"`
	AppKey     string `mapstructure:"app_key"`
	AppSecret  string `mapstructure:"app_secret"`
	AccessToken string `mapstructure:"access_token"`
	Endpoint   string `mapstructure:"endpoint"`
}

// DatabaseConfig holds the store connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// QueueConfig holds C7's queue namespace.
type QueueConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LogConfig controls zerolog's output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Loader owns the viper instance and the currently-loaded Config,
// exposing hot reload for the subset of keys safe to change live.
type Loader struct {
	v         *viper.Viper
	log       zerolog.Logger
	callbacks []func(old, new Config)
}

// New builds a Loader reading from configPath (if non-empty) plus
// TRADEENGINE_-prefixed environment variables, applying defaults for
// every spec §6 key.
func New(configPath string, log zerolog.Logger) (*Loader, Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, Config{}, fmt.Errorf("config: validate: %w", err)
	}

	return &Loader{v: v, log: log.With().Str("component", "config").Logger()}, cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan_interval", 60)
	v.SetDefault("worker_count", 4)
	v.SetDefault("min_buy_score", 45.0)
	v.SetDefault("weak_buy_enabled", false)
	v.SetDefault("cooldown_sec", 300)
	v.SetDefault("atr_k_stop", 2.0)
	v.SetDefault("atr_k_profit", 3.0)
	v.SetDefault("budget_range_min", 0.08)
	v.SetDefault("budget_range_max", 0.20)
	v.SetDefault("max_price_slippage_pct", 0.01)
	v.SetDefault("fx_hkd_per_usd", 7.8)
	v.SetDefault("broker.active", "longport")
	v.SetDefault("queue.namespace", "default")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
}

// Validate enforces the structural invariants a bad config file or
// environment override could otherwise violate silently.
func (c Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if c.ScanIntervalSec <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %d", c.ScanIntervalSec)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.BudgetFractionMin <= 0 || c.BudgetFractionMax <= c.BudgetFractionMin {
		return fmt.Errorf("budget_range must satisfy 0 < min < max, got [%f, %f]", c.BudgetFractionMin, c.BudgetFractionMax)
	}
	if c.MaxPriceSlippagePct <= 0 || c.MaxPriceSlippagePct > 0.2 {
		return fmt.Errorf("max_price_slippage_pct must be in (0, 0.2], got %f", c.MaxPriceSlippagePct)
	}
	if c.FXHKDPerUSD <= 0 {
		return fmt.Errorf("fx_hkd_per_usd must be positive, got %f", c.FXHKDPerUSD)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	return nil
}

// ScanInterval is a convenience accessor returning the tunable as a
// time.Duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

// CooldownWindow mirrors ScanInterval for the cooldown tunable.
func (c Config) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// OnChange registers a callback invoked whenever WatchConfig detects a
// revalidated change to the live-reloadable subset of keys (scoring
// thresholds, cooldown, budget range, slippage — anything that
// doesn't require re-dialing a broker or database connection).
func (l *Loader) OnChange(fn func(old, new Config)) {
	l.callbacks = append(l.callbacks, fn)
}

// WatchConfig starts viper's fsnotify-backed hot reload. Structural
// keys (broker credentials, database URL, account id, worker count)
// are intentionally excluded from the change callback's diffing —
// they require a process restart to take effect safely, so a change
// to them is logged but does not fire OnChange callbacks.
func (l *Loader) WatchConfig(current Config) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var reloaded Config
		if err := l.v.Unmarshal(&reloaded); err != nil {
			l.log.Warn().Err(err).Msg("config reload: unmarshal failed, keeping previous config")
			return
		}
		if err := reloaded.Validate(); err != nil {
			l.log.Warn().Err(err).Msg("config reload: validation failed, keeping previous config")
			return
		}
		if structuralChanged(current, reloaded) {
			l.log.Warn().Msg("config reload: structural fields changed, restart required to apply")
		}
		if !liveTunablesChanged(current, reloaded) {
			return
		}
		l.log.Info().Msg("config reload: live tunables changed, applying")
		old := current
		current = reloaded
		for _, fn := range l.callbacks {
			fn(old, reloaded)
		}
	})
	l.v.WatchConfig()
}

func structuralChanged(old, new Config) bool {
	return old.AccountID != new.AccountID ||
		old.WorkerCount != new.WorkerCount ||
		old.Database.URL != new.Database.URL ||
		old.Broker != new.Broker
}

func liveTunablesChanged(old, new Config) bool {
	return old.MinBuyScore != new.MinBuyScore ||
		old.WeakBuyEnabled != new.WeakBuyEnabled ||
		old.CooldownSec != new.CooldownSec ||
		old.ATRKStop != new.ATRKStop ||
		old.ATRKProfit != new.ATRKProfit ||
		old.BudgetFractionMin != new.BudgetFractionMin ||
		old.BudgetFractionMax != new.BudgetFractionMax ||
		old.MaxPriceSlippagePct != new.MaxPriceSlippagePct ||
		old.FXHKDPerUSD != new.FXHKDPerUSD ||
		old.NotificationURL != new.NotificationURL
}
