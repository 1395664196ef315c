// Package config loads daemon configuration from a TOML file with
// environment-variable overrides for credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/courtline/tennis-edge/pkg/kalshi"
	"github.com/courtline/tennis-edge/pkg/tennis/serve"
)

// Config is the full daemon configuration.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Model    ModelConfig    `toml:"model"`
	Feed     FeedConfig     `toml:"feed"`
	Matches  []MatchConfig  `toml:"matches"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ExchangeConfig selects the venue and credentials.
type ExchangeConfig struct {
	Environment    string `toml:"environment"` // "demo" or "prod"
	KeyID          string `toml:"key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	Paper          bool   `toml:"paper"` // simulate fills instead of sending orders
}

// TradingConfig tunes the signal engine and guardrails.
type TradingConfig struct {
	BankrollCents     int64   `toml:"bankroll_cents"`
	MinEdgeCents      float64 `toml:"min_edge_cents"`
	KellyFraction     float64 `toml:"kelly_fraction"`
	MaxContracts      int64   `toml:"max_contracts"`
	MaxBankrollRisk   float64 `toml:"max_bankroll_risk"`
	MaxDailyLossCents int64   `toml:"max_daily_loss_cents"`
	MaxLossStreak     int     `toml:"max_loss_streak"`
	CooldownMinutes   int     `toml:"cooldown_minutes"`
}

// ModelConfig tunes the serve model.
type ModelConfig struct {
	DiscountBase float64 `toml:"discount_base"`
	Surface      string  `toml:"surface"`
}

// FeedConfig points at the score provider.
type FeedConfig struct {
	URL            string  `toml:"url"`
	QuoteMaxAgeMS  int64   `toml:"quote_max_age_ms"`
	MaxSpreadCents float64 `toml:"max_spread_cents"`
	TickTimeoutMS  int64   `toml:"tick_timeout_ms"`
	ReplayFile     string  `toml:"replay_file"`
	ReplayDelayMS  int64   `toml:"replay_delay_ms"`
}

// MatchConfig binds one match to one market.
type MatchConfig struct {
	ID      string `toml:"id"`
	Ticker  string `toml:"ticker"`
	PlayerA string `toml:"player_a"`
	PlayerB string `toml:"player_b"`
	BestOf  int    `toml:"best_of"`
	NoAd    bool   `toml:"no_ad"`
	// FinalSetTiebreak defaults to true; advantage deciding sets are rare.
	FinalSetTiebreak *bool `toml:"final_set_tiebreak"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"` // e.g. ":9102", empty disables
}

// Default returns the production defaults; Load layers file and env on top.
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{Environment: "demo", Paper: true},
		Trading: TradingConfig{
			BankrollCents:     100_000,
			MinEdgeCents:      2.0,
			KellyFraction:     0.25,
			MaxContracts:      10,
			MaxBankrollRisk:   0.02,
			MaxDailyLossCents: 5_000,
			MaxLossStreak:     3,
			CooldownMinutes:   15,
		},
		Model: ModelConfig{DiscountBase: 2.0, Surface: string(serve.SurfaceHard)},
		Feed: FeedConfig{
			QuoteMaxAgeMS:  3_000,
			MaxSpreadCents: 10,
			TickTimeoutMS:  2_000,
		},
		Metrics: MetricsConfig{Addr: ":9102"},
	}
}

// Load reads the TOML file (optional), applies env overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KALSHI_KEY_ID"); v != "" {
		cfg.Exchange.KeyID = v
	}
	if v := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); v != "" {
		cfg.Exchange.PrivateKeyPath = v
	}
	if v := os.Getenv("KALSHI_ENV"); v != "" {
		cfg.Exchange.Environment = v
	}
}

// Validate rejects configurations the daemon cannot safely run with.
func (c Config) Validate() error {
	switch kalshi.Environment(c.Exchange.Environment) {
	case kalshi.EnvDemo, kalshi.EnvProd:
	default:
		return fmt.Errorf("config: unknown environment %q", c.Exchange.Environment)
	}
	if !c.Exchange.Paper {
		if c.Exchange.KeyID == "" || c.Exchange.PrivateKeyPath == "" {
			return errors.New("config: live trading requires key_id and private_key_path")
		}
	}
	if c.Trading.BankrollCents <= 0 {
		return errors.New("config: bankroll must be positive")
	}
	if c.Trading.MinEdgeCents < 0 {
		return errors.New("config: negative min edge")
	}
	if c.Trading.KellyFraction <= 0 || c.Trading.KellyFraction > 1 {
		return fmt.Errorf("config: kelly fraction %v outside (0,1]", c.Trading.KellyFraction)
	}
	if c.Trading.MaxContracts <= 0 {
		return errors.New("config: max contracts must be positive")
	}
	if c.Trading.MaxBankrollRisk <= 0 || c.Trading.MaxBankrollRisk > 1 {
		return fmt.Errorf("config: max bankroll risk %v outside (0,1]", c.Trading.MaxBankrollRisk)
	}
	if c.Model.DiscountBase <= 0 {
		return errors.New("config: discount base must be positive")
	}
	for i, m := range c.Matches {
		if m.ID == "" || m.Ticker == "" {
			return fmt.Errorf("config: match %d missing id or ticker", i)
		}
		if m.BestOf != 3 && m.BestOf != 5 {
			return fmt.Errorf("config: match %s: best_of %d", m.ID, m.BestOf)
		}
	}
	return nil
}

// QuoteMaxAge returns the staleness bound as a duration.
func (f FeedConfig) QuoteMaxAge() time.Duration {
	return time.Duration(f.QuoteMaxAgeMS) * time.Millisecond
}

// TickTimeout returns the per-tick quote fetch timeout.
func (f FeedConfig) TickTimeout() time.Duration {
	return time.Duration(f.TickTimeoutMS) * time.Millisecond
}

// Cooldown returns the loss-streak cooldown as a duration.
func (t TradingConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownMinutes) * time.Minute
}
