// Package config loads server configuration from the environment,
// grounded on adred-codev-ws_poc's ws/config.go: caarlos0/env struct tags
// for parsing/defaults, godotenv for an optional local .env file, and a
// Validate pass for cross-field and range checks.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable named in spec §6/§4.5/§4.7.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"collabboard.db"`
	NATSURL    string `env:"NATS_URL" envDefault:""`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AgentModel      string `env:"AGENT_MODEL" envDefault:"claude-sonnet-4-20250514"`

	JWTSecret string `env:"JWT_SECRET"`

	LangfuseHost      string `env:"LANGFUSE_HOST" envDefault:"https://cloud.langfuse.com"`
	LangfusePublicKey string `env:"LANGFUSE_PUBLIC_KEY"`
	LangfuseSecretKey string `env:"LANGFUSE_SECRET_KEY"`

	ThrottleMS     time.Duration `env:"THROTTLE_MS" envDefault:"60ms"`
	Stale          time.Duration `env:"STALE" envDefault:"30s"`
	StaleStore     time.Duration `env:"STALE_STORE" envDefault:"60s"`
	PerTurnTimeout time.Duration `env:"PER_TURN_TIMEOUT" envDefault:"60s"`
	MaxTurns       int           `env:"MAX_TURNS" envDefault:"8"`

	PadSide   float64 `env:"PAD_SIDE" envDefault:"30"`
	PadTop    float64 `env:"PAD_TOP" envDefault:"70"`
	PadBottom float64 `env:"PAD_BOTTOM" envDefault:"30"`

	IdleSweepInterval time.Duration `env:"IDLE_SWEEP_INTERVAL" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env (if present) then the environment, applying defaults and
// validating the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("config: no .env file found, using environment variables only")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("MAX_TURNS must be > 0, got %d", c.MaxTurns)
	}
	if c.ThrottleMS <= 0 {
		return fmt.Errorf("THROTTLE_MS must be > 0")
	}
	if c.StaleStore <= c.Stale {
		return fmt.Errorf("STALE_STORE (%s) must be greater than STALE (%s)", c.StaleStore, c.Stale)
	}
	return nil
}

// LogFields logs the non-secret parts of configuration at startup.
func (c *Config) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("sqlite_path", c.SQLitePath).
		Bool("nats_configured", c.NATSURL != "").
		Str("agent_model", c.AgentModel).
		Bool("langfuse_configured", c.LangfuseSecretKey != "").
		Dur("throttle_ms", c.ThrottleMS).
		Dur("stale", c.Stale).
		Dur("stale_store", c.StaleStore).
		Dur("per_turn_timeout", c.PerTurnTimeout).
		Int("max_turns", c.MaxTurns).
		Float64("pad_side", c.PadSide).
		Float64("pad_top", c.PadTop).
		Float64("pad_bottom", c.PadBottom).
		Msg("configuration loaded")
}
