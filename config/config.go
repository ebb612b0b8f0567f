// Package config loads engine configuration from a JSON file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"crypto-decision-engine/internal/api"
	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/engine"
	"crypto-decision-engine/internal/indicators"
	"crypto-decision-engine/internal/patterns"
	"crypto-decision-engine/internal/risk"
)

type Config struct {
	LogLevel string `json:"log_level"`

	// RedisURL enables persistent risk state; empty keeps it in memory.
	RedisURL string `json:"redis_url"`
	// DatabaseURL enables the Postgres audit store; empty keeps a
	// bounded in-memory record buffer.
	DatabaseURL string `json:"database_url"`

	Engine     engine.Config     `json:"engine"`
	Decision   decision.Config   `json:"decision"`
	Indicators indicators.Config `json:"indicators"`
	Patterns   patterns.Config   `json:"patterns"`
	Risk       risk.Config       `json:"risk"`
	Autonomy   autonomy.Config   `json:"autonomy"`
	API        api.Config        `json:"api"`
}

func Default() *Config {
	return &Config{
		LogLevel:   "info",
		Engine:     engine.DefaultConfig(),
		Decision:   decision.DefaultConfig(),
		Indicators: indicators.DefaultConfig(),
		Patterns:   patterns.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Autonomy:   autonomy.DefaultConfig(),
		API:        api.DefaultConfig(),
	}
}

// Load reads the config file if present, then applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getEnvOrDefault("ENGINE_CONFIG", "config.json")
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.API.Addr = getEnvOrDefault("API_ADDR", c.API.Addr)
	c.Engine.AccountID = getEnvOrDefault("ACCOUNT_ID", c.Engine.AccountID)

	if v := os.Getenv("AUTONOMY_MODE"); v != "" {
		c.Autonomy.Mode = autonomy.Mode(v)
	}
	if v := os.Getenv("APPROVAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Autonomy.ApprovalTTL = d
		}
	}
	if v := os.Getenv("MAX_OPEN_TRADES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Risk.MaxOpenTrades = n
		}
	}
	if v := os.Getenv("MAX_DAILY_LOSS_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Risk.MaxDailyLossPercent = f
		}
	}
}

func (c *Config) validate() error {
	switch c.Autonomy.Mode {
	case autonomy.ModeFullAuto, autonomy.ModeSemiAuto, autonomy.ModeSignalOnly:
	default:
		return fmt.Errorf("invalid autonomy mode %q", c.Autonomy.Mode)
	}
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction >= 1 {
		return fmt.Errorf("risk_fraction must be in (0,1), got %v", c.Risk.RiskFraction)
	}
	if c.Risk.MaxDailyLossPercent <= 0 || c.Risk.MaxDailyLossPercent >= 1 {
		return fmt.Errorf("max_daily_loss_percent must be in (0,1), got %v", c.Risk.MaxDailyLossPercent)
	}
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
