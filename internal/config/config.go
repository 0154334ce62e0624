package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKeyEnv          string `yaml:"api_key_env"` // env var holding the key
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	DailyCap           int    `yaml:"daily_cap"`
	CooldownMinutes    int    `yaml:"cooldown_minutes"`
	MaxRetries         int    `yaml:"max_retries"`
	BackoffBaseMs      int    `yaml:"backoff_base_ms"`
	TimeoutMs          int    `yaml:"timeout_ms"`
}

type CacheConfig struct {
	MaxPerCategory int `yaml:"max_per_category"`
}

type DocstoreConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type WatchlistConfig struct {
	UserID          string `yaml:"user_id"`
	RefreshSchedule string `yaml:"refresh_schedule"` // cron expression
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Stocks    ProviderConfig  `yaml:"stocks"`
	Crypto    ProviderConfig  `yaml:"crypto"`
	Cache     CacheConfig     `yaml:"cache"`
	Docstore  DocstoreConfig  `yaml:"docstore"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	// Stocks provider defaults (FMP-style free tier)
	if c.Stocks.BaseURL == "" {
		c.Stocks.BaseURL = "https://financialmodelingprep.com/api/v3"
	}
	if c.Stocks.APIKeyEnv == "" {
		c.Stocks.APIKeyEnv = "STOCKS_API_KEY"
	}
	if c.Stocks.RateLimitPerMinute == 0 {
		c.Stocks.RateLimitPerMinute = 30
	}
	if c.Stocks.DailyCap == 0 {
		c.Stocks.DailyCap = 250
	}

	// Crypto provider defaults (CoinGecko-style free tier)
	if c.Crypto.BaseURL == "" {
		c.Crypto.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Crypto.APIKeyEnv == "" {
		c.Crypto.APIKeyEnv = "CRYPTO_API_KEY"
	}
	if c.Crypto.RateLimitPerMinute == 0 {
		c.Crypto.RateLimitPerMinute = 10
	}
	if c.Crypto.DailyCap == 0 {
		c.Crypto.DailyCap = 500
	}

	if c.Cache.MaxPerCategory == 0 {
		c.Cache.MaxPerCategory = 100
	}
	if c.Docstore.APIKeyEnv == "" {
		c.Docstore.APIKeyEnv = "DOCSTORE_API_KEY"
	}
	if c.Watchlist.RefreshSchedule == "" {
		c.Watchlist.RefreshSchedule = "*/5 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}

	return c, nil
}
