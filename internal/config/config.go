package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the service.
type Config struct {
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	ServerPort       string `mapstructure:"SERVER_PORT"`
	BaseURL          string `mapstructure:"BASE_URL"`
	UserAgent        string `mapstructure:"USER_AGENT"`
	TargetRecords    int    `mapstructure:"TARGET_RECORDS"`
	PageDelaySeconds int    `mapstructure:"PAGE_DELAY_SECONDS"`
	FetchTimeout     int    `mapstructure:"FETCH_TIMEOUT"`
	FetchRetries     int    `mapstructure:"FETCH_RETRIES"`
	LLMServiceURL    string `mapstructure:"LLM_SERVICE_URL"`
	LLMTimeout       int    `mapstructure:"LLM_TIMEOUT"`
	DataFile         string `mapstructure:"DATA_FILE"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BASE_URL", "https://www.thegradcafe.com/")
	viper.SetDefault("USER_AGENT", "Mozilla/5.0 (compatible; gradcafe-ingest/1.0)")
	viper.SetDefault("TARGET_RECORDS", 500)
	viper.SetDefault("PAGE_DELAY_SECONDS", 10)
	viper.SetDefault("FETCH_TIMEOUT", 30) // in seconds
	viper.SetDefault("FETCH_RETRIES", 2)
	viper.SetDefault("LLM_TIMEOUT", 60) // in seconds
	viper.SetDefault("DATA_FILE", "llm_new_applicant.json")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PageDelay returns the fixed inter-page crawl delay.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelaySeconds) * time.Second
}

// FetchTimeoutDuration returns the per-request fetch timeout.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// LLMTimeoutDuration returns the standardizer call timeout.
func (c *Config) LLMTimeoutDuration() time.Duration {
	return time.Duration(c.LLMTimeout) * time.Second
}
