package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ParserConfig is the static configuration of the rate pipeline. It is loaded
// once at startup and passed by value; reloading requires an explicit Load.
type ParserConfig struct {
	BaseCurrency string `json:"base_currency" env:"VTH_BASE_CURRENCY" env-default:"USD"`

	FiatCurrencies   []string `json:"fiat_currencies" env:"VTH_FIAT_CURRENCIES" env-separator:"," env-default:"EUR,GBP,RUB,JPY,CHF,CAD,AUD,CNY"`
	CryptoCurrencies []string `json:"crypto_currencies" env:"VTH_CRYPTO_CURRENCIES" env-separator:"," env-default:"BTC,ETH,SOL,BNB,XRP,ADA,DOGE,DOT"`

	// Absent key means the fiat domain falls back to the mock source.
	ExchangeRateAPIKey string `json:"exchangerate_api_key" env:"EXCHANGERATE_API_KEY"`

	CoinGeckoURL       string `json:"coingecko_url" env:"VTH_COINGECKO_URL" env-default:"https://api.coingecko.com/api/v3/simple/price"`
	ExchangeRateAPIURL string `json:"exchangerate_api_url" env:"VTH_EXCHANGERATE_API_URL" env-default:"https://v6.exchangerate-api.com/v6"`

	RequestTimeoutSec int `json:"request_timeout_seconds" env:"VTH_REQUEST_TIMEOUT" env-default:"10"`
	RatesTTLSec       int `json:"rates_ttl_seconds" env:"VTH_RATES_TTL" env-default:"300"`
	UpdateIntervalSec int `json:"update_interval_seconds" env:"VTH_UPDATE_INTERVAL" env-default:"300"`

	RetryAttempts int     `json:"retry_attempts" env:"VTH_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelayMS  int     `json:"retry_delay_ms" env:"VTH_RETRY_DELAY_MS" env-default:"500"`
	RetryBackoff  float64 `json:"retry_backoff" env:"VTH_RETRY_BACKOFF" env-default:"2.0"`

	MinRate float64 `json:"min_rate" env:"VTH_MIN_RATE" env-default:"0.00000001"`
	MaxRate float64 `json:"max_rate" env:"VTH_MAX_RATE" env-default:"1000000000000"`

	// SourcePriority breaks merge ties between sources reporting the same
	// timestamp; earlier names win.
	SourcePriority []string `json:"source_priority" env:"VTH_SOURCE_PRIORITY" env-separator:"," env-default:"ExchangeRateAPI,CoinGecko,Mock"`

	DataDir     string `json:"data_dir" env:"VTH_DATA_DIR" env-default:"data"`
	RatesFile   string `json:"rates_file" env:"VTH_RATES_FILE" env-default:"rates.json"`
	HistoryFile string `json:"history_file" env:"VTH_HISTORY_FILE" env-default:"exchange_rates.json"`
	ArchiveFile string `json:"archive_file" env:"VTH_ARCHIVE_FILE" env-default:"history.db"`
	LogLevel    string `json:"log_level" env:"VTH_LOG_LEVEL" env-default:"info"`
	MetricsAddr string `json:"metrics_addr" env:"VTH_METRICS_ADDR"`
}

func DefaultConfigPath() string {
	if v := os.Getenv("VTH_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Load reads the JSON config file when it exists and applies environment
// overrides on top; a missing file is not an error, the environment and
// defaults carry the full configuration.
func Load(path string) (ParserConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	var cfg ParserConfig
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return ParserConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return ParserConfig{}, fmt.Errorf("stat config %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ParserConfig{}, fmt.Errorf("read env config: %w", err)
	}

	cfg.DataDir = filepath.Clean(cfg.DataDir)
	if err := cfg.validate(); err != nil {
		return ParserConfig{}, err
	}
	return cfg, nil
}

func (c ParserConfig) validate() error {
	if c.BaseCurrency == "" {
		return fmt.Errorf("base_currency must be set")
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.RequestTimeoutSec)
	}
	if c.RatesTTLSec <= 0 {
		return fmt.Errorf("rates_ttl_seconds must be positive, got %d", c.RatesTTLSec)
	}
	if c.UpdateIntervalSec <= 0 {
		return fmt.Errorf("update_interval_seconds must be positive, got %d", c.UpdateIntervalSec)
	}
	if c.MinRate <= 0 || c.MaxRate <= c.MinRate {
		return fmt.Errorf("invalid rate bounds [%g, %g]", c.MinRate, c.MaxRate)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}

func (c ParserConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c ParserConfig) RatesTTL() time.Duration {
	return time.Duration(c.RatesTTLSec) * time.Second
}

func (c ParserConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSec) * time.Second
}

func (c ParserConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c ParserConfig) RatesPath() string { return filepath.Join(c.DataDir, c.RatesFile) }

func (c ParserConfig) HistoryPath() string { return filepath.Join(c.DataDir, c.HistoryFile) }

func (c ParserConfig) ArchivePath() string { return filepath.Join(c.DataDir, c.ArchiveFile) }
