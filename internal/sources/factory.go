package sources

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/valutatrade/valutatrade-hub/internal/config"
)

// Build constructs the configured source set. CoinGecko is added when crypto
// codes are tracked, ExchangeRate-API when an API key and fiat codes exist.
// When nothing real is configured the mock source keeps the pipeline alive.
// filter narrows the set to a single provider ("all" or empty keeps everything).
func Build(cfg config.ParserConfig, logger *slog.Logger, filter string) []Source {
	client := &http.Client{Timeout: cfg.RequestTimeout()}

	var out []Source
	if len(cfg.CryptoCurrencies) > 0 {
		out = append(out, NewCoinGecko(client, cfg.CoinGeckoURL, cfg.BaseCurrency, cfg.CryptoCurrencies))
	}
	if cfg.ExchangeRateAPIKey != "" && len(cfg.FiatCurrencies) > 0 {
		out = append(out, NewExchangeRateAPI(client, cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey, cfg.BaseCurrency, cfg.FiatCurrencies))
	} else if len(cfg.FiatCurrencies) > 0 {
		logger.Warn("no exchangerate-api key configured, fiat rates come from the mock source")
	}

	if len(out) == 0 || (cfg.ExchangeRateAPIKey == "" && len(cfg.FiatCurrencies) > 0) {
		out = append(out, NewMock())
	}

	if filter != "" && !strings.EqualFold(filter, "all") {
		filtered := out[:0]
		for _, s := range out {
			if matchesFilter(s.Name(), filter) {
				filtered = append(filtered, s)
			}
		}
		out = filtered
	}

	names := make([]string, 0, len(out))
	for _, s := range out {
		names = append(names, s.Name())
	}
	logger.Info("sources configured", "sources", strings.Join(names, ","))
	return out
}

func matchesFilter(name, filter string) bool {
	switch strings.ToLower(filter) {
	case "coingecko":
		return name == NameCoinGecko
	case "exchangerate", "exchangerate-api", "exchangerateapi":
		return name == NameExchangeRateAPI
	case "mock":
		return name == NameMock
	}
	return strings.EqualFold(name, filter)
}
