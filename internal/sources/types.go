package sources

import (
	"context"

	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// Source fetches the rates for its own currency domain, keyed by pair, all
// quoted against the configured base currency. Sources do not assume
// exclusivity over a pair; the aggregator merges across them.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[rates.Pair]float64, error)
}

const (
	NameCoinGecko       = "CoinGecko"
	NameExchangeRateAPI = "ExchangeRateAPI"
	NameMock            = "Mock"
)
