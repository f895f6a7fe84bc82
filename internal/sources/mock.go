package sources

import (
	"context"

	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// Mock returns a fixed deterministic rate set. It stands in for a real
// provider whenever credentials are absent, so the pipeline keeps producing a
// snapshot instead of halting.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return NameMock }

var mockRates = map[string]float64{
	"EUR_USD": 1.0786,
	"GBP_USD": 1.2543,
	"RUB_USD": 0.01016,
	"JPY_USD": 0.0067,
	"BTC_USD": 59337.21,
	"ETH_USD": 3720.00,
	"SOL_USD": 145.12,
}

func (m *Mock) Fetch(ctx context.Context) (map[rates.Pair]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[rates.Pair]float64, len(mockRates))
	for k, v := range mockRates {
		pair, err := rates.ParsePair(k)
		if err != nil {
			continue
		}
		out[pair] = v
	}
	return out, nil
}
