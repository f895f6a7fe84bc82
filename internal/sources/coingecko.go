package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// cryptoIDs maps currency codes to CoinGecko asset ids.
var cryptoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"BNB":  "binancecoin",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
}

// CoinGecko fetches crypto-to-base rates from the CoinGecko simple price
// endpoint. It needs no credentials.
type CoinGecko struct {
	client  *http.Client
	baseURL string
	base    string
	codes   []string
}

func NewCoinGecko(client *http.Client, baseURL, baseCurrency string, codes []string) *CoinGecko {
	return &CoinGecko{client: client, baseURL: baseURL, base: baseCurrency, codes: codes}
}

func (c *CoinGecko) Name() string { return NameCoinGecko }

func (c *CoinGecko) Fetch(ctx context.Context) (map[rates.Pair]float64, error) {
	ids := make([]string, 0, len(c.codes))
	for _, code := range c.codes {
		if id, ok := cryptoIDs[code]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[rates.Pair]float64{}, nil
	}

	q := url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {strings.ToLower(c.base)},
	}
	body, err := httpGet(ctx, c.client, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coingecko: %w: %v (%s)", apperrors.ErrMalformedResponse, err, snippet(body))
	}

	out := map[rates.Pair]float64{}
	vs := strings.ToLower(c.base)
	for _, code := range c.codes {
		id, ok := cryptoIDs[code]
		if !ok {
			continue
		}
		prices, ok := raw[id]
		if !ok {
			continue
		}
		v, ok := prices[vs]
		if !ok {
			continue
		}
		pair, err := rates.NewPair(code, c.base)
		if err != nil {
			continue
		}
		out[pair] = v
	}
	return out, nil
}
