package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// ExchangeRateAPI fetches fiat-to-base rates from exchangerate-api.com. The
// free tier requires an API key; without one the factory substitutes the mock
// source for the fiat domain.
type ExchangeRateAPI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	base    string
	codes   []string
}

func NewExchangeRateAPI(client *http.Client, baseURL, apiKey, baseCurrency string, codes []string) *ExchangeRateAPI {
	return &ExchangeRateAPI{client: client, baseURL: baseURL, apiKey: apiKey, base: baseCurrency, codes: codes}
}

func (e *ExchangeRateAPI) Name() string { return NameExchangeRateAPI }

type exchangeRateResp struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
}

func (e *ExchangeRateAPI) Fetch(ctx context.Context) (map[rates.Pair]float64, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("exchangerate-api: %w: missing api key", apperrors.ErrMalformedResponse)
	}
	if len(e.codes) == 0 {
		return map[rates.Pair]float64{}, nil
	}

	u := fmt.Sprintf("%s/%s/latest/%s", e.baseURL, url.PathEscape(e.apiKey), url.PathEscape(e.base))
	body, err := httpGet(ctx, e.client, u)
	if err != nil {
		return nil, fmt.Errorf("exchangerate-api: %w", err)
	}

	var raw exchangeRateResp
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("exchangerate-api: %w: %v (%s)", apperrors.ErrMalformedResponse, err, snippet(body))
	}
	if raw.Result != "success" {
		errType := raw.ErrorType
		if errType == "" {
			errType = "unknown error"
		}
		return nil, fmt.Errorf("exchangerate-api: %w: %s", apperrors.ErrMalformedResponse, errType)
	}

	baseCode := raw.BaseCode
	if baseCode == "" {
		baseCode = e.base
	}

	out := map[rates.Pair]float64{}
	for _, code := range e.codes {
		if code == baseCode {
			continue
		}
		v, ok := raw.Rates[code]
		if !ok {
			continue
		}
		pair, err := rates.NewPair(code, baseCode)
		if err != nil {
			continue
		}
		out[pair] = v
	}
	return out, nil
}
