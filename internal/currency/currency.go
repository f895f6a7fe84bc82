package currency

import (
	"fmt"
	"strings"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
)

type Kind string

const (
	KindFiat   Kind = "fiat"
	KindCrypto Kind = "crypto"
)

type Currency struct {
	Code string
	Name string
	Kind Kind

	// Fiat only.
	IssuingCountry string

	// Crypto only.
	Algorithm string
}

var All = []Currency{
	// -------- FIAT --------
	{Code: "USD", Name: "US Dollar", Kind: KindFiat, IssuingCountry: "United States"},
	{Code: "EUR", Name: "Euro", Kind: KindFiat, IssuingCountry: "Eurozone"},
	{Code: "GBP", Name: "British Pound", Kind: KindFiat, IssuingCountry: "United Kingdom"},
	{Code: "RUB", Name: "Russian Ruble", Kind: KindFiat, IssuingCountry: "Russia"},
	{Code: "JPY", Name: "Japanese Yen", Kind: KindFiat, IssuingCountry: "Japan"},
	{Code: "CHF", Name: "Swiss Franc", Kind: KindFiat, IssuingCountry: "Switzerland"},
	{Code: "CAD", Name: "Canadian Dollar", Kind: KindFiat, IssuingCountry: "Canada"},
	{Code: "AUD", Name: "Australian Dollar", Kind: KindFiat, IssuingCountry: "Australia"},
	{Code: "CNY", Name: "Chinese Yuan", Kind: KindFiat, IssuingCountry: "China"},

	// -------- CRYPTO --------
	{Code: "BTC", Name: "Bitcoin", Kind: KindCrypto, Algorithm: "SHA-256"},
	{Code: "ETH", Name: "Ethereum", Kind: KindCrypto, Algorithm: "Ethash"},
	{Code: "SOL", Name: "Solana", Kind: KindCrypto, Algorithm: "Proof of History"},
	{Code: "BNB", Name: "BNB", Kind: KindCrypto, Algorithm: "BFT"},
	{Code: "XRP", Name: "XRP", Kind: KindCrypto, Algorithm: "Consensus Protocol"},
	{Code: "ADA", Name: "Cardano", Kind: KindCrypto, Algorithm: "Ouroboros"},
	{Code: "DOGE", Name: "Dogecoin", Kind: KindCrypto, Algorithm: "Scrypt"},
	{Code: "DOT", Name: "Polkadot", Kind: KindCrypto, Algorithm: "NPoS"},
}

var byCode map[string]Currency

func init() {
	byCode = map[string]Currency{}
	for _, c := range All {
		byCode[c.Code] = c
	}
}

func ByCode(code string) (Currency, bool) {
	c, ok := byCode[strings.ToUpper(code)]
	return c, ok
}

// IsCrypto reports whether a code belongs to a known crypto currency.
// Unknown codes count as fiat for classification purposes.
func IsCrypto(code string) bool {
	c, ok := ByCode(code)
	return ok && c.Kind == KindCrypto
}

// ValidateCode normalizes a currency code and checks its format: 2-5 latin
// letters, upper-cased. Codes absent from the registry are still accepted as
// long as the format holds, matching how unknown wallets are handled upstream.
func ValidateCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("%w: empty code", apperrors.ErrCurrencyNotFound)
	}
	if len(code) < 2 || len(code) > 5 {
		return "", fmt.Errorf("%w: %q must be 2-5 characters", apperrors.ErrCurrencyNotFound, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q contains invalid characters", apperrors.ErrCurrencyNotFound, code)
		}
	}
	return code, nil
}

func (c Currency) DisplayInfo() string {
	switch c.Kind {
	case KindCrypto:
		return fmt.Sprintf("[CRYPTO] %s - %s (Algo: %s)", c.Code, c.Name, c.Algorithm)
	default:
		return fmt.Sprintf("[FIAT] %s - %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
	}
}
