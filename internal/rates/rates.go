// Package rates holds the domain types shared by the sources, aggregator and
// cache: currency pairs, rate records, the snapshot table and history entries.
package rates

import (
	"fmt"
	"strings"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/currency"
)

// Pair is an ordered conversion direction, serialized as "FROM_TO".
type Pair struct {
	From string
	To   string
}

func NewPair(from, to string) (Pair, error) {
	from, err := currency.ValidateCode(from)
	if err != nil {
		return Pair{}, err
	}
	to, err = currency.ValidateCode(to)
	if err != nil {
		return Pair{}, err
	}
	if from == to {
		return Pair{}, fmt.Errorf("pair sides must differ, got %s_%s", from, to)
	}
	return Pair{From: from, To: to}, nil
}

func ParsePair(s string) (Pair, error) {
	from, to, ok := strings.Cut(s, "_")
	if !ok {
		return Pair{}, fmt.Errorf("invalid pair %q, want FROM_TO", s)
	}
	return NewPair(from, to)
}

func (p Pair) String() string { return p.From + "_" + p.To }

func (p Pair) Inverse() Pair { return Pair{From: p.To, To: p.From} }

// IsCrypto reports the currency class of the pair: crypto when the From side
// is a known crypto currency, fiat otherwise.
func (p Pair) IsCrypto() bool { return currency.IsCrypto(p.From) }

// Record is one stored rate observation.
type Record struct {
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// Table is the full rate snapshot persisted as one atomic unit.
type Table struct {
	Pairs       map[string]Record `json:"pairs"`
	LastRefresh time.Time         `json:"last_refresh"`
	Source      string            `json:"source"`
}

func NewTable(source string) Table {
	return Table{Pairs: map[string]Record{}, Source: source}
}

// HistoryEntry is one append-only observation in the history log.
type HistoryEntry struct {
	ID           string         `json:"id"`
	FromCurrency string         `json:"from_currency"`
	ToCurrency   string         `json:"to_currency"`
	Rate         float64        `json:"rate"`
	Timestamp    time.Time      `json:"timestamp"`
	Source       string         `json:"source"`
	Meta         map[string]any `json:"meta"`
}
