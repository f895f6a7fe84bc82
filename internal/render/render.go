// Package render turns cache state into the text shown by the CLI commands.
package render

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/currency"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

type ShowOptions struct {
	// Currency keeps only pairs with this code on either side.
	Currency string
	// Base keeps only pairs quoted against this code.
	Base string
	// Top keeps the N highest-rated crypto pairs, sorted descending.
	Top int
}

type line struct {
	pair   string
	rec    rates.Record
	crypto bool
}

// Table renders the snapshot. Stale records are annotated, never hidden.
func Table(t rates.Table, ttl time.Duration, opts ShowOptions) string {
	lines := make([]line, 0, len(t.Pairs))
	for key, rec := range t.Pairs {
		pair, err := rates.ParsePair(key)
		if err != nil {
			continue
		}
		if opts.Currency != "" && pair.From != opts.Currency && pair.To != opts.Currency {
			continue
		}
		if opts.Base != "" && pair.To != opts.Base {
			continue
		}
		if opts.Top > 0 && !pair.IsCrypto() {
			continue
		}
		lines = append(lines, line{pair: key, rec: rec, crypto: pair.IsCrypto()})
	}

	if opts.Top > 0 {
		sort.Slice(lines, func(i, j int) bool { return lines[i].rec.Rate > lines[j].rec.Rate })
		if len(lines) > opts.Top {
			lines = lines[:opts.Top]
		}
	} else {
		sort.Slice(lines, func(i, j int) bool { return lines[i].pair < lines[j].pair })
	}

	if len(lines) == 0 {
		return "Rate cache is empty. Run 'update-rates' to fetch data.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cached rates (last refresh: %s)\n", formatTime(t.LastRefresh))
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tRATE\tUPDATED\tSOURCE")
	now := time.Now()
	for _, l := range lines {
		age := ""
		if !rates.IsFreshAt(now, l.rec.UpdatedAt, ttl) {
			age = " (stale)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\n",
			l.pair, FormatRate(l.rec.Rate, l.crypto), formatTime(l.rec.UpdatedAt), age, l.rec.Source)
	}
	w.Flush()
	return b.String()
}

// Rate renders one get-rate lookup, including the reverse direction the way
// the trading side expects to see it.
func Rate(from, to string, rec rates.Record, fresh bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate %s -> %s: %.6f\n", from, to, rec.Rate)
	fmt.Fprintf(&b, "Updated: %s\n", formatTime(rec.UpdatedAt))
	fmt.Fprintf(&b, "Source: %s\n", rec.Source)
	if !fresh {
		b.WriteString("Warning: rate is stale, run 'update-rates' to refresh\n")
	}
	if rec.Rate != 0 {
		fmt.Fprintf(&b, "Reverse %s -> %s: %.6f\n", to, from, 1/rec.Rate)
	}
	return b.String()
}

func History(entries []rates.HistoryEntry) string {
	if len(entries) == 0 {
		return "History is empty.\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tPAIR\tRATE\tSOURCE")
	for _, e := range entries {
		crypto := currency.IsCrypto(e.FromCurrency)
		fmt.Fprintf(w, "%s\t%s_%s\t%s\t%s\n",
			formatTime(e.Timestamp), e.FromCurrency, e.ToCurrency, FormatRate(e.Rate, crypto), e.Source)
	}
	w.Flush()
	return b.String()
}

// FormatRate prints a rate with the precision its class needs: crypto values
// with 6 decimals, fiat with 2, large values with thousands separators.
func FormatRate(value float64, crypto bool) string {
	decimals := 2
	if crypto || (value < 1 && value > 0) {
		decimals = 6
	}
	return formatFloatWithCommas(value, decimals)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloatWithCommas(f float64, decimals int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	s := fmt.Sprintf("%.*f", decimals, f)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.Grow(len(s) + len(s)/3 + 1)
	b.WriteString(sign)

	if len(intPart) <= 3 {
		b.WriteString(intPart)
	} else {
		rem := len(intPart) % 3
		if rem == 0 {
			rem = 3
		}
		b.WriteString(intPart[:rem])
		for i := rem; i < len(intPart); i += 3 {
			b.WriteByte(',')
			b.WriteString(intPart[i : i+3])
		}
	}

	if decimals > 0 {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
