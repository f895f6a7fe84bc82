package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(filepath.Join(dir, "rates.json"), filepath.Join(dir, "exchange_rates.json"), "USD", logger)
}

func sampleTable(now time.Time) rates.Table {
	t := rates.NewTable("ParserService")
	t.LastRefresh = now
	t.Pairs["BTC_USD"] = rates.Record{Rate: 50000, UpdatedAt: now, Source: "CoinGecko"}
	t.Pairs["USD_BTC"] = rates.Record{Rate: 0.00002, UpdatedAt: now, Source: "CoinGecko"}
	t.Pairs["EUR_USD"] = rates.Record{Rate: 0.93, UpdatedAt: now, Source: "ExchangeRateAPI"}
	return t
}

func TestLoadMissingFile(t *testing.T) {
	c := newTestCache(t)
	table, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, table.Pairs)
	assert.True(t, table.LastRefresh.IsZero())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, c.Save(sampleTable(now), nil))

	got, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "ParserService", got.Source)
	assert.True(t, got.LastRefresh.Equal(now))
	require.Len(t, got.Pairs, 3)
	assert.Equal(t, 50000.0, got.Pairs["BTC_USD"].Rate)
	assert.Equal(t, "CoinGecko", got.Pairs["BTC_USD"].Source)
}

func TestLoadCorruptFile(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.ratesPath), 0o750))
	require.NoError(t, os.WriteFile(c.ratesPath, []byte("{not json"), 0o640))

	_, err := c.Load()
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestAbandonedTempFileIsIgnored(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, c.Save(sampleTable(now), nil))

	// A crash between the temp write and the rename leaves a .tmp file
	// behind; the snapshot itself must stay readable and unchanged.
	require.NoError(t, os.WriteFile(c.ratesPath+".tmp", []byte("partial garba"), 0o640))

	got, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, got.Pairs, 3)
	assert.Equal(t, 0.93, got.Pairs["EUR_USD"].Rate)
}

func TestGetDirectInverseAndBridge(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	table := rates.NewTable("ParserService")
	table.LastRefresh = now
	table.Pairs["BTC_USD"] = rates.Record{Rate: 50000, UpdatedAt: now, Source: "CoinGecko"}
	table.Pairs["USD_EUR"] = rates.Record{Rate: 1.0753, UpdatedAt: now.Add(-time.Minute), Source: "calculated"}
	require.NoError(t, c.Save(table, nil))

	// Direct hit.
	rec, ok := c.Get("BTC", "USD")
	require.True(t, ok)
	assert.Equal(t, 50000.0, rec.Rate)
	assert.Equal(t, "CoinGecko", rec.Source)

	// Inverse of a stored pair.
	rec, ok = c.Get("USD", "BTC")
	require.True(t, ok)
	assert.InDelta(t, 0.00002, rec.Rate, 1e-9)
	assert.Equal(t, "CoinGecko", rec.Source)

	// Bridge through the base: BTC_EUR = BTC_USD * USD_EUR.
	rec, ok = c.Get("BTC", "EUR")
	require.True(t, ok)
	assert.InDelta(t, 50000*1.0753, rec.Rate, 1e-6)
	assert.Equal(t, "calculated", rec.Source)
	// The bridge carries the newer leg's timestamp.
	assert.True(t, rec.UpdatedAt.Equal(now))

	_, ok = c.Get("GBP", "JPY")
	assert.False(t, ok)
}

func TestFreshRate(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	table := rates.NewTable("ParserService")
	table.Pairs["BTC_USD"] = rates.Record{Rate: 50000, UpdatedAt: now, Source: "CoinGecko"}
	table.Pairs["EUR_USD"] = rates.Record{Rate: 0.93, UpdatedAt: now.Add(-time.Hour), Source: "ExchangeRateAPI"}
	require.NoError(t, c.Save(table, nil))

	ttl := 5 * time.Minute

	rec, err := c.FreshRate("BTC", "USD", ttl)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, rec.Rate)

	// Stale rates come back with the error so callers can still show them.
	rec, err = c.FreshRate("EUR", "USD", ttl)
	require.ErrorIs(t, err, apperrors.ErrStaleRate)
	assert.Equal(t, 0.93, rec.Rate)

	_, err = c.FreshRate("GBP", "JPY", ttl)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrStaleRate)
}
