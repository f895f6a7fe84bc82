package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

func entry(from, to string, rate float64, ts time.Time, source string) rates.HistoryEntry {
	return rates.HistoryEntry{FromCurrency: from, ToCurrency: to, Rate: rate, Timestamp: ts, Source: source}
}

func TestHistoryAppendAssignsIDs(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	err := c.Save(sampleTable(now), []rates.HistoryEntry{
		entry("BTC", "USD", 50000, now, "CoinGecko"),
		entry("EUR", "USD", 0.93, now, "ExchangeRateAPI"),
	})
	require.NoError(t, err)

	got, err := c.History(HistoryFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEmpty(t, got[1].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.NotNil(t, got[0].Meta)
}

func TestHistoryAccumulatesAcrossSaves(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.Save(sampleTable(now), []rates.HistoryEntry{entry("BTC", "USD", 49000, now.Add(-time.Hour), "CoinGecko")}))
	require.NoError(t, c.Save(sampleTable(now), []rates.HistoryEntry{entry("BTC", "USD", 50000, now, "CoinGecko")}))

	got, err := c.History(HistoryFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 49000.0, got[0].Rate)
	assert.Equal(t, 50000.0, got[1].Rate)
}

func TestHistoryFilterAndLimit(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	var entries []rates.HistoryEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, entry("BTC", "USD", 50000+float64(i), now.Add(time.Duration(i)*time.Minute), "CoinGecko"))
	}
	entries = append(entries, entry("EUR", "USD", 0.93, now, "ExchangeRateAPI"))
	require.NoError(t, c.Save(sampleTable(now), entries))

	got, err := c.History(HistoryFilter{Pair: "BTC_USD"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = c.History(HistoryFilter{Source: "ExchangeRateAPI"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EUR", got[0].FromCurrency)

	// Limit keeps the newest entries, still oldest first.
	got, err = c.History(HistoryFilter{Pair: "BTC_USD"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50003.0, got[0].Rate)
	assert.Equal(t, 50004.0, got[1].Rate)
}

type memArchiver struct {
	got []rates.HistoryEntry
	err error
}

func (m *memArchiver) ArchiveEntries(_ context.Context, entries []rates.HistoryEntry) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, entries...)
	return nil
}

func TestPruneHistory(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.Save(sampleTable(now), []rates.HistoryEntry{
		entry("BTC", "USD", 48000, now.Add(-48*time.Hour), "CoinGecko"),
		entry("BTC", "USD", 49000, now.Add(-25*time.Hour), "CoinGecko"),
		entry("BTC", "USD", 50000, now, "CoinGecko"),
	}))

	arch := &memArchiver{}
	removed, err := c.PruneHistory(context.Background(), now.Add(-24*time.Hour), arch)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Len(t, arch.got, 2)

	kept, err := c.History(HistoryFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, 50000.0, kept[0].Rate)
}

func TestPruneHistoryWithoutArchiver(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.Save(sampleTable(now), []rates.HistoryEntry{
		entry("BTC", "USD", 48000, now.Add(-48*time.Hour), "CoinGecko"),
	}))

	removed, err := c.PruneHistory(context.Background(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestPruneHistoryArchiveFailureAborts(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.Save(sampleTable(now), []rates.HistoryEntry{
		entry("BTC", "USD", 48000, now.Add(-48*time.Hour), "CoinGecko"),
	}))

	arch := &memArchiver{err: errors.New("disk full")}
	_, err := c.PruneHistory(context.Background(), now, arch)
	require.Error(t, err)

	// Nothing was dropped from the log.
	kept, err := c.History(HistoryFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestPruneHistoryEmptyLog(t *testing.T) {
	c := newTestCache(t)
	removed, err := c.PruneHistory(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
