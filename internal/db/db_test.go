package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func archivedEntry(from, to string, rate float64, ts time.Time) rates.HistoryEntry {
	return rates.HistoryEntry{
		ID:           uuid.NewString(),
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		Timestamp:    ts,
		Source:       "CoinGecko",
		Meta:         map[string]any{"success": true},
	}
}

func TestArchiveAndQuery(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	entries := []rates.HistoryEntry{
		archivedEntry("BTC", "USD", 49000, now.Add(-2*time.Hour)),
		archivedEntry("BTC", "USD", 50000, now.Add(-time.Hour)),
		archivedEntry("EUR", "USD", 0.93, now),
	}
	require.NoError(t, d.ArchiveEntries(ctx, entries))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := d.Query(ctx, "BTC", "USD", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, 50000.0, got[0].Rate)
	assert.Equal(t, 49000.0, got[1].Rate)
	assert.True(t, got[0].Timestamp.Equal(now.Add(-time.Hour)))
	assert.Equal(t, map[string]any{"success": true}, got[0].Meta)

	got, err = d.Query(ctx, "", "", "CoinGecko", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.93, got[0].Rate)
}

func TestArchiveIdempotent(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	entries := []rates.HistoryEntry{archivedEntry("BTC", "USD", 50000, time.Now().UTC())}
	require.NoError(t, d.ArchiveEntries(ctx, entries))
	// A retried prune hands over the same ids again.
	require.NoError(t, d.ArchiveEntries(ctx, entries))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveEmptyIsNoop(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.ArchiveEntries(context.Background(), nil))
}

func TestBackupTo(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.ArchiveEntries(ctx, []rates.HistoryEntry{
		archivedEntry("BTC", "USD", 50000, time.Now().UTC()),
	}))

	dst := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, d.BackupTo(ctx, dst))

	restored, err := Open(dst)
	require.NoError(t, err)
	defer restored.Close()

	n, err := restored.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
