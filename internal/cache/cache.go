// Package cache owns the on-disk rate state: the snapshot file replaced
// atomically on every save, and the append-only history log next to it.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

type Cache struct {
	ratesPath   string
	historyPath string
	base        string
	logger      *slog.Logger

	// mu serializes writers; readers rely on the atomic file replace.
	mu sync.Mutex
}

func New(ratesPath, historyPath, baseCurrency string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		ratesPath:   ratesPath,
		historyPath: historyPath,
		base:        baseCurrency,
		logger:      logger,
	}
}

// Load reads the current snapshot. A missing file yields an empty table; a
// present but unreadable file is an error, not silently empty state.
func (c *Cache) Load() (rates.Table, error) {
	b, err := os.ReadFile(c.ratesPath)
	if errors.Is(err, os.ErrNotExist) {
		return rates.NewTable(""), nil
	}
	if err != nil {
		return rates.Table{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrPersistence, c.ratesPath, err)
	}
	var t rates.Table
	if err := json.Unmarshal(b, &t); err != nil {
		return rates.Table{}, fmt.Errorf("%w: decode %s: %v", apperrors.ErrPersistence, c.ratesPath, err)
	}
	if t.Pairs == nil {
		t.Pairs = map[string]rates.Record{}
	}
	return t, nil
}

// Save atomically replaces the snapshot and appends the given entries to the
// history log. A failure at any point leaves the previous snapshot intact.
func (c *Cache) Save(table rates.Table, history []rates.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeSnapshot(table); err != nil {
		return err
	}
	if len(history) > 0 {
		if err := c.appendHistory(history); err != nil {
			return err
		}
	}
	c.logger.Debug("snapshot saved", "pairs", len(table.Pairs), "path", c.ratesPath)
	return nil
}

func (c *Cache) writeSnapshot(table rates.Table) error {
	if err := os.MkdirAll(filepath.Dir(c.ratesPath), 0o750); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	b, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", apperrors.ErrPersistence, err)
	}
	tmp := c.ratesPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", apperrors.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, c.ratesPath); err != nil {
		return fmt.Errorf("%w: replace %s: %v", apperrors.ErrPersistence, c.ratesPath, err)
	}
	return nil
}

// Get resolves a rate: direct pair first, then the stored inverse, then a
// bridge through the base currency computed on the fly.
func (c *Cache) Get(from, to string) (rates.Record, bool) {
	table, err := c.Load()
	if err != nil {
		c.logger.Warn("snapshot load failed", "err", err)
		return rates.Record{}, false
	}
	return lookup(table, from, to, c.base)
}

func lookup(table rates.Table, from, to, base string) (rates.Record, bool) {
	pair := rates.Pair{From: from, To: to}
	if rec, ok := table.Pairs[pair.String()]; ok {
		return rec, true
	}
	if rec, ok := table.Pairs[pair.Inverse().String()]; ok && rec.Rate != 0 {
		return rates.Record{Rate: 1 / rec.Rate, UpdatedAt: rec.UpdatedAt, Source: rec.Source}, true
	}

	// Bridge through the base currency.
	if from == base || to == base {
		return rates.Record{}, false
	}
	leg1, ok1 := table.Pairs[rates.Pair{From: from, To: base}.String()]
	leg2, ok2 := table.Pairs[rates.Pair{From: base, To: to}.String()]
	if !ok1 || !ok2 {
		return rates.Record{}, false
	}
	updated := leg1.UpdatedAt
	if leg2.UpdatedAt.After(updated) {
		updated = leg2.UpdatedAt
	}
	return rates.Record{Rate: leg1.Rate * leg2.Rate, UpdatedAt: updated, Source: "calculated"}, true
}

// FreshRate resolves a rate and gates it on the TTL. A stale rate is returned
// together with ErrStaleRate so callers can annotate instead of discarding.
func (c *Cache) FreshRate(from, to string, ttl time.Duration) (rates.Record, error) {
	rec, ok := c.Get(from, to)
	if !ok {
		return rates.Record{}, fmt.Errorf("no rate for %s_%s, run update-rates", from, to)
	}
	if !rates.IsFresh(rec.UpdatedAt, ttl) {
		return rec, fmt.Errorf("%w: %s_%s updated at %s", apperrors.ErrStaleRate, from, to, rec.UpdatedAt.Format(time.RFC3339))
	}
	return rec, nil
}
