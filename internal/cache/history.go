package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// Archiver receives history entries removed by a prune. internal/db provides
// the sqlite implementation.
type Archiver interface {
	ArchiveEntries(ctx context.Context, entries []rates.HistoryEntry) error
}

type HistoryFilter struct {
	// Pair restricts entries to one direction, e.g. "BTC_USD". Empty keeps all.
	Pair string
	// Source restricts entries to one provider. Empty keeps all.
	Source string
}

// History returns the newest entries matching the filter, oldest first.
// limit <= 0 means no limit.
func (c *Cache) History(filter HistoryFilter, limit int) ([]rates.HistoryEntry, error) {
	entries, err := c.readHistory()
	if err != nil {
		return nil, err
	}

	out := entries[:0:0]
	for _, e := range entries {
		if filter.Pair != "" && e.FromCurrency+"_"+e.ToCurrency != filter.Pair {
			continue
		}
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PruneHistory drops entries older than the cutoff from the log. When an
// archiver is attached the dropped entries are handed to it first; an archive
// failure aborts the prune so no observation is lost.
func (c *Cache) PruneHistory(ctx context.Context, olderThan time.Time, archive Archiver) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.readHistory()
	if err != nil {
		return 0, err
	}

	keep := make([]rates.HistoryEntry, 0, len(entries))
	var pruned []rates.HistoryEntry
	for _, e := range entries {
		if e.Timestamp.Before(olderThan) {
			pruned = append(pruned, e)
		} else {
			keep = append(keep, e)
		}
	}
	if len(pruned) == 0 {
		return 0, nil
	}
	if archive != nil {
		if err := archive.ArchiveEntries(ctx, pruned); err != nil {
			return 0, fmt.Errorf("archive pruned entries: %w", err)
		}
	}
	if err := c.writeHistory(keep); err != nil {
		return 0, err
	}
	c.logger.Info("history pruned", "removed", len(pruned), "kept", len(keep))
	return len(pruned), nil
}

// appendHistory runs under c.mu (called from Save and PruneHistory paths).
func (c *Cache) appendHistory(newEntries []rates.HistoryEntry) error {
	entries, err := c.readHistory()
	if err != nil {
		return err
	}
	for _, e := range newEntries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		if e.Meta == nil {
			e.Meta = map[string]any{}
		}
		entries = append(entries, e)
	}
	return c.writeHistory(entries)
}

func (c *Cache) readHistory() ([]rates.HistoryEntry, error) {
	b, err := os.ReadFile(c.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrPersistence, c.historyPath, err)
	}
	var entries []rates.HistoryEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperrors.ErrPersistence, c.historyPath, err)
	}
	return entries, nil
}

func (c *Cache) writeHistory(entries []rates.HistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(c.historyPath), 0o750); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	if entries == nil {
		entries = []rates.HistoryEntry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode history: %v", apperrors.ErrPersistence, err)
	}
	tmp := c.historyPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", apperrors.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, c.historyPath); err != nil {
		return fmt.Errorf("%w: replace %s: %v", apperrors.ErrPersistence, c.historyPath, err)
	}
	return nil
}
