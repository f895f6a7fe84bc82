// Package aggregator runs one rate-update cycle: fan out to every configured
// source, merge what came back, derive cross rates through the base currency
// and hand the result to the cache.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/cache"
	"github.com/valutatrade/valutatrade-hub/internal/config"
	"github.com/valutatrade/valutatrade-hub/internal/metrics"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
	"github.com/valutatrade/valutatrade-hub/internal/sources"
)

const snapshotSource = "ParserService"

type ClassCounts struct {
	Fiat   int `json:"fiat"`
	Crypto int `json:"crypto"`
}

func (c *ClassCounts) add(isCrypto bool) {
	if isCrypto {
		c.Crypto++
	} else {
		c.Fiat++
	}
}

func (c ClassCounts) Total() int { return c.Fiat + c.Crypto }

type SourceStatus struct {
	Name    string
	OK      bool
	Pairs   int
	Err     string
	Elapsed time.Duration
}

// UpdateResult reports one aggregation run. A partially failed run is still a
// success as long as at least one source delivered.
type UpdateResult struct {
	Success     bool
	Fetched     ClassCounts
	Saved       ClassCounts
	Rejected    ClassCounts
	Derived     int
	Elapsed     time.Duration
	Sources     []SourceStatus
	LastRefresh time.Time
}

type Aggregator struct {
	cfg   config.ParserConfig
	srcs  []sources.Source
	cache *cache.Cache
	met   *metrics.RateMetrics
	log   *slog.Logger
}

// New wires an aggregator. met may be nil when metrics are not exported.
func New(cfg config.ParserConfig, srcs []sources.Source, c *cache.Cache, met *metrics.RateMetrics, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{cfg: cfg, srcs: srcs, cache: c, met: met, log: log}
}

type fetchResult struct {
	name    string
	rs      map[rates.Pair]float64
	at      time.Time
	err     error
	elapsed time.Duration
}

// Run performs one complete update. Individual source failures are collected
// into the result; only all-sources-failed or a persistence failure is an
// error, and in both cases the previous snapshot stays untouched.
func (a *Aggregator) Run(ctx context.Context) (UpdateResult, error) {
	start := time.Now()
	results := a.fetchAll(ctx)

	res := UpdateResult{}
	var succeeded []fetchResult
	for _, r := range results {
		st := SourceStatus{Name: r.name, OK: r.err == nil, Pairs: len(r.rs), Elapsed: r.elapsed}
		if r.err != nil {
			st.Err = r.err.Error()
			a.log.Warn("source failed", "source", r.name, "err", r.err)
			a.observeSource(r.name, "error")
		} else {
			succeeded = append(succeeded, r)
			a.log.Info("source fetched", "source", r.name, "pairs", len(r.rs), "elapsed", r.elapsed)
			a.observeSource(r.name, "ok")
			for p := range r.rs {
				res.Fetched.add(p.IsCrypto())
			}
		}
		res.Sources = append(res.Sources, st)
	}
	res.Elapsed = time.Since(start)

	if len(succeeded) == 0 {
		res.Success = false
		a.observeRun("failed", res.Elapsed)
		return res, fmt.Errorf("%w: all %d sources failed", apperrors.ErrNoSourcesAvailable, len(results))
	}

	table, history := a.merge(succeeded, &res)
	res.LastRefresh = table.LastRefresh
	res.Elapsed = time.Since(start)

	if err := a.cache.Save(table, history); err != nil {
		res.Success = false
		a.observeRun("failed", res.Elapsed)
		return res, err
	}

	res.Success = true
	outcome := "success"
	if len(succeeded) < len(results) {
		outcome = "partial"
	}
	a.observeRun(outcome, res.Elapsed)
	if a.met != nil {
		a.met.PairsInSnapshot.Set(float64(len(table.Pairs)))
	}
	a.log.Info("update complete",
		"sources_ok", len(succeeded), "sources_total", len(results),
		"saved", res.Saved.Total(), "rejected", res.Rejected.Total(),
		"derived", res.Derived, "elapsed", res.Elapsed)
	return res, nil
}

// fetchAll fans out one goroutine per source, each bounded by the per-source
// timeout, and collects whatever finished.
func (a *Aggregator) fetchAll(ctx context.Context) []fetchResult {
	policy := sources.RetryPolicy{
		Attempts: a.cfg.RetryAttempts,
		Delay:    a.cfg.RetryDelay(),
		Backoff:  a.cfg.RetryBackoff,
	}

	resCh := make(chan fetchResult, len(a.srcs))
	for _, src := range a.srcs {
		go func(src sources.Source) {
			fctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout())
			defer cancel()

			var elapsed time.Duration
			fetch := sources.WithTiming(
				sources.WithRetry(policy, src.Fetch),
				func(d time.Duration) {
					elapsed = d
					if a.met != nil {
						a.met.SourceDuration.WithLabelValues(src.Name()).Observe(d.Seconds())
					}
				},
			)
			rs, err := fetch(fctx)
			resCh <- fetchResult{name: src.Name(), rs: rs, at: time.Now().UTC(), err: err, elapsed: elapsed}
		}(src)
	}

	out := make([]fetchResult, 0, len(a.srcs))
	for range a.srcs {
		out = append(out, <-resCh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

type candidate struct {
	rate   float64
	at     time.Time
	source string
}

// merge combines per-source results into one table: newest timestamp wins per
// pair, ties go to the higher-priority source; every accepted pair is stored
// with its inverse, then missing cross pairs are bridged through the base.
func (a *Aggregator) merge(results []fetchResult, res *UpdateResult) (rates.Table, []rates.HistoryEntry) {
	direct := map[rates.Pair]candidate{}
	for _, r := range results {
		for pair, rate := range r.rs {
			cand := candidate{rate: rate, at: r.at, source: r.name}
			old, ok := direct[pair]
			if ok {
				if cand.at.Before(old.at) {
					continue
				}
				if cand.at.Equal(old.at) && a.priority(cand.source) >= a.priority(old.source) {
					continue
				}
			}
			direct[pair] = cand
		}
	}

	now := time.Now().UTC()
	table := rates.NewTable(snapshotSource)
	table.LastRefresh = now
	var history []rates.HistoryEntry

	for _, pair := range sortedKeys(direct) {
		cand := direct[pair]
		if !a.inBounds(cand.rate) {
			res.Rejected.add(pair.IsCrypto())
			a.observeRate("rejected", pair.IsCrypto())
			a.log.Warn("rate rejected", "pair", pair.String(), "rate", cand.rate, "source", cand.source)
			continue
		}
		table.Pairs[pair.String()] = rates.Record{Rate: cand.rate, UpdatedAt: cand.at, Source: cand.source}
		if inv := 1 / cand.rate; a.inBounds(inv) {
			table.Pairs[pair.Inverse().String()] = rates.Record{Rate: inv, UpdatedAt: cand.at, Source: cand.source}
		}
		res.Saved.add(pair.IsCrypto())
		a.observeRate("saved", pair.IsCrypto())
		history = append(history, rates.HistoryEntry{
			FromCurrency: pair.From,
			ToCurrency:   pair.To,
			Rate:         cand.rate,
			Timestamp:    cand.at,
			Source:       cand.source,
			Meta:         map[string]any{"success": true},
		})
	}

	history = append(history, a.bridge(table, res)...)
	return table, history
}

// bridge derives A_B = A_base * base_B for every currency pair convertible
// through the base but lacking a direct or inverse entry.
func (a *Aggregator) bridge(table rates.Table, res *UpdateResult) []rates.HistoryEntry {
	base := a.cfg.BaseCurrency

	var toBase, fromBase []string
	for key := range table.Pairs {
		pair, err := rates.ParsePair(key)
		if err != nil {
			continue
		}
		if pair.To == base {
			toBase = append(toBase, pair.From)
		}
		if pair.From == base {
			fromBase = append(fromBase, pair.To)
		}
	}
	sort.Strings(toBase)
	sort.Strings(fromBase)

	var history []rates.HistoryEntry
	for _, from := range toBase {
		for _, to := range fromBase {
			if from == to {
				continue
			}
			pair := rates.Pair{From: from, To: to}
			if _, ok := table.Pairs[pair.String()]; ok {
				continue
			}
			if _, ok := table.Pairs[pair.Inverse().String()]; ok {
				continue
			}
			leg1 := table.Pairs[rates.Pair{From: from, To: base}.String()]
			leg2 := table.Pairs[rates.Pair{From: base, To: to}.String()]
			rate := leg1.Rate * leg2.Rate
			if !a.inBounds(rate) {
				res.Rejected.add(pair.IsCrypto())
				a.observeRate("rejected", pair.IsCrypto())
				continue
			}
			at := leg1.UpdatedAt
			if leg2.UpdatedAt.After(at) {
				at = leg2.UpdatedAt
			}
			table.Pairs[pair.String()] = rates.Record{Rate: rate, UpdatedAt: at, Source: "calculated"}
			if inv := 1 / rate; a.inBounds(inv) {
				table.Pairs[pair.Inverse().String()] = rates.Record{Rate: inv, UpdatedAt: at, Source: "calculated"}
			}
			res.Derived++
			res.Saved.add(pair.IsCrypto())
			a.observeRate("saved", pair.IsCrypto())
			history = append(history, rates.HistoryEntry{
				FromCurrency: pair.From,
				ToCurrency:   pair.To,
				Rate:         rate,
				Timestamp:    at,
				Source:       "calculated",
				Meta:         map[string]any{"derived": true},
			})
		}
	}
	return history
}

func (a *Aggregator) inBounds(rate float64) bool {
	return rate >= a.cfg.MinRate && rate <= a.cfg.MaxRate
}

// priority returns the tie-break rank of a source, lower wins. Sources absent
// from the configured order rank last.
func (a *Aggregator) priority(source string) int {
	for i, name := range a.cfg.SourcePriority {
		if name == source {
			return i
		}
	}
	return len(a.cfg.SourcePriority)
}

func (a *Aggregator) observeRun(outcome string, elapsed time.Duration) {
	if a.met == nil {
		return
	}
	a.met.RunsTotal.WithLabelValues(outcome).Inc()
	a.met.RunDuration.Observe(elapsed.Seconds())
}

func (a *Aggregator) observeSource(name, outcome string) {
	if a.met != nil {
		a.met.SourceFetchTotal.WithLabelValues(name, outcome).Inc()
	}
}

func (a *Aggregator) observeRate(outcome string, isCrypto bool) {
	if a.met == nil {
		return
	}
	class := "fiat"
	if isCrypto {
		class = "crypto"
	}
	switch outcome {
	case "saved":
		a.met.RatesSavedTotal.WithLabelValues(class).Inc()
	case "rejected":
		a.met.RatesRejectedTotal.WithLabelValues(class).Inc()
	}
}

// sortedKeys fixes the merge iteration order so repeated runs with identical
// inputs produce identical tables and history order.
func sortedKeys(m map[rates.Pair]candidate) []rates.Pair {
	keys := make([]rates.Pair, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
