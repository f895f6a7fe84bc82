package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valutatrade/valutatrade-hub/internal/aggregator"
	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/cache"
	"github.com/valutatrade/valutatrade-hub/internal/config"
	"github.com/valutatrade/valutatrade-hub/internal/currency"
	"github.com/valutatrade/valutatrade-hub/internal/db"
	"github.com/valutatrade/valutatrade-hub/internal/metrics"
	"github.com/valutatrade/valutatrade-hub/internal/render"
	"github.com/valutatrade/valutatrade-hub/internal/scheduler"
	"github.com/valutatrade/valutatrade-hub/internal/sources"
)

const usage = `valutatrade - exchange rate pipeline

Commands:
  update-rates   fetch rates from all sources and refresh the cache
  show-rates     display the cached rate table
  get-rate       look up one conversion rate
  history        show the rate observation log
  prune-history  drop old history entries, optionally into the sqlite archive
  watch          run periodic updates until interrupted

Use "valutatrade <command> -h" for command flags.
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "update-rates":
		err = cmdUpdateRates(args)
	case "show-rates":
		err = cmdShowRates(args)
	case "get-rate":
		err = cmdGetRate(args)
	case "history":
		err = cmdHistory(args)
	case "prune-history":
		err = cmdPruneHistory(args)
	case "watch":
		err = cmdWatch(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cfgPath string) (config.ParserConfig, *slog.Logger, *cache.Cache, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.ParserConfig{}, nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)
	c := cache.New(cfg.RatesPath(), cfg.HistoryPath(), cfg.BaseCurrency, logger)
	return cfg, logger, c, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func cmdUpdateRates(args []string) error {
	fs := flag.NewFlagSet("update-rates", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	source := fs.String("source", "all", "source filter: coingecko, exchangerate, mock or all")
	fs.Parse(args)

	cfg, logger, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	srcs := sources.Build(cfg, logger, *source)
	if len(srcs) == 0 {
		return fmt.Errorf("no sources match filter %q", *source)
	}
	agg := aggregator.New(cfg, srcs, c, nil, logger)

	res, err := agg.Run(context.Background())
	printUpdateResult(res)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoSourcesAvailable) {
			return fmt.Errorf("update failed, cache left untouched: %w", err)
		}
		return err
	}
	return nil
}

func printUpdateResult(res aggregator.UpdateResult) {
	for _, st := range res.Sources {
		if st.OK {
			fmt.Printf("  %s: OK (%d rates, %s)\n", st.Name, st.Pairs, st.Elapsed.Round(time.Millisecond))
		} else {
			fmt.Printf("  %s: FAILED (%s)\n", st.Name, st.Err)
		}
	}
	if !res.Success {
		fmt.Println("Update failed: no rates saved.")
		return
	}
	fmt.Printf("Update complete in %s.\n", res.Elapsed.Round(time.Millisecond))
	fmt.Printf("  fetched: %d fiat, %d crypto\n", res.Fetched.Fiat, res.Fetched.Crypto)
	fmt.Printf("  saved:   %d fiat, %d crypto (%d bridged)\n", res.Saved.Fiat, res.Saved.Crypto, res.Derived)
	if res.Rejected.Total() > 0 {
		fmt.Printf("  rejected: %d fiat, %d crypto (out of bounds)\n", res.Rejected.Fiat, res.Rejected.Crypto)
	}
}

func cmdShowRates(args []string) error {
	fs := flag.NewFlagSet("show-rates", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	cur := fs.String("currency", "", "only pairs involving this currency")
	base := fs.String("base", "", "only pairs quoted against this currency")
	top := fs.Int("top", 0, "show the N highest-rated crypto pairs")
	fs.Parse(args)

	cfg, _, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	table, err := c.Load()
	if err != nil {
		return err
	}
	opts := render.ShowOptions{Top: *top}
	if *cur != "" {
		if opts.Currency, err = currency.ValidateCode(*cur); err != nil {
			return err
		}
	}
	if *base != "" {
		if opts.Base, err = currency.ValidateCode(*base); err != nil {
			return err
		}
	}
	fmt.Print(render.Table(table, cfg.RatesTTL(), opts))
	return nil
}

func cmdGetRate(args []string) error {
	fs := flag.NewFlagSet("get-rate", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	from := fs.String("from", "", "source currency code")
	to := fs.String("to", "", "target currency code")
	fs.Parse(args)

	if *from == "" || *to == "" {
		return fmt.Errorf("both -from and -to are required")
	}
	fromCode, err := currency.ValidateCode(*from)
	if err != nil {
		return err
	}
	toCode, err := currency.ValidateCode(*to)
	if err != nil {
		return err
	}

	cfg, _, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	rec, err := c.FreshRate(fromCode, toCode, cfg.RatesTTL())
	switch {
	case err == nil:
		fmt.Print(render.Rate(fromCode, toCode, rec, true))
	case errors.Is(err, apperrors.ErrStaleRate):
		fmt.Print(render.Rate(fromCode, toCode, rec, false))
	default:
		return err
	}
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	pair := fs.String("pair", "", "filter by pair, e.g. BTC_USD")
	source := fs.String("source", "", "filter by source name")
	limit := fs.Int("limit", 20, "max entries to show, 0 for all")
	archived := fs.Bool("archived", false, "read the sqlite archive instead of the log")
	fs.Parse(args)

	cfg, _, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}

	if *archived {
		arch, err := db.Open(cfg.ArchivePath())
		if err != nil {
			return err
		}
		defer arch.Close()
		var from, to string
		if *pair != "" {
			from, to, _ = strings.Cut(*pair, "_")
		}
		entries, err := arch.Query(context.Background(), from, to, *source, *limit)
		if err != nil {
			return err
		}
		fmt.Print(render.History(entries))
		return nil
	}

	entries, err := c.History(cache.HistoryFilter{Pair: *pair, Source: *source}, *limit)
	if err != nil {
		return err
	}
	fmt.Print(render.History(entries))
	return nil
}

func cmdPruneHistory(args []string) error {
	fs := flag.NewFlagSet("prune-history", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	olderThan := fs.Duration("older-than", 7*24*time.Hour, "prune entries older than this age")
	archive := fs.Bool("archive", false, "move pruned entries into the sqlite archive")
	fs.Parse(args)

	cfg, _, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}

	var arch cache.Archiver
	if *archive {
		sdb, err := db.Open(cfg.ArchivePath())
		if err != nil {
			return err
		}
		defer sdb.Close()
		arch = sdb
	}

	removed, err := c.PruneHistory(context.Background(), time.Now().Add(-*olderThan), arch)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d history entries.\n", removed)
	return nil
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "path to config.json")
	interval := fs.Duration("interval", 0, "override update interval")
	fs.Parse(args)

	cfg, logger, c, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	if *interval > 0 {
		cfg.UpdateIntervalSec = int((*interval).Seconds())
	}

	reg := prometheus.NewRegistry()
	met := metrics.NewRateMetrics(reg)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	srcs := sources.Build(cfg, logger, "all")
	agg := aggregator.New(cfg, srcs, c, met, logger)
	sched := scheduler.New(agg, cfg.UpdateInterval(), met, logger)
	sched.Start(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	if err := sched.Stop(5 * time.Second); err != nil {
		return err
	}
	st := sched.Status()
	fmt.Printf("Runs: %d scheduled, %d ok, %d failed.\n", st.ScheduledRuns, st.SuccessfulRuns, st.FailedRuns)
	return nil
}
