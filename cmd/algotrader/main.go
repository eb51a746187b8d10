package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"algotrader/internal/config"
	"algotrader/internal/engine"
	"algotrader/internal/gather/us"
	"algotrader/internal/store"
	"algotrader/internal/strategy"
	"algotrader/internal/strategy/builtins"
	"algotrader/internal/telemetry"
	"algotrader/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: algotrader <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  gather     Fetch daily bars for the configured tickers\n")
		fmt.Fprintf(os.Stderr, "  run        Run a backtest and store its ledger and metrics\n")
		fmt.Fprintf(os.Stderr, "  runs       List recent backtest runs\n")
		fmt.Fprintf(os.Stderr, "  version    Print the version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("algotrader %s\n", version)
	case "gather":
		cmdGather(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// loadConfig reads the config file named by $ALGOTRADER_CONFIG (default
// config/algotrader.yaml) and installs the configured logger.
func loadConfig() *config.Config {
	cfgPath := "config/algotrader.yaml"
	if p := os.Getenv("ALGOTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format))

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		if _, err := telemetry.Serve(addr); err != nil {
			log.Fatalf("serving metrics on %s: %v", addr, err)
		}
		slog.Info("serving metrics", "addr", addr)
	}
	return cfg
}

func cmdGather(args []string) {
	fs := flag.NewFlagSet("gather", flag.ExitOnError)
	refetch := fs.Bool("refetch", false, "ignore checkpoints and fetch from the start date")
	_ = fs.Parse(args)

	cfg := loadConfig()
	if len(cfg.Backtest.Tickers) == 0 {
		log.Fatalf("no tickers configured (backtest.tickers or BACKTEST_TICKERS)")
	}

	job := cfg.Gather.USDaily
	g := us.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.BaseURL,
		store.NewParquetStore(cfg.Storage.DataDir),
		us.Options{
			Tickers:         cfg.Backtest.Tickers,
			StartDate:       job.StartDate,
			BatchSize:       job.BatchSize,
			MaxWorkers:      job.MaxWorkers,
			RateLimitPerMin: job.RateLimitPerMin,
			Refetch:         *refetch,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting gather", "gatherer", g.Name(), "tickers", len(cfg.Backtest.Tickers))
	if err := g.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	algorithm := fs.String("algorithm", "", "registered algorithm (overrides backtest.algorithm)")
	preprocessor := fs.String("preprocessor", "", "preprocessor (defaults to the algorithm's own when -algorithm is set)")
	tickers := fs.String("tickers", "", "comma-separated tickers (overrides backtest.tickers)")
	csvPath := fs.String("csv", "", "also write the ledger as CSV to this path")
	_ = fs.Parse(args)

	cfg := loadConfig()
	bt := &cfg.Backtest
	if *algorithm != "" {
		bt.Algorithm = *algorithm
		bt.Preprocessor = config.DefaultPreprocessor(*algorithm)
	}
	if *preprocessor != "" {
		bt.Preprocessor = *preprocessor
	}
	if *tickers != "" {
		bt.Tickers = splitTickers(*tickers)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	start, _ := bt.Start()
	end, _ := bt.End()
	if end.IsZero() {
		end = time.Now().UTC()
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	backtester := strategy.NewBacktester(bars, registry, strategy.Params{
		Preprocessor:  bt.Preprocessor,
		PositionSize:  bt.Params.PositionSize,
		ShortWindow:   bt.Params.ShortWindow,
		LongWindow:    bt.Params.LongWindow,
		OutlierWindow: bt.Params.OutlierWindow,
		OutlierCenter: bt.Params.OutlierCenter,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runAt := time.Now()
	res, err := backtester.Run(ctx, bt.Algorithm, bt.Tickers, start, end, bt.InitialCapital)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	ledgerPath := bars.LedgerPath(bt.Algorithm, runAt)
	if err := bars.WriteLedger(ledgerPath, res.Ledger.Records()); err != nil {
		log.Fatalf("writing ledger: %v", err)
	}
	if *csvPath != "" {
		if err := engine.WriteLedgerCSV(*csvPath, res.Tickers, res.Ledger); err != nil {
			log.Fatalf("writing ledger csv: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating sqlite dir: %v", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	m := res.Metrics
	id, err := runs.SaveRun(ctx, &store.Run{
		Algorithm:      res.Algorithm,
		Tickers:        res.Tickers,
		Start:          start,
		End:            end,
		InitialCapital: res.Ledger.InitialCapital,
		FinalCapital:   res.Ledger.FinalCapital(),
		TotalReturn:    m.TotalReturn,
		AnnualReturn:   m.AnnualReturn,
		SharpeRatio:    m.SharpeRatio,
		MaxDrawdown:    m.MaxDrawdown,
		TradeCount:     m.TradeCount,
		WinRate:        m.WinRate,
		LedgerPath:     ledgerPath,
		CreatedAt:      runAt,
	})
	if err != nil {
		log.Fatalf("saving run: %v", err)
	}

	slog.Info("backtest complete", "run", id, "ledger", ledgerPath, "rows", res.Ledger.Len())
	printMetrics(m.Map())
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	algorithm := fs.String("algorithm", "", "only list runs of this algorithm")
	limit := fs.Int("n", 20, "maximum number of runs")
	_ = fs.Parse(args)

	cfg := loadConfig()
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	list, err := runs.ListRuns(context.Background(), *algorithm, *limit)
	if err != nil {
		log.Fatalf("listing runs: %v", err)
	}
	for _, r := range list {
		fmt.Printf("%4d  %-10s  %-20s  %s..%s  total=%.4f sharpe=%.3f mdd=%.4f trades=%d\n",
			r.ID, r.Algorithm, strings.Join(r.Tickers, ","),
			r.Start.Format(config.DateLayout), r.End.Format(config.DateLayout),
			r.TotalReturn, r.SharpeRatio, r.MaxDrawdown, r.TradeCount)
	}
}

func printMetrics(m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-14s %.6f\n", k, m[k])
	}
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
