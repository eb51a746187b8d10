package us

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"algotrader/internal/domain"
	"algotrader/internal/gather"
	"algotrader/internal/store"
	"algotrader/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ BarClient = (*marketdata.Client)(nil)

// BarClient is the part of the Alpaca market-data client the gatherer uses.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// ---------------------------------------------------------------------------
// DailyBarGatherer: daily OHLCV bars for the backtest universe.
// ---------------------------------------------------------------------------

// Options configures a DailyBarGatherer.
type Options struct {
	Tickers         []string
	StartDate       string
	BatchSize       int // symbols per API call
	MaxWorkers      int // concurrent goroutines
	RateLimitPerMin int
	MaxAttempts     int
	RetryDelay      time.Duration
	Refetch         bool // ignore checkpoints and fetch from StartDate
}

// DailyBarGatherer fetches daily bars for a configured list of US tickers via
// the Alpaca market-data API and writes them to a Parquet bar store. Each
// rerun asks only for days after a ticker's last fetched day.
type DailyBarGatherer struct {
	client  BarClient
	store   *store.ParquetStore
	opts    Options
	endDate func() (time.Time, error)
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer using the Alpaca market-data
// API for bars and the Alpaca trading calendar for the end date.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL, baseURL string, s *store.ParquetStore, opts Options) *DailyBarGatherer {
	clientOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		clientOpts.BaseURL = dataURL
	}
	end := func() (time.Time, error) {
		return LatestFinishedTradingDay(apiKey, apiSecret, baseURL)
	}
	return NewDailyBarGathererWithClient(marketdata.NewClient(clientOpts), end, s, opts)
}

// NewDailyBarGathererWithClient creates a DailyBarGatherer over an arbitrary
// bar client and end-date source.
func NewDailyBarGathererWithClient(client BarClient, endDate func() (time.Time, error), s *store.ParquetStore, opts Options) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	tickers := make([]string, 0, len(opts.Tickers))
	for _, t := range opts.Tickers {
		tickers = append(tickers, strings.ToUpper(t))
	}
	opts.Tickers = tickers

	return &DailyBarGatherer{
		client:  client,
		store:   s,
		opts:    opts,
		endDate: endDate,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin, opts.MaxWorkers),
		log:     slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for every configured ticker up to the latest
// finished trading day. It is resumable and idempotent within a day.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse(dateLayout, g.opts.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}

	// 1. Determine end date from trading calendar.
	endDate, err := g.endDate()
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	// 2. Set up progress tracker.
	tracker, err := newProgressTracker(filepath.Join(g.store.DataDir, "us", "daily"))
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}

	if g.opts.Refetch {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting progress: %w", err)
		}
	}

	// 3. Group tickers that still need data by the first day to fetch.
	groups := make(map[time.Time][]string)
	retrying := 0
	for _, sym := range g.opts.Tickers {
		if tracker.IsTriedEmpty(sym) {
			retrying++
		}
		from := start
		if last, ok := tracker.LastFetched(sym); ok {
			if !last.Before(endDate) {
				continue
			}
			from = last.AddDate(0, 0, 1)
		}
		groups[from] = append(groups[from], sym)
	}

	// 4. Split into batches.
	type batch struct {
		from    time.Time
		symbols []string
	}
	var batches []batch
	froms := make([]time.Time, 0, len(groups))
	for from := range groups {
		froms = append(froms, from)
	}
	sort.Slice(froms, func(i, j int) bool { return froms[i].Before(froms[j]) })
	for _, from := range froms {
		syms := groups[from]
		for i := 0; i < len(syms); i += g.opts.BatchSize {
			batches = append(batches, batch{from: from, symbols: syms[i:min(i+g.opts.BatchSize, len(syms))]})
		}
	}

	g.log.Info("starting us-daily",
		"endDate", endDate.Format(dateLayout),
		"tickers", len(g.opts.Tickers),
		"batches", len(batches),
		"retryingEmpty", retrying,
	)
	if len(batches) == 0 {
		g.log.Info("all tickers up to date")
		return nil
	}

	// 5. Feed batches to workers.
	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.opts.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				b := batches[idx]
				n, err := g.runBatch(ctx, tracker, b.symbols, b.from, endDate)
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed",
						"batch", fmt.Sprintf("%d/%d", idx+1, len(batches)),
						"err", err,
					)
					continue
				}
				totalBars.Add(int64(n))
				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", idx+1, len(batches)),
					"bars", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"failedBatches", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

// runBatch fetches, stores and checkpoints one batch. It returns the number
// of bars written.
func (g *DailyBarGatherer) runBatch(ctx context.Context, tracker *progressTracker, symbols []string, from, to time.Time) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.MaxAttempts, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.fetchMultiBars(ctx, symbols, from, to)
		return err
	})
	if err != nil {
		return 0, err
	}

	hit := make(map[string]struct{})
	for _, b := range bars {
		hit[b.Symbol] = struct{}{}
	}
	// A ticker with earlier data and no new bars is still up to date.
	var fetched, empty []string
	for _, sym := range symbols {
		_, got := hit[sym]
		_, seen := tracker.LastFetched(sym)
		if got || seen {
			fetched = append(fetched, sym)
		} else {
			empty = append(empty, sym)
		}
	}

	if len(bars) > 0 {
		if err := g.store.WriteBars(ctx, bars); err != nil {
			return 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	if len(fetched) > 0 {
		if err := tracker.MarkFetched(fetched, to); err != nil {
			return 0, fmt.Errorf("checkpointing: %w", err)
		}
	}
	if len(empty) > 0 {
		g.log.Warn("no bars returned", "symbols", empty)
		if err := tracker.MarkEmpty(empty); err != nil {
			return 0, fmt.Errorf("marking empty: %w", err)
		}
	}
	return len(bars), nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Adjustment: marketdata.All,
		Feed:       "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.UTC(),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}
