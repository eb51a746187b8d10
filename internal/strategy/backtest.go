package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/preprocess"
	"algotrader/internal/store"
)

// Runner is a strategy that can run end to end.
type Runner interface {
	Strategy
	Run(ctx context.Context, capital float64) (*Result, error)
}

// Backtester replays stored bars through a registered strategy and scores
// the result.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	params   Params
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store,
// looks up strategies in the provided registry and builds them with params.
func NewBacktester(barStore store.BarStore, registry *Registry, params Params) *Backtester {
	return &Backtester{
		store:    barStore,
		registry: registry,
		params:   params,
		log:      slog.Default().With("component", "backtester"),
	}
}

// Run executes a backtest for the named strategy over the specified tickers
// and date range, starting with initialCapital.
func (bt *Backtester) Run(
	ctx context.Context,
	name string,
	tickers []string,
	start, end time.Time,
	initialCapital float64,
) (*Result, error) {
	s, err := bt.registry.New(name, Setup{
		Tickers: tickers,
		Source:  preprocess.NewStoreSource(bt.store, domain.MarketUS),
		Start:   start,
		End:     end,
		Params:  bt.params,
	})
	if err != nil {
		return nil, err
	}
	r, ok := s.(Runner)
	if !ok {
		return nil, fmt.Errorf("strategy %q cannot run a full backtest", name)
	}

	bt.log.Info("starting backtest",
		"strategy", name,
		"tickers", len(tickers),
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
	)
	return r.Run(ctx, initialCapital)
}
