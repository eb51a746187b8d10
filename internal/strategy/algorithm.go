package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/engine"
	"algotrader/internal/frame"
	"algotrader/internal/preprocess"
)

// ErrNotPrepared is returned when trades are executed before PrepareData.
var ErrNotPrepared = errors.New("data not prepared")

var _ Strategy = (*Algorithm)(nil)

// State is everything an algorithm mutates while it runs. It is owned by the
// Algorithm and handed to the components that need it.
type State struct {
	Exec    *engine.State
	History *preprocess.RollingHistory
	Data    *frame.Frame

	prepared bool
}

// Result is the outcome of a full run. Its ledger and data are copies, so
// later single steps do not change it.
type Result struct {
	Algorithm string
	Tickers   []string
	Signals   map[string]domain.Position
	Ledger    *engine.Ledger
	Metrics   Metrics
	Data      *frame.Frame
}

// Algorithm runs the prepare, signal, execute and score sequence over one
// preprocessor.
type Algorithm struct {
	name    string
	tickers []string
	pre     preprocess.PreProcessor
	params  Params
	state   *State
	exec    *engine.Executor
	log     *slog.Logger
}

// NewAlgorithm creates an algorithm over pre. When pre can derive features
// one timestamp at a time it backs ExecuteTrade.
func NewAlgorithm(name string, tickers []string, pre preprocess.PreProcessor, params Params) *Algorithm {
	state := &State{Exec: engine.NewState(tickers)}
	var stepper engine.Stepper
	if s, ok := pre.(engine.Stepper); ok {
		stepper = s
	}
	if h, ok := pre.(interface {
		History() *preprocess.RollingHistory
	}); ok {
		state.History = h.History()
	}
	return &Algorithm{
		name:    name,
		tickers: tickers,
		pre:     pre,
		params:  params,
		state:   state,
		exec:    engine.NewExecutor(tickers, engine.NewSizer(params.PositionSize), state.Exec, stepper),
		log:     slog.Default().With("algorithm", name),
	}
}

// Name returns the algorithm name.
func (a *Algorithm) Name() string { return a.name }

// Tickers returns the traded tickers.
func (a *Algorithm) Tickers() []string { return a.tickers }

// Params returns the construction parameters.
func (a *Algorithm) Params() Params { return a.params }

// State returns the mutable run state.
func (a *Algorithm) State() *State { return a.state }

// PrepareData runs the preprocessing pipeline once and caches the result.
func (a *Algorithm) PrepareData(ctx context.Context) error {
	if a.state.prepared {
		return nil
	}
	f, err := preprocess.Process(ctx, a.pre)
	if err != nil {
		return err
	}
	a.state.Data = f
	a.state.prepared = true
	a.log.Info("data prepared", "rows", f.Len(), "tickers", len(a.tickers))
	return nil
}

// GenerateSignals returns the positions reached after walking the prepared
// features. Before PrepareData every ticker is in HOLD.
func (a *Algorithm) GenerateSignals() map[string]domain.Position {
	return a.state.Exec.Positions.GenerateSignals(a.state.Data)
}

// ExecuteTrades simulates the prepared panel from capital.
func (a *Algorithm) ExecuteTrades(capital float64) (*engine.Ledger, error) {
	if !a.state.prepared {
		return nil, ErrNotPrepared
	}
	return a.exec.ExecuteTrades(capital, a.state.Data)
}

// ExecuteTrade simulates one new timestamp. It continues from the prepared
// panel when there is one.
func (a *Algorithm) ExecuteTrade(capital float64, ts time.Time, prices map[string]float64) (engine.LedgerRow, error) {
	return a.exec.ExecuteTrade(capital, ts, prices)
}

// CalculateMetrics scores ledger.
func (a *Algorithm) CalculateMetrics(ledger *engine.Ledger) Metrics {
	return CalculateMetrics(ledger)
}

// Run prepares data, generates signals, executes every row and scores the
// ledger.
func (a *Algorithm) Run(ctx context.Context, capital float64) (*Result, error) {
	if err := a.PrepareData(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	signals := a.GenerateSignals()
	ledger, err := a.ExecuteTrades(capital)
	if err != nil {
		return nil, fmt.Errorf("%s: executing trades: %w", a.name, err)
	}
	m := a.CalculateMetrics(ledger)
	a.log.Info("run complete",
		"rows", ledger.Len(),
		"trades", m.TradeCount,
		"total_return", m.TotalReturn,
		"sharpe", m.SharpeRatio,
	)
	return &Result{
		Algorithm: a.name,
		Tickers:   a.tickers,
		Signals:   signals,
		Ledger:    ledger.Clone(),
		Metrics:   m,
		Data:      a.state.Data.Clone(),
	}, nil
}

// Reset clears positions, trades, history and cached data.
func (a *Algorithm) Reset() {
	a.state.Exec.Reset()
	a.state.Data = nil
	a.state.prepared = false
	if r, ok := a.pre.(interface{ Reset() }); ok {
		r.Reset()
	}
}
