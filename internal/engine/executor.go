// Package engine simulates capital allocation: it sizes positions, marks
// holdings to market and records every step in a capital ledger.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/frame"
	"algotrader/internal/preprocess"
	"algotrader/internal/signal"
	"algotrader/internal/telemetry"
)

// ErrNoStepper is returned by ExecuteTrade when the executor was built
// without a way to derive features from raw prices.
var ErrNoStepper = errors.New("executor has no feature stepper")

// Stepper derives one feature row from the raw prices of a new timestamp,
// keeping whatever history it needs between calls. ok is false when the
// timestamp was already processed.
type Stepper interface {
	Step(ts time.Time, prices map[string]float64) (row preprocess.FeatureRow, ok bool, err error)
}

// State is the mutable execution state carried from one step to the next.
type State struct {
	Positions *signal.Positions
	Holdings  map[string]float64
	LastPrice map[string]float64
	Ledger    *Ledger

	openLeg map[string]int
}

// NewState creates an empty state for tickers, every position in HOLD.
func NewState(tickers []string) *State {
	s := &State{Positions: signal.NewPositions(tickers)}
	s.Reset()
	return s
}

// TradeCount returns the number of position changes so far.
func (s *State) TradeCount() int { return s.Ledger.TradeCount }

// Reset clears holdings, positions and the ledger.
func (s *State) Reset() {
	s.Positions.Reset()
	s.Holdings = make(map[string]float64)
	s.LastPrice = make(map[string]float64)
	s.Ledger = &Ledger{}
	s.openLeg = make(map[string]int)
}

// Executor applies positions, sizing and mark-to-market accounting one
// timestamp at a time. Batch and single-step execution share the same step.
type Executor struct {
	tickers []string
	sizer   *Sizer
	state   *State
	stepper Stepper
	log     *slog.Logger
}

// NewExecutor creates an executor over state. stepper may be nil when only
// batch execution is used.
func NewExecutor(tickers []string, sizer *Sizer, state *State, stepper Stepper) *Executor {
	return &Executor{
		tickers: tickers,
		sizer:   sizer,
		state:   state,
		stepper: stepper,
		log:     slog.Default().With("component", "executor"),
	}
}

// State returns the execution state.
func (e *Executor) State() *State { return e.state }

// ExecuteTrades resets the state and runs every row of f in order, starting
// from capital. The returned ledger has one row per row of f.
func (e *Executor) ExecuteTrades(capital float64, f *frame.Frame) (*Ledger, error) {
	e.state.Reset()
	e.state.Ledger.InitialCapital = capital
	if f == nil {
		return e.state.Ledger, nil
	}
	for i := 0; i < f.Len(); i++ {
		row, err := e.step(capital, preprocess.RowAt(f, e.tickers, i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		capital = row.Capital
	}
	e.log.Debug("executed", "rows", f.Len(), "trades", e.state.TradeCount(), "capital", capital)
	return e.state.Ledger, nil
}

// ExecuteTrade processes one new timestamp of raw prices starting from
// capital and returns the resulting snapshot. A timestamp that was already
// processed returns the current snapshot unchanged.
func (e *Executor) ExecuteTrade(capital float64, ts time.Time, prices map[string]float64) (LedgerRow, error) {
	if e.stepper == nil {
		return LedgerRow{}, ErrNoStepper
	}
	row, ok, err := e.stepper.Step(ts, prices)
	if err != nil {
		return LedgerRow{}, err
	}
	if !ok {
		return e.snapshot(ts, capital), nil
	}
	return e.step(capital, row)
}

func (e *Executor) step(capital float64, row preprocess.FeatureRow) (LedgerRow, error) {
	s := e.state
	l := s.Ledger
	start := capital
	if n := len(l.Rows); n > 0 && !row.Timestamp.After(l.Rows[n-1].Timestamp) {
		return LedgerRow{}, fmt.Errorf("%w: %s", preprocess.ErrOutOfOrder, row.Timestamp.Format(time.RFC3339))
	}
	// Mark every holding to market before any resizing.
	prices := make(map[string]float64, len(e.tickers))
	for _, t := range e.tickers {
		price := math.NaN()
		if feat, ok := row.Tickers[t]; ok {
			price = feat.Price
		}
		last, seen := s.LastPrice[t]
		if math.IsNaN(price) {
			if !seen {
				continue
			}
			price = last
		} else if !validPrice(price) {
			return LedgerRow{}, &domain.InvalidPriceError{Ticker: t, Price: price}
		}
		if h := s.Holdings[t]; h != 0 && seen {
			capital += h * (price - last)
		}
		prices[t] = price
	}

	// Decide and size every transition before committing any, so a failed
	// step leaves the state untouched.
	type transition struct {
		ticker  string
		next    domain.Position
		shares  float64
		price   float64
		priced  bool
		changed bool
	}
	plan := make([]transition, 0, len(e.tickers))
	for _, t := range e.tickers {
		feat, ok := row.Tickers[t]
		short, long := math.NaN(), math.NaN()
		if ok {
			short, long = feat.Short, feat.Long
		}
		price, priced := prices[t]
		if !priced {
			price = math.NaN()
		}
		tr := transition{ticker: t, price: price, priced: priced}
		prev, next := s.Positions.Next(t, short, long)
		tr.next = next
		if next != prev {
			shares, err := e.sizer.CalculatePositionSize(next, t, price, capital)
			if err != nil {
				return LedgerRow{}, err
			}
			tr.shares, tr.changed = shares, true
		}
		plan = append(plan, tr)
	}

	for _, tr := range plan {
		t, price := tr.ticker, tr.price
		if tr.changed {
			s.Positions.Set(t, tr.next)
			l.TradeCount++
			telemetry.TradesTotal.WithLabelValues(t).Inc()
			e.closeLeg(t, row.Timestamp, price)
			s.Holdings[t] = tr.shares
			if tr.next != domain.PositionHold {
				s.openLeg[t] = len(l.Legs)
				l.Legs = append(l.Legs, Leg{
					Ticker:     t,
					Position:   tr.next,
					Shares:     tr.shares,
					EntryTime:  row.Timestamp,
					EntryPrice: price,
					ExitTime:   row.Timestamp,
					ExitPrice:  price,
					Open:       true,
				})
			}
		} else if i, open := s.openLeg[t]; open && tr.priced {
			l.Legs[i].ExitTime = row.Timestamp
			l.Legs[i].ExitPrice = price
		}
		if tr.priced {
			s.LastPrice[t] = price
		}
	}

	out := LedgerRow{
		Timestamp: row.Timestamp,
		Capital:   capital,
		Holdings:  maps.Clone(s.Holdings),
		Positions: s.Positions.Snapshot(),
		Prices:    prices,
	}
	if len(l.Rows) == 0 && l.InitialCapital == 0 {
		l.InitialCapital = start
	}
	l.Rows = append(l.Rows, out)
	telemetry.StepsTotal.Inc()
	return out, nil
}

func (e *Executor) closeLeg(ticker string, ts time.Time, price float64) {
	i, open := e.state.openLeg[ticker]
	if !open {
		return
	}
	leg := &e.state.Ledger.Legs[i]
	leg.ExitTime = ts
	leg.ExitPrice = price
	leg.Open = false
	delete(e.state.openLeg, ticker)
}

func (e *Executor) snapshot(ts time.Time, capital float64) LedgerRow {
	if n := len(e.state.Ledger.Rows); n > 0 {
		return e.state.Ledger.Rows[n-1]
	}
	return LedgerRow{
		Timestamp: ts,
		Capital:   capital,
		Holdings:  maps.Clone(e.state.Holdings),
		Positions: e.state.Positions.Snapshot(),
		Prices:    maps.Clone(e.state.LastPrice),
	}
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}
