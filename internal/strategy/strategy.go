// Package strategy composes preprocessing, signal generation, execution and
// scoring into backtestable algorithms, and provides a Registry for looking
// them up by name.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/engine"
	"algotrader/internal/preprocess"
)

// Strategy is the interface every backtestable algorithm implements.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// PrepareData runs the preprocessing pipeline. Later calls reuse the
	// cached features.
	PrepareData(ctx context.Context) error

	// GenerateSignals walks the prepared features and returns the positions
	// they lead to.
	GenerateSignals() map[string]domain.Position

	// ExecuteTrades simulates the whole prepared feature panel.
	ExecuteTrades(capital float64) (*engine.Ledger, error)

	// ExecuteTrade simulates one new timestamp of raw prices.
	ExecuteTrade(capital float64, ts time.Time, prices map[string]float64) (engine.LedgerRow, error)

	// CalculateMetrics scores a ledger.
	CalculateMetrics(ledger *engine.Ledger) Metrics

	// Reset returns the strategy to its freshly constructed state.
	Reset()
}

// Params are the construction parameters shared by the built-in strategies.
type Params struct {
	Preprocessor  string
	PositionSize  float64
	ShortWindow   int
	LongWindow    int
	OutlierWindow int
	OutlierCenter bool
}

// DefaultParams returns a 10% position size over the 50/200 SMA crossover.
func DefaultParams() Params {
	return Params{
		Preprocessor:  "sma",
		PositionSize:  engine.DefaultPositionSize,
		ShortWindow:   50,
		LongWindow:    200,
		OutlierWindow: preprocess.DefaultOutlierWindow,
	}
}

// Setup is everything a Factory needs to build a strategy.
type Setup struct {
	Tickers []string
	Source  preprocess.Source
	Start   time.Time
	End     time.Time
	Params  Params
}

// Factory builds a strategy from a setup.
type Factory func(Setup) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy.
func (r *Registry) New(name string, setup Setup) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, r.List())
	}
	return f(setup)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
