// Package store defines storage interfaces for persisting and retrieving
// price bars, capital ledgers and backtest run summaries.
package store

import (
	"context"
	"time"

	"algotrader/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunStore persists backtest run summaries.
type RunStore interface {
	// SaveRun inserts a run and returns its assigned ID.
	SaveRun(ctx context.Context, run *Run) (int64, error)

	// GetRun retrieves a single run by ID.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns the most recent runs for an algorithm, up to limit.
	// An empty algorithm lists runs of every algorithm.
	ListRuns(ctx context.Context, algorithm string, limit int) ([]Run, error)
}

// Run is the persisted summary of one backtest.
type Run struct {
	ID             int64
	Algorithm      string
	Tickers        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64
	AnnualReturn   float64
	SharpeRatio    float64
	MaxDrawdown    float64
	TradeCount     int
	WinRate        float64
	LedgerPath     string
	CreatedAt      time.Time
}
