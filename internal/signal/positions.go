// Package signal turns crossover features into per-ticker positions.
package signal

import (
	"maps"
	"math"

	"algotrader/internal/domain"
	"algotrader/internal/frame"
	"algotrader/internal/preprocess"
)

// Positions is the per-ticker position state machine. Every ticker starts
// in HOLD and keeps its position across calls until Reset.
type Positions struct {
	tickers []string
	pos     map[string]domain.Position
}

// NewPositions creates a state machine for tickers, all in HOLD.
func NewPositions(tickers []string) *Positions {
	p := &Positions{tickers: tickers}
	p.Reset()
	return p
}

// Tickers returns the tracked tickers in configuration order.
func (p *Positions) Tickers() []string { return p.tickers }

// Next returns the position ticker would move to from one pair of averages
// without changing any state. A missing (NaN) average means HOLD; equal
// averages keep the current position.
func (p *Positions) Next(ticker string, short, long float64) (prev, next domain.Position) {
	prev = p.pos[ticker]
	switch {
	case math.IsNaN(short) || math.IsNaN(long):
		next = domain.PositionHold
	case short > long:
		next = domain.PositionLong
	case short < long:
		next = domain.PositionShort
	default:
		next = prev
	}
	return prev, next
}

// Set records pos as ticker's current position.
func (p *Positions) Set(ticker string, pos domain.Position) { p.pos[ticker] = pos }

// Apply transitions ticker from one pair of averages and returns the
// position held before and after.
func (p *Positions) Apply(ticker string, short, long float64) (prev, next domain.Position) {
	prev, next = p.Next(ticker, short, long)
	p.pos[ticker] = next
	return prev, next
}

// GenerateSignals walks f in row order, transitioning every ticker from its
// short and long columns, and returns the resulting positions. Tickers
// without both columns are set to HOLD.
func (p *Positions) GenerateSignals(f *frame.Frame) map[string]domain.Position {
	if f == nil {
		return p.Snapshot()
	}
	for _, t := range p.tickers {
		if !f.Has(preprocess.ShortCol(t)) || !f.Has(preprocess.LongCol(t)) {
			p.pos[t] = domain.PositionHold
		}
	}
	for i := 0; i < f.Len(); i++ {
		for _, t := range p.tickers {
			short, okS := f.Value(preprocess.ShortCol(t), i)
			long, okL := f.Value(preprocess.LongCol(t), i)
			if !okS || !okL {
				p.pos[t] = domain.PositionHold
				continue
			}
			p.Apply(t, short, long)
		}
	}
	return p.Snapshot()
}

// Get returns the current position of ticker.
func (p *Positions) Get(ticker string) domain.Position { return p.pos[ticker] }

// Snapshot returns a copy of all current positions.
func (p *Positions) Snapshot() map[string]domain.Position {
	return maps.Clone(p.pos)
}

// Reset puts every ticker back in HOLD.
func (p *Positions) Reset() {
	p.pos = make(map[string]domain.Position, len(p.tickers))
	for _, t := range p.tickers {
		p.pos[t] = domain.PositionHold
	}
}
