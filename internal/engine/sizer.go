package engine

import (
	"math"

	"algotrader/internal/domain"
)

// DefaultPositionSize is the fraction of portfolio value committed per
// position.
const DefaultPositionSize = 0.10

// Sizer converts a position into a signed share quantity as a fixed
// fraction of portfolio value.
type Sizer struct {
	fraction float64
}

// NewSizer creates a Sizer committing fraction of portfolio value per
// position (e.g. 0.10 for 10%). A non-positive fraction selects
// DefaultPositionSize.
func NewSizer(fraction float64) *Sizer {
	if fraction <= 0 || math.IsNaN(fraction) {
		fraction = DefaultPositionSize
	}
	return &Sizer{fraction: fraction}
}

// Fraction returns the configured position size.
func (s *Sizer) Fraction() float64 { return s.fraction }

// CalculatePositionSize returns the signed number of shares for pos: zero
// for HOLD, +fraction*portfolioValue/price for LONG and the negative of that
// for SHORT. A price that is not strictly positive is rejected for every
// position.
func (s *Sizer) CalculatePositionSize(pos domain.Position, ticker string, price, portfolioValue float64) (float64, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, &domain.InvalidPriceError{Ticker: ticker, Price: price}
	}
	switch pos {
	case domain.PositionLong:
		return s.fraction * portfolioValue / price, nil
	case domain.PositionShort:
		return -(s.fraction * portfolioValue / price), nil
	default:
		return 0, nil
	}
}
