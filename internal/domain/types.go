// Package domain defines the core types shared across the backtesting
// engine: bars, price panels, observations and positions.
package domain

import (
	"fmt"
	"time"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
)

// Bar is a single OHLCV bar for a symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// PricePoint is one (timestamp, price) observation of a single ticker.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// PricePanel maps a ticker to its time-ordered price series.
type PricePanel map[string][]PricePoint

// Rows returns the total number of observations across all tickers.
func (p PricePanel) Rows() int {
	n := 0
	for _, pts := range p {
		n += len(pts)
	}
	return n
}

// PanelFromBars groups bars by symbol, using the bar's open price as the
// tradeable price. Order within each symbol follows the input order.
func PanelFromBars(bars []Bar) PricePanel {
	panel := make(PricePanel)
	for _, b := range bars {
		panel[b.Symbol] = append(panel[b.Symbol], PricePoint{Timestamp: b.Timestamp, Price: b.Open})
	}
	return panel
}

// Observation is a long-format panel row: one price for one ticker at one
// point in time.
type Observation struct {
	Timestamp time.Time
	Symbol    string
	Price     float64
}

// Observations flattens a panel into long format, ticker by ticker in the
// given order.
func (p PricePanel) Observations(tickers []string) []Observation {
	out := make([]Observation, 0, p.Rows())
	for _, t := range tickers {
		for _, pt := range p[t] {
			out = append(out, Observation{Timestamp: pt.Timestamp, Symbol: t, Price: pt.Price})
		}
	}
	return out
}

// Position is the directional stance held for one ticker.
type Position int

const (
	PositionShort Position = -1
	PositionHold  Position = 0
	PositionLong  Position = 1
)

// String returns "SHORT", "HOLD" or "LONG".
func (p Position) String() string {
	switch p {
	case PositionShort:
		return "SHORT"
	case PositionHold:
		return "HOLD"
	case PositionLong:
		return "LONG"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Sign returns -1, 0 or +1 for the position direction.
func (p Position) Sign() float64 {
	return float64(p)
}
