package domain

import (
	"fmt"
	"strings"
)

// DataUnavailableError is returned when the data source yields no usable
// rows for any of the requested tickers.
type DataUnavailableError struct {
	Tickers []string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no price data available for tickers [%s]", strings.Join(e.Tickers, ", "))
}

// InvalidPriceError is returned when a position is sized against a price
// that is zero, negative or not a number.
type InvalidPriceError struct {
	Ticker string
	Price  float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %v for %s: must be positive", e.Price, e.Ticker)
}
