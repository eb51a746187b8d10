// Package preprocess cleans raw price panels and derives the features each
// algorithm trades on. Every preprocessor runs the same four ordered stages:
// load, fill missing values, drop duplicate timestamps, correct outliers.
package preprocess

import (
	"context"
	"fmt"

	"algotrader/internal/frame"
)

// PreProcessor is the capability set shared by all preprocessors. Stages run
// in declaration order and are idempotent.
type PreProcessor interface {
	// Name identifies the preprocessor in configuration.
	Name() string

	// LoadData builds the initial feature panel, one price column per ticker.
	LoadData(ctx context.Context) error

	// MissingValues forward-fills then backward-fills gaps.
	MissingValues()

	// RemoveDuplicateTimestamps keeps the first row per timestamp key.
	RemoveDuplicateTimestamps()

	// RemoveOutliers replaces z-score outliers with the rolling mean and
	// derives the algorithm's features.
	RemoveOutliers()

	// Features returns the current feature panel, nil before LoadData.
	Features() *frame.Frame
}

// Process runs all stages of p in order and returns the cleaned panel.
// Rows still holding missing values after the stages are dropped.
func Process(ctx context.Context, p PreProcessor) (*frame.Frame, error) {
	if err := p.LoadData(ctx); err != nil {
		return nil, fmt.Errorf("%s: loading data: %w", p.Name(), err)
	}
	p.MissingValues()
	p.RemoveDuplicateTimestamps()
	p.RemoveOutliers()

	f := p.Features()
	if f == nil {
		return nil, fmt.Errorf("%s: no features after preprocessing", p.Name())
	}
	f.DropNaN()
	return f, nil
}

// PriceCol names a ticker's cleaned price column.
func PriceCol(ticker string) string { return ticker + "_price" }

// ShortCol names the fast side of a ticker's crossover pair.
func ShortCol(ticker string) string { return ticker + "_short" }

// LongCol names the slow side of a ticker's crossover pair.
func LongCol(ticker string) string { return ticker + "_long" }

// ReturnCol names a ticker's log-return column.
func ReturnCol(ticker string) string { return ticker + "_return" }

// VolatilityCol names a ticker's trailing return volatility column.
func VolatilityCol(ticker string) string { return ticker + "_volatility" }
