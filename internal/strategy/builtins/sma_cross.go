// Package builtins provides built-in strategy implementations that ship with
// algotrader.
package builtins

import (
	"fmt"

	"algotrader/internal/preprocess"
	"algotrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Runner = (*SMACross)(nil)

// SMACrossName is the registry name of the SMA crossover strategy.
const SMACrossName = "sma-cross"

// SMACross implements a simple moving average crossover strategy. It goes
// long while the short-window average is above the long-window average and
// short while it is below.
type SMACross struct {
	*strategy.Algorithm
	pre *preprocess.SMAPreProcessor
}

// NewSMACross builds the SMA crossover strategy. It supports only the "sma"
// preprocessor, the one that derives short and long averages.
func NewSMACross(setup strategy.Setup) (strategy.Strategy, error) {
	p := setup.Params
	if p.Preprocessor != "" && p.Preprocessor != "sma" {
		return nil, fmt.Errorf("%s: unsupported preprocessor %q", SMACrossName, p.Preprocessor)
	}
	if len(setup.Tickers) == 0 {
		return nil, fmt.Errorf("%s: no tickers", SMACrossName)
	}
	pre := preprocess.NewSMAPreProcessor(setup.Tickers, setup.Source, setup.Start, setup.End, preprocess.SMAConfig{
		ShortWindow:   p.ShortWindow,
		LongWindow:    p.LongWindow,
		OutlierWindow: p.OutlierWindow,
		OutlierCenter: p.OutlierCenter,
	})
	return &SMACross{
		Algorithm: strategy.NewAlgorithm(SMACrossName, setup.Tickers, pre, p),
		pre:       pre,
	}, nil
}

// Windows returns the short and long windows in use.
func (s *SMACross) Windows() (short, long int) {
	cfg := s.pre.Config()
	return cfg.ShortWindow, cfg.LongWindow
}

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, NewSMACross)
	r.Register(HMMRegimeName, NewHMMRegime)
}
