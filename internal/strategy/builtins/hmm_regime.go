package builtins

import (
	"fmt"

	"algotrader/internal/preprocess"
	"algotrader/internal/strategy"
)

var _ strategy.Runner = (*HMMRegime)(nil)

// HMMRegimeName is the registry name of the regime-switching strategy.
const HMMRegimeName = "hmm-regime"

// HMMRegime goes long while a two-state hidden Markov model fitted to a
// ticker's log returns puts it in the bull state and short while it puts it
// in the bear state. It has no single-step feature path, so ExecuteTrade
// returns engine.ErrNoStepper.
type HMMRegime struct {
	*strategy.Algorithm
	pre *preprocess.HMMPreProcessor
}

// NewHMMRegime builds the regime strategy over the "hmm" preprocessor.
func NewHMMRegime(setup strategy.Setup) (strategy.Strategy, error) {
	p := setup.Params
	if p.Preprocessor != "" && p.Preprocessor != "hmm" {
		return nil, fmt.Errorf("%s: unsupported preprocessor %q", HMMRegimeName, p.Preprocessor)
	}
	if len(setup.Tickers) == 0 {
		return nil, fmt.Errorf("%s: no tickers", HMMRegimeName)
	}
	pre := preprocess.NewHMMPreProcessor(setup.Tickers, setup.Source, setup.Start, setup.End, preprocess.HMMConfig{
		OutlierWindow: p.OutlierWindow,
	})
	return &HMMRegime{
		Algorithm: strategy.NewAlgorithm(HMMRegimeName, setup.Tickers, pre, p),
		pre:       pre,
	}, nil
}
