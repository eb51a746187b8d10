package preprocess

import (
	"math"

	"algotrader/internal/frame"
)

// DefaultOutlierWindow is the lookback of the z-score filter.
const DefaultOutlierWindow = 20

// zThreshold is the absolute z-score above which a price is an outlier.
const zThreshold = 3.0

// correctOutliers returns a copy of raw in which every value whose z-score
// against its rolling window exceeds zThreshold is replaced by the window
// mean. Statistics are always computed over raw values. The second result
// counts replaced values.
func correctOutliers(raw []float64, window int, centered bool) ([]float64, int) {
	means, stds := frame.Rolling(raw, window, centered)
	clean := make([]float64, len(raw))
	copy(clean, raw)
	n := 0
	for i, v := range raw {
		if isOutlier(v, means[i], stds[i]) {
			clean[i] = means[i]
			n++
		}
	}
	return clean, n
}

// correctLatest applies the filter to the last value of raw using a trailing
// window, matching what correctOutliers computes for that row.
func correctLatest(raw []float64, window int) (float64, bool) {
	last := raw[len(raw)-1]
	lo, hi := frame.Span(len(raw)-1, len(raw), window, false)
	mean, std := frame.MeanStd(raw[lo : hi+1])
	if isOutlier(last, mean, std) {
		return mean, true
	}
	return last, false
}

func isOutlier(v, mean, std float64) bool {
	z, ok := frame.ZScore(v, mean, std)
	return ok && math.Abs(z) > zThreshold
}
