package frame

import "math"

// Span returns the bounds [lo, hi] of the window of size w ending at row i,
// or centred on row i when centered is set. The window is clamped to
// [0, n-1], so rows near the edges use the history that is available.
func Span(i, n, w int, centered bool) (lo, hi int) {
	if w < 1 {
		w = 1
	}
	if centered {
		lo = i - w/2
		hi = lo + w - 1
	} else {
		lo = i - w + 1
		hi = i
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// TrailingMean is the mean of the last min(w, len(xs)) values of xs, or NaN
// when xs is empty.
func TrailingMean(xs []float64, w int) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	lo, hi := Span(len(xs)-1, len(xs), w, false)
	return sequentialMean(xs[lo : hi+1])
}

// MeanStd returns the mean and sample standard deviation of xs. The standard
// deviation is NaN for fewer than two values.
func MeanStd(xs []float64) (mean, std float64) {
	switch len(xs) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return xs[0], math.NaN()
	}
	mean = sequentialMean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// sequentialMean sums xs strictly left to right. The result depends only on
// the values, never on where the slice sits in memory, so a window cut from
// a long column and the same values in a fresh slice give the same bits.
func sequentialMean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Rolling computes the windowed mean and sample standard deviation for every
// row of xs. Windows are clamped to the available rows.
func Rolling(xs []float64, w int, centered bool) (means, stds []float64) {
	means = make([]float64, len(xs))
	stds = make([]float64, len(xs))
	for i := range xs {
		lo, hi := Span(i, len(xs), w, centered)
		means[i], stds[i] = MeanStd(xs[lo : hi+1])
	}
	return means, stds
}

// TrailingMeans returns, for every row, the mean of the last min(w, i+1)
// values. Row i is computed over exactly the values TrailingMean would see
// given xs[:i+1].
func TrailingMeans(xs []float64, w int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = TrailingMean(xs[:i+1], w)
	}
	return out
}

// ZScore returns (v - mean) / std and whether the score is defined. A zero
// or NaN std leaves the score undefined.
func ZScore(v, mean, std float64) (float64, bool) {
	if std == 0 || math.IsNaN(std) || math.IsNaN(mean) {
		return 0, false
	}
	return (v - mean) / std, true
}
