// Package regime fits a two-state Gaussian hidden Markov model to a return
// series and reports, row by row, how likely the market is in its bull
// state given the returns seen so far.
package regime

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned by Fit for series that cannot separate two
// regimes: fewer than two values or zero variance.
var ErrDegenerate = errors.New("regime: series has no variance")

const (
	// DefaultIterations bounds the Baum-Welch passes of Fit.
	DefaultIterations = 100

	minVariance = 1e-12
	minDensity  = 1e-300
	tolerance   = 1e-9
)

// Bear and Bull index the two states. After Fit, Bull has the higher mean.
const (
	Bear = 0
	Bull = 1
)

// Model is a two-state HMM with Gaussian emissions.
type Model struct {
	Start [2]float64
	Trans [2][2]float64
	Mean  [2]float64
	Var   [2]float64
}

// Fit estimates a model for xs with Baum-Welch, starting from the lower and
// upper quartiles as state means. It runs at most iterations passes and
// stops early once the log-likelihood stops improving.
func Fit(xs []float64, iterations int) (Model, error) {
	if len(xs) < 2 {
		return Model{}, ErrDegenerate
	}
	variance := stat.Variance(xs, nil)
	if !(variance > minVariance) {
		return Model{}, ErrDegenerate
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	m := Model{
		Start: [2]float64{0.5, 0.5},
		Trans: [2][2]float64{{0.9, 0.1}, {0.1, 0.9}},
		Mean: [2]float64{
			stat.Quantile(0.25, stat.Empirical, sorted, nil),
			stat.Quantile(0.75, stat.Empirical, sorted, nil),
		},
		Var: [2]float64{variance, variance},
	}

	prev := math.Inf(-1)
	for it := 0; it < iterations; it++ {
		ll := m.step(xs)
		if ll-prev < tolerance {
			break
		}
		prev = ll
	}

	if m.Mean[Bear] > m.Mean[Bull] {
		m = m.swapped()
	}
	return m, nil
}

// Filter returns P(state = Bull | xs[0..t]) for every t. It only looks
// backwards, so row t never depends on later returns.
func (m Model) Filter(xs []float64) []float64 {
	alpha, _ := m.forward(xs)
	out := make([]float64, len(xs))
	for t := range alpha {
		out[t] = alpha[t][Bull]
	}
	return out
}

func (m Model) density(k int, x float64) float64 {
	d := x - m.Mean[k]
	p := math.Exp(-d*d/(2*m.Var[k])) / math.Sqrt(2*math.Pi*m.Var[k])
	return math.Max(p, minDensity)
}

// forward returns the normalized forward probabilities and the scale of
// each row.
func (m Model) forward(xs []float64) ([][2]float64, []float64) {
	alpha := make([][2]float64, len(xs))
	scale := make([]float64, len(xs))
	for t, x := range xs {
		for k := 0; k < 2; k++ {
			var prior float64
			if t == 0 {
				prior = m.Start[k]
			} else {
				prior = alpha[t-1][0]*m.Trans[0][k] + alpha[t-1][1]*m.Trans[1][k]
			}
			alpha[t][k] = prior * m.density(k, x)
		}
		c := alpha[t][0] + alpha[t][1]
		if c == 0 {
			alpha[t] = [2]float64{0.5, 0.5}
			c = minDensity
		} else {
			alpha[t][0] /= c
			alpha[t][1] /= c
		}
		scale[t] = c
	}
	return alpha, scale
}

// step runs one Baum-Welch pass in place and returns the log-likelihood of
// xs under the parameters it started from.
func (m *Model) step(xs []float64) float64 {
	n := len(xs)
	alpha, scale := m.forward(xs)

	beta := make([][2]float64, n)
	beta[n-1] = [2]float64{1, 1}
	for t := n - 2; t >= 0; t-- {
		for j := 0; j < 2; j++ {
			var s float64
			for k := 0; k < 2; k++ {
				s += m.Trans[j][k] * m.density(k, xs[t+1]) * beta[t+1][k]
			}
			beta[t][j] = s / scale[t+1]
		}
	}

	var (
		gammaSum [2]float64 // over all rows
		transSum [2]float64 // over all rows but the last
		xiSum    [2][2]float64
		meanNum  [2]float64
		start    [2]float64
	)
	gammas := make([][2]float64, n)
	for t := 0; t < n; t++ {
		g := [2]float64{alpha[t][0] * beta[t][0], alpha[t][1] * beta[t][1]}
		if s := g[0] + g[1]; s > 0 {
			g[0] /= s
			g[1] /= s
		}
		gammas[t] = g
		for k := 0; k < 2; k++ {
			gammaSum[k] += g[k]
			meanNum[k] += g[k] * xs[t]
			if t < n-1 {
				transSum[k] += g[k]
			}
		}
		if t == 0 {
			start = g
		}
		if t < n-1 {
			var xi [2][2]float64
			var s float64
			for j := 0; j < 2; j++ {
				for k := 0; k < 2; k++ {
					xi[j][k] = alpha[t][j] * m.Trans[j][k] * m.density(k, xs[t+1]) * beta[t+1][k]
					s += xi[j][k]
				}
			}
			if s > 0 {
				for j := 0; j < 2; j++ {
					for k := 0; k < 2; k++ {
						xiSum[j][k] += xi[j][k] / s
					}
				}
			}
		}
	}

	var ll float64
	for _, c := range scale {
		ll += math.Log(c)
	}

	m.Start = start
	for k := 0; k < 2; k++ {
		if transSum[k] > 0 {
			for j := 0; j < 2; j++ {
				m.Trans[k][j] = xiSum[k][j] / transSum[k]
			}
		}
		if gammaSum[k] > 0 {
			m.Mean[k] = meanNum[k] / gammaSum[k]
			var v float64
			for t, x := range xs {
				d := x - m.Mean[k]
				v += gammas[t][k] * d * d
			}
			m.Var[k] = math.Max(v/gammaSum[k], minVariance)
		}
	}
	return ll
}

func (m Model) swapped() Model {
	return Model{
		Start: [2]float64{m.Start[1], m.Start[0]},
		Trans: [2][2]float64{
			{m.Trans[1][1], m.Trans[1][0]},
			{m.Trans[0][1], m.Trans[0][0]},
		},
		Mean: [2]float64{m.Mean[1], m.Mean[0]},
		Var:  [2]float64{m.Var[1], m.Var[0]},
	}
}
