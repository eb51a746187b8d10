package regime

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// twoRegimes draws n calm up-trending returns followed by n volatile
// down-trending ones.
func twoRegimes(n int) []float64 {
	rng := rand.New(rand.NewSource(3))
	out := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, 0.01+0.004*rng.NormFloat64())
	}
	for i := 0; i < n; i++ {
		out = append(out, -0.01+0.02*rng.NormFloat64())
	}
	return out
}

func TestFitSeparatesRegimes(t *testing.T) {
	xs := twoRegimes(150)
	m, err := Fit(xs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Mean[Bull] <= m.Mean[Bear] {
		t.Fatalf("Mean = %v, want bull above bear", m.Mean)
	}
	if m.Var[Bull] >= m.Var[Bear] {
		t.Errorf("Var = %v, want the calm bull regime to have the lower variance", m.Var)
	}
	for j := 0; j < 2; j++ {
		if s := m.Trans[j][0] + m.Trans[j][1]; math.Abs(s-1) > 1e-9 {
			t.Errorf("Trans[%d] sums to %v, want 1", j, s)
		}
	}

	probs := m.Filter(xs)
	if len(probs) != len(xs) {
		t.Fatalf("Filter returned %d rows, want %d", len(probs), len(xs))
	}
	bullFirst, bearSecond := 0, 0
	for i, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("probs[%d] = %v, want a probability", i, p)
		}
		if i < 150 && p > 0.5 {
			bullFirst++
		}
		if i >= 150 && p < 0.5 {
			bearSecond++
		}
	}
	if bullFirst < 120 || bearSecond < 100 {
		t.Errorf("bull rows in first half = %d, bear rows in second half = %d; want most of each", bullFirst, bearSecond)
	}
}

func TestFilterIsCausal(t *testing.T) {
	xs := twoRegimes(60)
	m, err := Fit(xs, 0)
	if err != nil {
		t.Fatal(err)
	}
	full := m.Filter(xs)
	prefix := m.Filter(xs[:70])
	for i := range prefix {
		if prefix[i] != full[i] {
			t.Fatalf("row %d: %v on a prefix, %v on the full series", i, prefix[i], full[i])
		}
	}
}

func TestFitDegenerate(t *testing.T) {
	for _, xs := range [][]float64{nil, {0.01}, {0, 0, 0, 0}} {
		if _, err := Fit(xs, 10); !errors.Is(err, ErrDegenerate) {
			t.Errorf("Fit(%v) error = %v, want ErrDegenerate", xs, err)
		}
	}
}
