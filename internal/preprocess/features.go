package preprocess

import (
	"errors"
	"math"
	"sort"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/frame"
)

// ErrOutOfOrder is returned when a step arrives with a timestamp earlier
// than one already processed.
var ErrOutOfOrder = errors.New("timestamp out of order")

// Features holds one ticker's values at one timestamp. Missing values are NaN.
type Features struct {
	Price float64
	Short float64
	Long  float64
}

// FeatureRow is a single timestamp of the feature panel.
type FeatureRow struct {
	Timestamp time.Time
	Tickers   map[string]Features
}

// RowAt extracts row i of f for the given tickers.
func RowAt(f *frame.Frame, tickers []string, i int) FeatureRow {
	row := FeatureRow{
		Timestamp: f.Index()[i],
		Tickers:   make(map[string]Features, len(tickers)),
	}
	for _, t := range tickers {
		price, _ := f.Value(PriceCol(t), i)
		short, _ := f.Value(ShortCol(t), i)
		long, _ := f.Value(LongCol(t), i)
		row.Tickers[t] = Features{Price: price, Short: short, Long: long}
	}
	return row
}

// buildPriceFrame lays the panel out as one price column per ticker over the
// union of timestamps. A timestamp observed k times for some ticker gets k
// rows, the j-th observation landing in the j-th row; tickers with fewer
// observations there get NaN. It returns the tickers that had data.
func buildPriceFrame(panel domain.PricePanel, tickers []string) (*frame.Frame, []string) {
	type slot struct {
		ts   time.Time
		rows int
	}
	slots := make(map[int64]*slot)
	series := make(map[string][]domain.PricePoint)
	var active []string

	for _, t := range tickers {
		if _, dup := series[t]; dup || len(panel[t]) == 0 {
			continue
		}
		pts := make([]domain.PricePoint, len(panel[t]))
		copy(pts, panel[t])
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
		series[t] = pts
		active = append(active, t)

		counts := make(map[int64]int)
		for _, pt := range pts {
			k := pt.Timestamp.UnixNano()
			counts[k]++
			s := slots[k]
			if s == nil {
				s = &slot{ts: pt.Timestamp}
				slots[k] = s
			}
			if counts[k] > s.rows {
				s.rows = counts[k]
			}
		}
	}

	keys := make([]int64, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var index []time.Time
	first := make(map[int64]int, len(keys))
	for _, k := range keys {
		first[k] = len(index)
		for r := 0; r < slots[k].rows; r++ {
			index = append(index, slots[k].ts)
		}
	}

	f := frame.New(index)
	for _, t := range active {
		col := make([]float64, len(index))
		for i := range col {
			col[i] = math.NaN()
		}
		seen := make(map[int64]int)
		for _, pt := range series[t] {
			k := pt.Timestamp.UnixNano()
			col[first[k]+seen[k]] = pt.Price
			seen[k]++
		}
		_ = f.Set(PriceCol(t), col)
	}
	return f, active
}

// DedupObservations keeps the first observation of every (timestamp, ticker)
// key and drops later repeats, preserving order otherwise.
func DedupObservations(obs []domain.Observation) []domain.Observation {
	type key struct {
		ts     int64
		symbol string
	}
	seen := make(map[key]struct{}, len(obs))
	out := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		k := key{o.Timestamp.UnixNano(), o.Symbol}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}
