// Package frame provides the time-indexed columnar table used as the feature
// panel, together with the rolling statistics the preprocessors derive from it.
package frame

import (
	"fmt"
	"math"
	"time"
)

// Frame is a time-indexed table of named float64 columns. Missing values are
// stored as NaN. Column order is insertion order.
type Frame struct {
	index []time.Time
	names []string
	cols  map[string][]float64
}

// New creates an empty frame over the given index. The index slice is owned
// by the frame afterwards.
func New(index []time.Time) *Frame {
	return &Frame{
		index: index,
		cols:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns the row timestamps. Callers must not modify the slice.
func (f *Frame) Index() []time.Time { return f.index }

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the values of a column. Callers must not modify the slice.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// Value returns the value at (name, row). The second result is false when
// the column is absent or the value is NaN.
func (f *Frame) Value(name string, row int) (float64, bool) {
	c, ok := f.cols[name]
	if !ok || row < 0 || row >= len(c) {
		return math.NaN(), false
	}
	v := c[row]
	return v, !math.IsNaN(v)
}

// Set adds or replaces a column. The value slice must match the row count.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %s has %d values, frame has %d rows", name, len(values), len(f.index))
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	idx := make([]time.Time, len(f.index))
	copy(idx, f.index)
	out := New(idx)
	for _, name := range f.names {
		c := make([]float64, len(f.cols[name]))
		copy(c, f.cols[name])
		out.names = append(out.names, name)
		out.cols[name] = c
	}
	return out
}

// FillForward replaces each NaN with the closest earlier non-NaN value in
// the same column. Leading NaNs are left untouched.
func (f *Frame) FillForward() {
	for _, name := range f.names {
		c := f.cols[name]
		last := math.NaN()
		for i, v := range c {
			if math.IsNaN(v) {
				c[i] = last
				continue
			}
			last = v
		}
	}
}

// FillBackward replaces each NaN with the closest later non-NaN value in the
// same column. Trailing NaNs are left untouched.
func (f *Frame) FillBackward() {
	for _, name := range f.names {
		c := f.cols[name]
		next := math.NaN()
		for i := len(c) - 1; i >= 0; i-- {
			if math.IsNaN(c[i]) {
				c[i] = next
				continue
			}
			next = c[i]
		}
	}
}

// HasNaN reports whether any cell is NaN.
func (f *Frame) HasNaN() bool {
	for _, name := range f.names {
		for _, v := range f.cols[name] {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// DropDuplicateIndex keeps the first row of every timestamp and drops later
// repeats, preserving row order. It returns the number of rows dropped.
func (f *Frame) DropDuplicateIndex() int {
	seen := make(map[int64]struct{}, len(f.index))
	keep := make([]bool, len(f.index))
	for i, ts := range f.index {
		k := ts.UnixNano()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep[i] = true
	}
	return f.filter(keep)
}

// DropNaN removes every row that holds a NaN in any column. It returns the
// number of rows dropped.
func (f *Frame) DropNaN() int {
	keep := make([]bool, len(f.index))
	for i := range keep {
		keep[i] = true
		for _, name := range f.names {
			if math.IsNaN(f.cols[name][i]) {
				keep[i] = false
				break
			}
		}
	}
	return f.filter(keep)
}

func (f *Frame) filter(keep []bool) int {
	dropped := 0
	for _, k := range keep {
		if !k {
			dropped++
		}
	}
	if dropped == 0 {
		return 0
	}

	idx := make([]time.Time, 0, len(f.index)-dropped)
	for i, ts := range f.index {
		if keep[i] {
			idx = append(idx, ts)
		}
	}
	for _, name := range f.names {
		c := f.cols[name]
		out := make([]float64, 0, len(idx))
		for i, v := range c {
			if keep[i] {
				out = append(out, v)
			}
		}
		f.cols[name] = out
	}
	f.index = idx
	return dropped
}
