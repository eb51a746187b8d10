package preprocess

import "time"

// HistoryRow is one retained timestamp: raw prices as loaded and clean
// prices after outlier correction.
type HistoryRow struct {
	Timestamp time.Time
	Raw       map[string]float64
	Clean     map[string]float64
}

// RollingHistory retains the most recent rows needed to compute windowed
// features across successive single-step calls. It never holds more than
// its capacity.
type RollingHistory struct {
	capacity int
	rows     []HistoryRow
}

// NewRollingHistory creates a history bounded to capacity rows (minimum 1).
func NewRollingHistory(capacity int) *RollingHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingHistory{capacity: capacity}
}

// Capacity returns the maximum number of retained rows.
func (h *RollingHistory) Capacity() int { return h.capacity }

// Len returns the number of retained rows.
func (h *RollingHistory) Len() int { return len(h.rows) }

// Push appends a row, evicting the oldest when full.
func (h *RollingHistory) Push(row HistoryRow) {
	h.rows = append(h.rows, row)
	if over := len(h.rows) - h.capacity; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(h.rows, h.rows[over:])
		clear(h.rows[n:])
		h.rows = h.rows[:n]
	}
}

// Last returns the most recent row.
func (h *RollingHistory) Last() (HistoryRow, bool) {
	if len(h.rows) == 0 {
		return HistoryRow{}, false
	}
	return h.rows[len(h.rows)-1], true
}

// Raw returns the ticker's raw prices in time order, skipping rows where the
// ticker is absent.
func (h *RollingHistory) Raw(ticker string) []float64 {
	return h.series(ticker, false)
}

// Clean returns the ticker's corrected prices in time order.
func (h *RollingHistory) Clean(ticker string) []float64 {
	return h.series(ticker, true)
}

func (h *RollingHistory) series(ticker string, clean bool) []float64 {
	out := make([]float64, 0, len(h.rows)+1)
	for _, r := range h.rows {
		m := r.Raw
		if clean {
			m = r.Clean
		}
		if v, ok := m[ticker]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Reset drops all retained rows.
func (h *RollingHistory) Reset() {
	h.rows = nil
}
