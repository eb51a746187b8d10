package engine

import (
	"maps"
	"sort"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/store"
)

// LedgerRow is the portfolio snapshot after one processed timestamp.
type LedgerRow struct {
	Timestamp time.Time
	Capital   float64
	Holdings  map[string]float64
	Positions map[string]domain.Position
	Prices    map[string]float64
}

// Leg is one position held from entry until the next position change. Open
// legs are marked at the most recent price.
type Leg struct {
	Ticker     string
	Position   domain.Position
	Shares     float64
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	Open       bool
}

// Return is the leg's signed price return.
func (l Leg) Return() float64 {
	if l.EntryPrice == 0 {
		return 0
	}
	return l.Position.Sign() * (l.ExitPrice - l.EntryPrice) / l.EntryPrice
}

// Ledger is the append-only record of a backtest: one row per processed
// timestamp, in strictly increasing time order.
type Ledger struct {
	InitialCapital float64
	Rows           []LedgerRow
	Legs           []Leg
	TradeCount     int
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.Rows) }

// FinalCapital returns the capital of the last row, or the initial capital
// of an empty ledger.
func (l *Ledger) FinalCapital() float64 {
	if len(l.Rows) == 0 {
		return l.InitialCapital
	}
	return l.Rows[len(l.Rows)-1].Capital
}

// Capitals returns the capital series, starting with the initial capital.
func (l *Ledger) Capitals() []float64 {
	out := make([]float64, 0, len(l.Rows)+1)
	out = append(out, l.InitialCapital)
	for _, r := range l.Rows {
		out = append(out, r.Capital)
	}
	return out
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		InitialCapital: l.InitialCapital,
		Rows:           make([]LedgerRow, len(l.Rows)),
		Legs:           make([]Leg, len(l.Legs)),
		TradeCount:     l.TradeCount,
	}
	for i, r := range l.Rows {
		r.Holdings = maps.Clone(r.Holdings)
		r.Positions = maps.Clone(r.Positions)
		r.Prices = maps.Clone(r.Prices)
		c.Rows[i] = r
	}
	copy(c.Legs, l.Legs)
	return c
}

// Records converts the ledger into its Parquet representation. Holdings are
// ordered by symbol.
func (l *Ledger) Records() []store.LedgerRecord {
	out := make([]store.LedgerRecord, len(l.Rows))
	for i, r := range l.Rows {
		symbols := make([]string, 0, len(r.Positions))
		for sym := range r.Positions {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		rec := store.LedgerRecord{
			Timestamp: r.Timestamp.UnixMilli(),
			Capital:   r.Capital,
			Holdings:  make([]store.HoldingRecord, 0, len(symbols)),
		}
		for _, sym := range symbols {
			rec.Holdings = append(rec.Holdings, store.HoldingRecord{
				Symbol:   sym,
				Shares:   r.Holdings[sym],
				Position: int32(r.Positions[sym]),
				Price:    r.Prices[sym],
			})
		}
		out[i] = rec
	}
	return out
}

// LedgerFromRecords rebuilds ledger rows from their Parquet representation.
func LedgerFromRecords(initialCapital float64, records []store.LedgerRecord) *Ledger {
	l := &Ledger{InitialCapital: initialCapital, Rows: make([]LedgerRow, len(records))}
	for i, rec := range records {
		row := LedgerRow{
			Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
			Capital:   rec.Capital,
			Holdings:  make(map[string]float64, len(rec.Holdings)),
			Positions: make(map[string]domain.Position, len(rec.Holdings)),
			Prices:    make(map[string]float64, len(rec.Holdings)),
		}
		for _, h := range rec.Holdings {
			row.Holdings[h.Symbol] = h.Shares
			row.Positions[h.Symbol] = domain.Position(h.Position)
			row.Prices[h.Symbol] = h.Price
		}
		l.Rows[i] = row
	}
	return l
}
