package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/stat"

	"algotrader/internal/domain"
	"algotrader/internal/engine"
	"algotrader/internal/preprocess"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

func sine(n int, base, amp, period float64) []domain.PricePoint {
	out := make([]domain.PricePoint, n)
	for i := range out {
		out[i] = domain.PricePoint{Timestamp: day(i), Price: base + amp*math.Sin(float64(i)/period)}
	}
	return out
}

var testParams = Params{Preprocessor: "sma", PositionSize: 0.10, ShortWindow: 5, LongWindow: 20, OutlierWindow: 20}

func newSMA(tickers []string, src preprocess.Source) *Algorithm {
	pre := preprocess.NewSMAPreProcessor(tickers, src, time.Time{}, time.Time{}, preprocess.SMAConfig{
		ShortWindow:   testParams.ShortWindow,
		LongWindow:    testParams.LongWindow,
		OutlierWindow: testParams.OutlierWindow,
	})
	return NewAlgorithm("sma-cross", tickers, pre, testParams)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", func(s Setup) (Strategy, error) {
		return newSMA(s.Tickers, s.Source), nil
	})

	f, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	s, err := f(Setup{Tickers: []string{"AAPL"}, Source: preprocess.StaticSource{}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "sma-cross" {
		t.Errorf("factory built strategy with Name() = %q, want %q", s.Name(), "sma-cross")
	}
}

func TestRegistryNew_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.New("nonexistent", Setup{}); err == nil {
		t.Error("New returned no error for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", nil)
	r.Register("alpha", nil)

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestMetricsAlwaysHasAllKeys(t *testing.T) {
	ledgers := []*engine.Ledger{
		nil,
		{InitialCapital: 1000},
		{InitialCapital: 1000, Rows: []engine.LedgerRow{{Timestamp: day(0), Capital: 1000}, {Timestamp: day(1), Capital: 1100}}},
	}
	keys := []string{KeyTotalReturn, KeyAnnualReturn, KeySharpeRatio, KeyMaxDrawdown, KeyTradeCount, KeyWinRate}
	for i, l := range ledgers {
		m := CalculateMetrics(l).Map()
		if len(m) != len(keys) {
			t.Errorf("ledger %d: got %d keys, want %d", i, len(m), len(keys))
		}
		for _, k := range keys {
			if _, ok := m[k]; !ok {
				t.Errorf("ledger %d: missing key %q", i, k)
			}
		}
		if m[KeyWinRate] != 0 || m[KeyTradeCount] != 0 {
			t.Errorf("ledger %d: win rate %v with %v trades, want 0 and 0", i, m[KeyWinRate], m[KeyTradeCount])
		}
	}
}

func TestMetricsValues(t *testing.T) {
	l := &engine.Ledger{
		InitialCapital: 100,
		Rows: []engine.LedgerRow{
			{Timestamp: day(0), Capital: 110},
			{Timestamp: day(1), Capital: 99},
			{Timestamp: day0.Add(time.Duration(365.25 * 24 * float64(time.Hour))), Capital: 121},
		},
		TradeCount: 3,
		Legs: []engine.Leg{
			{Position: domain.PositionLong, EntryPrice: 10, ExitPrice: 12},
			{Position: domain.PositionShort, EntryPrice: 12, ExitPrice: 13},
			{Position: domain.PositionShort, EntryPrice: 13, ExitPrice: 11, Open: true},
		},
	}
	m := CalculateMetrics(l)

	if math.Abs(m.TotalReturn-0.21) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.21", m.TotalReturn)
	}
	if math.Abs(m.AnnualReturn-m.TotalReturn) > 1e-12 {
		t.Errorf("AnnualReturn = %v, want %v over exactly one year", m.AnnualReturn, m.TotalReturn)
	}
	if math.Abs(m.MaxDrawdown-0.1) > 1e-12 {
		t.Errorf("MaxDrawdown = %v, want 0.1", m.MaxDrawdown)
	}
	mean, std := stat.MeanStdDev([]float64{110.0/100 - 1, 99.0/110 - 1, 121.0/99 - 1}, nil)
	if want := mean / std * math.Sqrt(252); math.Abs(m.SharpeRatio-want) > 1e-12 {
		t.Errorf("SharpeRatio = %v, want %v", m.SharpeRatio, want)
	}
	if m.TradeCount != 3 {
		t.Errorf("TradeCount = %d, want 3", m.TradeCount)
	}
	if math.Abs(m.WinRate-2.0/3) > 1e-12 {
		t.Errorf("WinRate = %v, want 2/3", m.WinRate)
	}
}

func TestMetricsEdgeCases(t *testing.T) {
	flat := &engine.Ledger{
		InitialCapital: 100,
		Rows:           []engine.LedgerRow{{Timestamp: day(0), Capital: 100}, {Timestamp: day(1), Capital: 100}},
	}
	if m := CalculateMetrics(flat); m.SharpeRatio != 0 || m.MaxDrawdown != 0 || m.AnnualReturn != 0 {
		t.Errorf("flat ledger = %+v, want zero Sharpe, drawdown and annual return", m)
	}

	wiped := &engine.Ledger{
		InitialCapital: 100,
		Rows:           []engine.LedgerRow{{Timestamp: day(0), Capital: 50}, {Timestamp: day(10), Capital: 0}},
	}
	m := CalculateMetrics(wiped)
	if m.AnnualReturn != -1 || m.TotalReturn != -1 {
		t.Errorf("wiped ledger returns = %v/%v, want -1/-1", m.TotalReturn, m.AnnualReturn)
	}
	if m.MaxDrawdown != 1 {
		t.Errorf("wiped ledger MaxDrawdown = %v, want 1", m.MaxDrawdown)
	}

	single := &engine.Ledger{InitialCapital: 100, Rows: []engine.LedgerRow{{Timestamp: day(0), Capital: 101}}}
	if m := CalculateMetrics(single); m.AnnualReturn != 0 || m.SharpeRatio != 0 {
		t.Errorf("single-row ledger = %+v, want zero annual return and Sharpe", m)
	}
}

func TestAlgorithmRun(t *testing.T) {
	src := preprocess.StaticSource{
		"AAPL":  sine(120, 100, 10, 6),
		"GOOGL": sine(120, 150, 5, 9),
	}
	a := newSMA([]string{"AAPL", "GOOGL"}, src)
	res, err := a.Run(context.Background(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ledger.Len() != res.Data.Len() {
		t.Fatalf("ledger has %d rows, data %d", res.Ledger.Len(), res.Data.Len())
	}
	if res.Metrics.TradeCount == 0 || res.Metrics.TradeCount != res.Ledger.TradeCount {
		t.Errorf("TradeCount = %d, ledger %d; want equal and non-zero", res.Metrics.TradeCount, res.Ledger.TradeCount)
	}
	last := res.Ledger.Rows[res.Ledger.Len()-1]
	for tk, pos := range res.Signals {
		if last.Positions[tk] != pos {
			t.Errorf("signal %s = %v, last ledger position %v", tk, pos, last.Positions[tk])
		}
	}

	data := res.Data
	if err := a.PrepareData(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State().Data != data {
		t.Error("PrepareData recomputed cached features")
	}
}

func TestExecuteTradesRequiresPreparedData(t *testing.T) {
	a := newSMA([]string{"AAPL"}, preprocess.StaticSource{"AAPL": sine(10, 100, 1, 3)})
	if _, err := a.ExecuteTrades(10000); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("got %v, want ErrNotPrepared", err)
	}
}

func TestRunWithoutData(t *testing.T) {
	a := newSMA([]string{"AAPL"}, preprocess.StaticSource{})
	_, err := a.Run(context.Background(), 10000)
	var due *domain.DataUnavailableError
	if !errors.As(err, &due) {
		t.Fatalf("got %v, want DataUnavailableError", err)
	}
}

func TestBatchThenStepMatchesFullBatch(t *testing.T) {
	pts := sine(150, 100, 10, 7)
	tickers := []string{"AAPL"}

	full, err := newSMA(tickers, preprocess.StaticSource{"AAPL": pts}).Run(context.Background(), 10000)
	if err != nil {
		t.Fatal(err)
	}

	a := newSMA(tickers, preprocess.StaticSource{"AAPL": pts[:100]})
	res, err := a.Run(context.Background(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	capital := res.Ledger.FinalCapital()
	for _, pt := range pts[100:] {
		snap, err := a.ExecuteTrade(capital, pt.Timestamp, map[string]float64{"AAPL": pt.Price})
		if err != nil {
			t.Fatal(err)
		}
		capital = snap.Capital
	}

	got := a.State().Exec.Ledger
	if got.Len() != full.Ledger.Len() {
		t.Fatalf("continued ledger has %d rows, want %d", got.Len(), full.Ledger.Len())
	}
	for i := range got.Rows {
		if got.Rows[i].Capital != full.Ledger.Rows[i].Capital {
			t.Fatalf("row %d capital = %v, want %v", i, got.Rows[i].Capital, full.Ledger.Rows[i].Capital)
		}
	}
	if got.TradeCount != full.Ledger.TradeCount {
		t.Errorf("TradeCount = %d, want %d", got.TradeCount, full.Ledger.TradeCount)
	}
}

func TestReset(t *testing.T) {
	a := newSMA([]string{"AAPL"}, preprocess.StaticSource{"AAPL": sine(60, 100, 10, 4)})
	if _, err := a.Run(context.Background(), 10000); err != nil {
		t.Fatal(err)
	}
	a.Reset()
	st := a.State()
	if st.Data != nil || st.Exec.TradeCount() != 0 || st.Exec.Ledger.Len() != 0 {
		t.Errorf("state after Reset: data=%v trades=%d rows=%d", st.Data != nil, st.Exec.TradeCount(), st.Exec.Ledger.Len())
	}
	if st.Exec.Positions.Get("AAPL") != domain.PositionHold {
		t.Errorf("position after Reset = %v, want HOLD", st.Exec.Positions.Get("AAPL"))
	}
	if st.History == nil || st.History.Len() != 0 {
		t.Error("rolling history should be empty after Reset")
	}
}

func TestResultIsASnapshot(t *testing.T) {
	pts := sine(80, 100, 10, 5)
	a := newSMA([]string{"AAPL"}, preprocess.StaticSource{"AAPL": pts[:60]})
	res, err := a.Run(context.Background(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	rows, trades := res.Ledger.Len(), res.Ledger.TradeCount
	capital := res.Ledger.FinalCapital()
	for _, pt := range pts[60:] {
		if _, err := a.ExecuteTrade(capital, pt.Timestamp, map[string]float64{"AAPL": pt.Price}); err != nil {
			t.Fatal(err)
		}
	}
	if a.State().Exec.Ledger.Len() != 80 {
		t.Fatalf("live ledger has %d rows, want 80", a.State().Exec.Ledger.Len())
	}
	if res.Ledger.Len() != rows || res.Ledger.TradeCount != trades {
		t.Errorf("result ledger = %d rows, %d trades after stepping; want %d, %d", res.Ledger.Len(), res.Ledger.TradeCount, rows, trades)
	}
	if res.Data == a.State().Data {
		t.Error("result shares its frame with the algorithm state")
	}
}
