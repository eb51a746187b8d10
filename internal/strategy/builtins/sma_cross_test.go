package builtins

import (
	"context"
	"math"
	"testing"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/preprocess"
	"algotrader/internal/store"
	"algotrader/internal/strategy"
)

func TestNewSMACross(t *testing.T) {
	s, err := NewSMACross(strategy.Setup{
		Tickers: []string{"AAPL"},
		Source:  preprocess.StaticSource{},
		Params:  strategy.Params{ShortWindow: 10, LongWindow: 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "sma-cross" {
		t.Errorf("Name() = %q, want %q", s.Name(), "sma-cross")
	}
	short, long := s.(*SMACross).Windows()
	if short != 10 || long != 30 {
		t.Errorf("Windows() = %d/%d, want 10/30", short, long)
	}

	if _, err := NewSMACross(strategy.Setup{Tickers: []string{"AAPL"}, Params: strategy.Params{Preprocessor: "hmm"}}); err == nil {
		t.Error("expected an error for a preprocessor without crossover features")
	}
	if _, err := NewSMACross(strategy.Setup{}); err == nil {
		t.Error("expected an error without tickers")
	}
}

func TestBacktesterRunsFromBarStore(t *testing.T) {
	bars := store.NewParquetStore(t.TempDir())
	start := time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)
	var in []domain.Bar
	for i := 0; i < 90; i++ {
		p := 100 + 8*math.Sin(float64(i)/6)
		in = append(in, domain.Bar{
			Symbol:    "AAPL",
			Timestamp: start.AddDate(0, 0, i),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    1000,
		})
	}
	if err := bars.WriteBars(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	r := strategy.NewRegistry()
	Register(r)
	params := strategy.DefaultParams()
	params.ShortWindow, params.LongWindow = 5, 20
	bt := strategy.NewBacktester(bars, r, params)

	res, err := bt.Run(context.Background(), SMACrossName, []string{"AAPL"}, start, start.AddDate(0, 0, 89), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ledger.Len() != 90 {
		t.Fatalf("ledger has %d rows, want 90 (spanning two parquet years)", res.Ledger.Len())
	}
	if res.Metrics.TradeCount == 0 {
		t.Error("expected trades on an oscillating series")
	}
	if len(res.Metrics.Map()) != 6 {
		t.Errorf("metrics map has %d keys, want 6", len(res.Metrics.Map()))
	}

	if _, err := bt.Run(context.Background(), "unknown", []string{"AAPL"}, start, start, 10000); err == nil {
		t.Error("expected an error for an unregistered strategy")
	}
}
