package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"algotrader/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("aapl", "us", ts)

	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}

	lp := ps.LedgerPath("sma-cross", time.Date(2025, 3, 14, 9, 30, 5, 0, time.UTC))
	wantLedger := filepath.Join("/data", "ledgers", "sma-cross", "20250314-093005.parquet")
	if lp != wantLedger {
		t.Errorf("LedgerPath mismatch:\n  got  %s\n  want %s", lp, wantLedger)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 185.5, Close: 186.0},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185.0, Close: 185.5},
		{Symbol: "AAPL", Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Open: 192.0, Close: 192.5},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("bars not in ascending order at %d: %v then %v", i, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
	if got[1].Open != 185.0 {
		t.Errorf("second bar Open = %v, want 185.0", got[1].Open)
	}

	// A range starting after the first year file still works.
	got, err = ps.ReadBars(ctx, "AAPL", "us", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ReadBars(from 2024-01-03) returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := ps.WriteBars(ctx, []domain.Bar{{Symbol: "MSFT", Timestamp: d, Open: 400}}); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	// Same timestamp again overwrites, a new one is merged in.
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: d, Open: 401},
		{Symbol: "MSFT", Timestamp: d.AddDate(0, 0, 3), Open: 403},
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", d, d.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Open != 401 {
		t.Errorf("merged bar Open = %v, want newer value 401", got[0].Open)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if syms, err := ps.ListSymbols(ctx, "us"); err != nil || syms != nil {
		t.Fatalf("ListSymbols on empty dir = %v, %v; want nil, nil", syms, err)
	}

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 140.0},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185.0},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStoreLedger(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	path := ps.LedgerPath("sma-cross", time.Now())

	records := []LedgerRecord{
		{
			Timestamp: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(),
			Capital:   10000,
			Holdings:  []HoldingRecord{{Symbol: "AAPL", Shares: 10, Position: 1, Price: 100}},
		},
		{
			Timestamp: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC).UnixMilli(),
			Capital:   10050,
			Holdings:  []HoldingRecord{{Symbol: "AAPL", Shares: 10, Position: 1, Price: 105}},
		},
	}
	if err := ps.WriteLedger(path, records); err != nil {
		t.Fatalf("WriteLedger: %v", err)
	}

	got, err := ps.ReadLedger(path)
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadLedger returned %d rows, want 2", len(got))
	}
	if got[1].Capital != 10050 || len(got[1].Holdings) != 1 || got[1].Holdings[0].Symbol != "AAPL" {
		t.Errorf("ReadLedger row 1 = %+v, want capital 10050 with one AAPL holding", got[1])
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &Run{
		Algorithm:      "sma-cross",
		Tickers:        []string{"AAPL", "GOOGL"},
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		FinalCapital:   11000,
		TotalReturn:    0.1,
		TradeCount:     4,
		WinRate:        0.5,
		CreatedAt:      base,
	}
	id, err := store.SaveRun(ctx, first)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if id == 0 || first.ID != id {
		t.Fatalf("SaveRun id = %d, run.ID = %d; want matching non-zero", id, first.ID)
	}
	if _, err := store.SaveRun(ctx, &Run{Algorithm: "other", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveRun (second): %v", err)
	}

	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Algorithm != "sma-cross" || len(got.Tickers) != 2 || got.Tickers[1] != "GOOGL" {
		t.Errorf("GetRun = %+v, want sma-cross over [AAPL GOOGL]", got)
	}
	if got.TradeCount != 4 || got.FinalCapital != 11000 || !got.End.Equal(first.End) {
		t.Errorf("GetRun lost fields: %+v", got)
	}

	if _, err := store.GetRun(ctx, 999); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(999) error = %v, want ErrRunNotFound", err)
	}

	all, err := store.ListRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListRuns(all) returned %d runs, want 2", len(all))
	}
	if all[0].Algorithm != "other" {
		t.Errorf("ListRuns(all)[0] = %q, want newest run first", all[0].Algorithm)
	}
	sma, err := store.ListRuns(ctx, "sma-cross", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(sma) != 1 {
		t.Errorf("ListRuns(sma-cross) returned %d runs, want 1", len(sma))
	}
}
