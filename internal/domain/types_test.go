package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestPositionString(t *testing.T) {
	tests := []struct {
		pos  Position
		want string
	}{
		{PositionShort, "SHORT"},
		{PositionHold, "HOLD"},
		{PositionLong, "LONG"},
		{Position(7), "Position(7)"},
	}
	for _, tt := range tests {
		if got := tt.pos.String(); got != tt.want {
			t.Errorf("Position(%d).String() = %q, want %q", int(tt.pos), got, tt.want)
		}
	}

	// The zero value is HOLD so freshly created position maps start flat.
	var zero Position
	if zero != PositionHold {
		t.Errorf("zero Position = %v, want HOLD", zero)
	}
	if PositionShort.Sign() != -1 || PositionLong.Sign() != 1 {
		t.Error("Sign() returned unexpected direction")
	}
}

func TestPanelFromBars(t *testing.T) {
	d1 := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	bars := []Bar{
		{Symbol: "AAPL", Timestamp: d1, Open: 210, Close: 212},
		{Symbol: "GOOGL", Timestamp: d1, Open: 160, Close: 161},
		{Symbol: "AAPL", Timestamp: d2, Open: 211, Close: 209},
	}

	panel := PanelFromBars(bars)
	if len(panel) != 2 {
		t.Fatalf("panel has %d tickers, want 2", len(panel))
	}
	if got := len(panel["AAPL"]); got != 2 {
		t.Fatalf("AAPL has %d points, want 2", got)
	}
	if panel["AAPL"][1].Price != 211 {
		t.Errorf("AAPL[1].Price = %v, want open price 211", panel["AAPL"][1].Price)
	}
	if panel.Rows() != 3 {
		t.Errorf("Rows() = %d, want 3", panel.Rows())
	}

	obs := panel.Observations([]string{"GOOGL", "AAPL"})
	if len(obs) != 3 || obs[0].Symbol != "GOOGL" || obs[2].Timestamp != d2 {
		t.Errorf("Observations() = %+v, want GOOGL first then AAPL in time order", obs)
	}
}

func TestErrors(t *testing.T) {
	var err error = fmt.Errorf("loading: %w", &DataUnavailableError{Tickers: []string{"AAPL", "MSFT"}})

	var due *DataUnavailableError
	if !errors.As(err, &due) {
		t.Fatal("errors.As did not find DataUnavailableError")
	}
	if !strings.Contains(err.Error(), "AAPL, MSFT") {
		t.Errorf("error message %q does not list tickers", err.Error())
	}

	err = &InvalidPriceError{Ticker: "AAPL", Price: -1}
	if !strings.Contains(err.Error(), "AAPL") {
		t.Errorf("error message %q does not name the ticker", err.Error())
	}
}
