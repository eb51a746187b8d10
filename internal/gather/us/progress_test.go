package us

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProgressTrackerMarkFetched(t *testing.T) {
	dir := t.TempDir()
	d1 := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pt.LastFetched("AAPL"); ok {
		t.Error("AAPL should not be fetched before marking")
	}
	if err := pt.MarkFetched([]string{"AAPL", "MSFT"}, d1); err != nil {
		t.Fatal(err)
	}
	// An older day never moves the checkpoint backwards.
	if err := pt.MarkFetched([]string{"AAPL"}, d1.AddDate(0, 0, -3)); err != nil {
		t.Fatal(err)
	}

	// Reload and verify.
	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range []string{"AAPL", "MSFT"} {
		got, ok := pt2.LastFetched(sym)
		if !ok || !got.Equal(d1) {
			t.Errorf("LastFetched(%s) = %v, %v; want %v after reload", sym, got, ok, d1)
		}
	}
}

func TestProgressTrackerResume(t *testing.T) {
	dir := t.TempDir()

	// Simulate partial run: write some entries directly.
	if err := os.WriteFile(filepath.Join(dir, ".tried-empty"), []byte("XXXX\nYYYY\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".last-fetched"), []byte("AAPL 2025-01-31\ngarbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !pt.IsTriedEmpty("XXXX") || !pt.IsTriedEmpty("YYYY") {
		t.Error("tried-empty entries should be loaded from partial run")
	}
	if d, ok := pt.LastFetched("AAPL"); !ok || d.Format(dateLayout) != "2025-01-31" {
		t.Errorf("LastFetched(AAPL) = %v, %v; want 2025-01-31", d, ok)
	}

	// A ticker that finally returns data is no longer tried-empty.
	if err := pt.MarkFetched([]string{"XXXX"}, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if pt.IsTriedEmpty("XXXX") {
		t.Error("XXXX should not be tried-empty after data arrived")
	}
}

func TestProgressTrackerReset(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkEmpty([]string{"AAAA"}); err != nil {
		t.Fatal(err)
	}
	if !pt.IsTriedEmpty("AAAA") {
		t.Fatal("AAAA should be tried-empty")
	}
	if err := pt.Reset(); err != nil {
		t.Fatal(err)
	}
	if pt.IsTriedEmpty("AAAA") {
		t.Error("AAAA should not be tried-empty after reset")
	}

	data, err := os.ReadFile(filepath.Join(dir, ".tried-empty"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > 0 {
		t.Error(".tried-empty file should be empty after reset")
	}
}
