package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// progressTracker records, per ticker, the last trading day already fetched
// so reruns only ask for newer bars. State lives in <dailyDir>/.last-fetched
// as "SYMBOL YYYY-MM-DD" lines; tickers the provider had no data for are
// listed in .tried-empty.
type progressTracker struct {
	mu         sync.Mutex
	lastDay    map[string]time.Time
	triedEmpty map[string]struct{}
	dailyDir   string // <DataDir>/us/daily
}

// newProgressTracker creates a tracker rooted at the given daily directory
// and loads any existing state.
func newProgressTracker(dailyDir string) (*progressTracker, error) {
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating daily dir: %w", err)
	}

	pt := &progressTracker{
		lastDay:    make(map[string]time.Time),
		triedEmpty: make(map[string]struct{}),
		dailyDir:   dailyDir,
	}

	if err := pt.load(".last-fetched", func(fields []string) {
		if len(fields) != 2 {
			return
		}
		if d, err := time.Parse(dateLayout, fields[1]); err == nil {
			pt.lastDay[fields[0]] = d
		}
	}); err != nil {
		return nil, err
	}
	if err := pt.load(".tried-empty", func(fields []string) {
		if len(fields) == 1 {
			pt.triedEmpty[fields[0]] = struct{}{}
		}
	}); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) load(name string, fn func(fields []string)) error {
	f, err := os.Open(filepath.Join(p.dailyDir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if fields := strings.Fields(sc.Text()); len(fields) > 0 {
			fn(fields)
		}
	}
	return sc.Err()
}

// LastFetched returns the last fetched day of symbol.
func (p *progressTracker) LastFetched(symbol string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.lastDay[symbol]
	return d, ok
}

// IsTriedEmpty returns true if the symbol was already tried and returned no data.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.triedEmpty[symbol]
	return ok
}

// MarkFetched records day as the last fetched day of every symbol and
// persists the whole table.
func (p *progressTracker) MarkFetched(symbols []string, day time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if prev, ok := p.lastDay[sym]; !ok || day.After(prev) {
			p.lastDay[sym] = day
		}
		delete(p.triedEmpty, sym)
	}
	return p.flush()
}

// MarkEmpty records a batch of symbols as tried-empty.
func (p *progressTracker) MarkEmpty(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		p.triedEmpty[sym] = struct{}{}
	}
	return p.flush()
}

// Reset clears all recorded progress.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastDay = make(map[string]time.Time)
	p.triedEmpty = make(map[string]struct{})
	return p.flush()
}

// flush rewrites both state files. Callers hold p.mu.
func (p *progressTracker) flush() error {
	symbols := make([]string, 0, len(p.lastDay))
	for sym := range p.lastDay {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	var b strings.Builder
	for _, sym := range symbols {
		fmt.Fprintf(&b, "%s %s\n", sym, p.lastDay[sym].Format(dateLayout))
	}
	if err := writeFileAtomic(filepath.Join(p.dailyDir, ".last-fetched"), b.String()); err != nil {
		return err
	}

	empty := make([]string, 0, len(p.triedEmpty))
	for sym := range p.triedEmpty {
		empty = append(empty, sym)
	}
	sort.Strings(empty)
	b.Reset()
	for _, sym := range empty {
		b.WriteString(sym + "\n")
	}
	return writeFileAtomic(filepath.Join(p.dailyDir, ".tried-empty"), b.String())
}

func writeFileAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
