package preprocess

import (
	"context"
	"fmt"
	"sort"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/store"
)

// Source supplies raw price panels. Implementations perform whatever I/O is
// needed; the preprocessors themselves never touch disk or network.
type Source interface {
	LoadPanel(ctx context.Context, tickers []string, start, end time.Time) (domain.PricePanel, error)
}

// StaticSource serves an in-memory panel. Zero start or end leaves that side
// of the range open.
type StaticSource domain.PricePanel

// LoadPanel returns the requested tickers' points within [start, end].
func (s StaticSource) LoadPanel(_ context.Context, tickers []string, start, end time.Time) (domain.PricePanel, error) {
	out := make(domain.PricePanel, len(tickers))
	for _, t := range tickers {
		for _, pt := range s[t] {
			if !start.IsZero() && pt.Timestamp.Before(start) {
				continue
			}
			if !end.IsZero() && pt.Timestamp.After(end) {
				continue
			}
			out[t] = append(out[t], pt)
		}
	}
	return out, nil
}

// StoreSource reads panels from a BarStore.
type StoreSource struct {
	bars   store.BarStore
	market domain.Market
}

// NewStoreSource creates a Source backed by the given bar store.
func NewStoreSource(bars store.BarStore, market domain.Market) *StoreSource {
	return &StoreSource{bars: bars, market: market}
}

// LoadPanel reads each ticker's bars and keys the open prices by ticker.
func (s *StoreSource) LoadPanel(ctx context.Context, tickers []string, start, end time.Time) (domain.PricePanel, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	var all []domain.Bar
	for _, t := range tickers {
		bars, err := s.bars.ReadBars(ctx, t, string(s.market), start, end)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", t, err)
		}
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
		// Key by the requested ticker, whatever case the store uses.
		for i := range bars {
			bars[i].Symbol = t
		}
		all = append(all, bars...)
	}
	return domain.PanelFromBars(all), nil
}
