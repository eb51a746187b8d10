package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/frame"
	"algotrader/internal/telemetry"
)

// Compile-time interface check.
var _ PreProcessor = (*SMAPreProcessor)(nil)

// SMAConfig holds the window parameters of the SMA crossover features.
type SMAConfig struct {
	ShortWindow   int
	LongWindow    int
	OutlierWindow int
	// OutlierCenter centres the z-score window on each row in batch mode.
	// The default trailing window is the one Step can reproduce, so only
	// with it off do batch features match single-step replay bit for bit.
	OutlierCenter bool
}

// DefaultSMAConfig returns the 50/200 crossover over a 20-row outlier window.
func DefaultSMAConfig() SMAConfig {
	return SMAConfig{
		ShortWindow:   50,
		LongWindow:    200,
		OutlierWindow: DefaultOutlierWindow,
	}
}

func (c SMAConfig) withDefaults() SMAConfig {
	d := DefaultSMAConfig()
	if c.ShortWindow <= 0 {
		c.ShortWindow = d.ShortWindow
	}
	if c.LongWindow <= 0 {
		c.LongWindow = d.LongWindow
	}
	if c.OutlierWindow <= 0 {
		c.OutlierWindow = d.OutlierWindow
	}
	return c
}

// SMAPreProcessor prepares price, short-window and long-window average
// columns for the SMA crossover algorithm.
type SMAPreProcessor struct {
	tickers []string
	source  Source
	start   time.Time
	end     time.Time
	cfg     SMAConfig

	data      *frame.Frame
	active    []string
	corrected bool
	history   *RollingHistory
	log       *slog.Logger
}

// NewSMAPreProcessor creates an SMA preprocessor reading tickers from source
// over [start, end]. Non-positive windows fall back to the defaults.
func NewSMAPreProcessor(tickers []string, source Source, start, end time.Time, cfg SMAConfig) *SMAPreProcessor {
	cfg = cfg.withDefaults()
	return &SMAPreProcessor{
		tickers: tickers,
		source:  source,
		start:   start,
		end:     end,
		cfg:     cfg,
		history: NewRollingHistory(max(cfg.ShortWindow, cfg.LongWindow, cfg.OutlierWindow)),
		log:     slog.Default().With("preprocessor", "sma"),
	}
}

// Name returns "sma".
func (p *SMAPreProcessor) Name() string { return "sma" }

// Config returns the configured windows.
func (p *SMAPreProcessor) Config() SMAConfig { return p.cfg }

// History returns the rolling history carried between steps.
func (p *SMAPreProcessor) History() *RollingHistory { return p.history }

// Features returns the feature panel.
func (p *SMAPreProcessor) Features() *frame.Frame { return p.data }

// LoadData reads the panel from the source and builds one price column per
// ticker. Tickers without rows are left out.
func (p *SMAPreProcessor) LoadData(ctx context.Context) error {
	panel, err := p.source.LoadPanel(ctx, p.tickers, p.start, p.end)
	if err != nil {
		return err
	}
	if panel.Rows() == 0 {
		return &domain.DataUnavailableError{Tickers: p.tickers}
	}

	f, active := buildPriceFrame(panel, p.tickers)
	if len(active) < len(p.tickers) {
		p.log.Warn("tickers without data", "requested", len(p.tickers), "loaded", len(active))
	}
	p.data = f
	p.active = active
	p.corrected = false
	p.history.Reset()
	p.log.Debug("loaded", "rows", f.Len(), "tickers", len(active))
	return nil
}

// MissingValues forward-fills then backward-fills every column.
func (p *SMAPreProcessor) MissingValues() {
	if p.data == nil {
		return
	}
	p.data.FillForward()
	p.data.FillBackward()
}

// RemoveDuplicateTimestamps keeps the first row of each timestamp.
func (p *SMAPreProcessor) RemoveDuplicateTimestamps() {
	if p.data == nil {
		return
	}
	if n := p.data.DropDuplicateIndex(); n > 0 {
		p.log.Debug("dropped duplicate timestamps", "rows", n)
	}
}

// RemoveOutliers corrects z-score outliers in every price column and then
// derives the short and long trailing averages. Windows longer than the
// available history are clamped per row; the configured windows are not
// changed. Running it again on the same data is a no-op.
func (p *SMAPreProcessor) RemoveOutliers() {
	if p.data == nil || p.corrected {
		return
	}

	raws := make(map[string][]float64, len(p.active))
	for _, t := range p.active {
		raw, ok := p.data.Column(PriceCol(t))
		if !ok {
			continue
		}
		rawCopy := make([]float64, len(raw))
		copy(rawCopy, raw)
		raws[t] = rawCopy

		clean, n := correctOutliers(raw, p.cfg.OutlierWindow, p.cfg.OutlierCenter)
		if n > 0 {
			telemetry.OutliersTotal.WithLabelValues(t).Add(float64(n))
			p.log.Debug("corrected outliers", "ticker", t, "count", n)
		}

		_ = p.data.Set(PriceCol(t), clean)
		_ = p.data.Set(ShortCol(t), frame.TrailingMeans(clean, p.cfg.ShortWindow))
		_ = p.data.Set(LongCol(t), frame.TrailingMeans(clean, p.cfg.LongWindow))
	}
	p.corrected = true

	if rows := p.data.Len(); rows < p.cfg.LongWindow {
		p.log.Debug("history shorter than long window, clamping", "rows", rows, "long_window", p.cfg.LongWindow)
	}
	p.seedHistory(raws)
}

// seedHistory loads the tail of the batch into the rolling history so single
// steps can continue where the batch ended.
func (p *SMAPreProcessor) seedHistory(raws map[string][]float64) {
	p.history.Reset()
	n := p.data.Len()
	from := max(0, n-p.history.Capacity())
	for i := from; i < n; i++ {
		row := HistoryRow{
			Timestamp: p.data.Index()[i],
			Raw:       make(map[string]float64, len(raws)),
			Clean:     make(map[string]float64, len(raws)),
		}
		for t, raw := range raws {
			clean, ok := p.data.Value(PriceCol(t), i)
			if !ok || math.IsNaN(raw[i]) {
				continue
			}
			row.Raw[t] = raw[i]
			row.Clean[t] = clean
		}
		p.history.Push(row)
	}
}

// Step derives features for one new timestamp from the rolling history, the
// incremental counterpart of the batch stages. A missing price is carried
// forward from history; a ticker with no price at all gets no features. A
// timestamp equal to the last processed one is ignored (ok is false); an
// earlier one is an error.
func (p *SMAPreProcessor) Step(ts time.Time, prices map[string]float64) (row FeatureRow, ok bool, err error) {
	last, hasLast := p.history.Last()
	if hasLast && !ts.After(last.Timestamp) {
		if ts.Equal(last.Timestamp) {
			return FeatureRow{}, false, nil
		}
		return FeatureRow{}, false, fmt.Errorf("%w: %s is before %s",
			ErrOutOfOrder, ts.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
	}

	hist := HistoryRow{
		Timestamp: ts,
		Raw:       make(map[string]float64, len(p.tickers)),
		Clean:     make(map[string]float64, len(p.tickers)),
	}
	row = FeatureRow{Timestamp: ts, Tickers: make(map[string]Features, len(p.tickers))}

	for _, t := range p.tickers {
		v, have := prices[t]
		if !have || math.IsNaN(v) {
			prev, carried := last.Raw[t]
			if !carried {
				continue
			}
			v = prev
		}

		raw := append(p.history.Raw(t), v)
		clean, corrected := correctLatest(raw, p.cfg.OutlierWindow)
		if corrected {
			telemetry.OutliersTotal.WithLabelValues(t).Inc()
		}
		cleanSeries := append(p.history.Clean(t), clean)

		row.Tickers[t] = Features{
			Price: clean,
			Short: frame.TrailingMean(cleanSeries, p.cfg.ShortWindow),
			Long:  frame.TrailingMean(cleanSeries, p.cfg.LongWindow),
		}
		hist.Raw[t] = v
		hist.Clean[t] = clean
	}

	p.history.Push(hist)
	return row, true, nil
}

// Reset clears loaded data and the rolling history.
func (p *SMAPreProcessor) Reset() {
	p.data = nil
	p.active = nil
	p.corrected = false
	p.history.Reset()
}
