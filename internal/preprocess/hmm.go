package preprocess

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"algotrader/internal/domain"
	"algotrader/internal/frame"
	"algotrader/internal/regime"
	"algotrader/internal/telemetry"
)

var _ PreProcessor = (*HMMPreProcessor)(nil)

// DefaultVolatilityWindow is the trailing window of the return volatility.
const DefaultVolatilityWindow = 20

// neutralRegime is the bull probability at which neither state dominates.
const neutralRegime = 0.5

// HMMConfig holds the windows of the regime-model features.
type HMMConfig struct {
	OutlierWindow    int
	VolatilityWindow int
	Iterations       int // Baum-Welch passes, regime.DefaultIterations when 0
}

// HMMPreProcessor prepares log returns, trailing volatility and a fitted
// two-state regime probability. The probability and a neutral line fill the
// short and long columns so the crossover state machine trades the regime.
// It keeps the panel in long format, one observation per (timestamp,
// ticker), and pivots it into a frame for Features.
type HMMPreProcessor struct {
	tickers []string
	source  Source
	start   time.Time
	end     time.Time
	cfg     HMMConfig

	obs       []domain.Observation
	data      *frame.Frame
	corrected bool
	log       *slog.Logger
}

// NewHMMPreProcessor creates an HMM preprocessor reading tickers from source.
func NewHMMPreProcessor(tickers []string, source Source, start, end time.Time, cfg HMMConfig) *HMMPreProcessor {
	if cfg.OutlierWindow <= 0 {
		cfg.OutlierWindow = DefaultOutlierWindow
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = DefaultVolatilityWindow
	}
	return &HMMPreProcessor{
		tickers: tickers,
		source:  source,
		start:   start,
		end:     end,
		cfg:     cfg,
		log:     slog.Default().With("preprocessor", "hmm"),
	}
}

// Name returns "hmm".
func (p *HMMPreProcessor) Name() string { return "hmm" }

// Observations returns the current long-format panel.
func (p *HMMPreProcessor) Observations() []domain.Observation { return p.obs }

// Features returns the pivoted panel.
func (p *HMMPreProcessor) Features() *frame.Frame { return p.data }

// LoadData reads the panel and flattens it into observations, each ticker in
// ascending time order.
func (p *HMMPreProcessor) LoadData(ctx context.Context) error {
	panel, err := p.source.LoadPanel(ctx, p.tickers, p.start, p.end)
	if err != nil {
		return err
	}
	if panel.Rows() == 0 {
		return &domain.DataUnavailableError{Tickers: p.tickers}
	}
	for _, t := range p.tickers {
		pts := panel[t]
		if len(pts) == 0 {
			p.log.Warn("no data for ticker", "ticker", t)
			continue
		}
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
	}
	p.obs = panel.Observations(p.tickers)
	p.corrected = false
	p.pivot(false)
	return nil
}

// MissingValues gives every loaded ticker an observation at every loaded
// timestamp, then fills NaN prices within each ticker, forward then
// backward.
func (p *HMMPreProcessor) MissingValues() {
	p.completeGrid()
	for _, idx := range p.byTicker() {
		last := math.NaN()
		for _, i := range idx {
			if math.IsNaN(p.obs[i].Price) {
				p.obs[i].Price = last
			} else {
				last = p.obs[i].Price
			}
		}
		next := math.NaN()
		for k := len(idx) - 1; k >= 0; k-- {
			i := idx[k]
			if math.IsNaN(p.obs[i].Price) {
				p.obs[i].Price = next
			} else {
				next = p.obs[i].Price
			}
		}
	}
	p.pivot(p.corrected)
}

// completeGrid inserts NaN observations for (timestamp, ticker) pairs the
// panel lacks and re-orders observations by ticker, then time.
func (p *HMMPreProcessor) completeGrid() {
	if len(p.obs) == 0 {
		return
	}
	type key struct {
		ts     int64
		symbol string
	}
	have := make(map[key]struct{}, len(p.obs))
	stamps := make(map[int64]time.Time)
	for _, o := range p.obs {
		have[key{o.Timestamp.UnixNano(), o.Symbol}] = struct{}{}
		stamps[o.Timestamp.UnixNano()] = o.Timestamp
	}
	groups := p.byTicker()
	for _, t := range p.tickers {
		if _, loaded := groups[t]; !loaded {
			continue
		}
		for k, ts := range stamps {
			if _, ok := have[key{k, t}]; !ok {
				p.obs = append(p.obs, domain.Observation{Timestamp: ts, Symbol: t, Price: math.NaN()})
				have[key{k, t}] = struct{}{}
			}
		}
	}

	order := make(map[string]int, len(p.tickers))
	for i, t := range p.tickers {
		if _, dup := order[t]; !dup {
			order[t] = i
		}
	}
	sort.SliceStable(p.obs, func(i, j int) bool {
		a, b := p.obs[i], p.obs[j]
		if a.Symbol != b.Symbol {
			return order[a.Symbol] < order[b.Symbol]
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// RemoveDuplicateTimestamps keeps the first observation per (timestamp, ticker).
func (p *HMMPreProcessor) RemoveDuplicateTimestamps() {
	before := len(p.obs)
	p.obs = DedupObservations(p.obs)
	if n := before - len(p.obs); n > 0 {
		p.log.Debug("dropped duplicate observations", "rows", n)
	}
	p.pivot(p.corrected)
}

// RemoveOutliers corrects z-score outliers per ticker and derives returns
// and volatility. Running it again is a no-op.
func (p *HMMPreProcessor) RemoveOutliers() {
	if p.obs == nil || p.corrected {
		return
	}
	for t, idx := range p.byTicker() {
		raw := make([]float64, len(idx))
		for k, i := range idx {
			raw[k] = p.obs[i].Price
		}
		clean, n := correctOutliers(raw, p.cfg.OutlierWindow, false)
		if n > 0 {
			telemetry.OutliersTotal.WithLabelValues(t).Add(float64(n))
			p.log.Debug("corrected outliers", "ticker", t, "count", n)
		}
		for k, i := range idx {
			p.obs[i].Price = clean[k]
		}
	}
	p.corrected = true
	p.pivot(true)
}

// byTicker groups observation indices by symbol, preserving order.
func (p *HMMPreProcessor) byTicker() map[string][]int {
	out := make(map[string][]int)
	for i, o := range p.obs {
		out[o.Symbol] = append(out[o.Symbol], i)
	}
	return out
}

// pivot rebuilds the wide frame from the observations, one row per distinct
// timestamp. Returns and volatility are derived per ticker over its own
// series when derive is set.
func (p *HMMPreProcessor) pivot(derive bool) {
	if p.obs == nil {
		p.data = nil
		return
	}
	pos := make(map[int64]int)
	var index []time.Time
	sorted := make([]domain.Observation, len(p.obs))
	copy(sorted, p.obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	for _, o := range sorted {
		k := o.Timestamp.UnixNano()
		if _, ok := pos[k]; !ok {
			pos[k] = len(index)
			index = append(index, o.Timestamp)
		}
	}

	f := frame.New(index)
	groups := p.byTicker()
	for _, t := range p.tickers {
		idx, ok := groups[t]
		if !ok {
			continue
		}
		prices := nanColumn(len(index))
		rets := nanColumn(len(index))
		vols := nanColumn(len(index))

		series := make([]float64, 0, len(idx))
		var returns []float64
		var rows []int
		for _, i := range idx {
			o := p.obs[i]
			row := pos[o.Timestamp.UnixNano()]
			if !math.IsNaN(prices[row]) {
				// Repeated key before deduplication.
				continue
			}
			prices[row] = o.Price
			if !derive {
				continue
			}
			r := 0.0
			if len(series) > 0 {
				r = math.Log(o.Price / series[len(series)-1])
			}
			series = append(series, o.Price)
			returns = append(returns, r)
			rows = append(rows, row)
			rets[row] = r
			lo, hi := frame.Span(len(returns)-1, len(returns), p.cfg.VolatilityWindow, false)
			_, std := frame.MeanStd(returns[lo : hi+1])
			if math.IsNaN(std) {
				std = 0
			}
			vols[row] = std
		}
		_ = f.Set(PriceCol(t), prices)
		if derive {
			_ = f.Set(ReturnCol(t), rets)
			_ = f.Set(VolatilityCol(t), vols)
			bull, line := p.regimeColumns(t, returns, rows, len(index))
			_ = f.Set(ShortCol(t), bull)
			_ = f.Set(LongCol(t), line)
		}
	}
	p.data = f
}

// regimeColumns fits the two-state model to a ticker's returns and lays out
// the crossover pair: the filtered bull-state probability against a flat
// 0.5 line. A series the model cannot fit stays on the line, which keeps
// the position unchanged.
func (p *HMMPreProcessor) regimeColumns(ticker string, returns []float64, rows []int, n int) (bull, line []float64) {
	bull = nanColumn(n)
	line = nanColumn(n)
	probs := make([]float64, len(returns))
	model, err := regime.Fit(returns, p.cfg.Iterations)
	if err != nil {
		p.log.Debug("regime model not fitted", "ticker", ticker, "err", err)
		for i := range probs {
			probs[i] = neutralRegime
		}
	} else {
		probs = model.Filter(returns)
	}
	for k, row := range rows {
		bull[row] = probs[k]
		line[row] = neutralRegime
	}
	return bull, line
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
