package strategy

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"algotrader/internal/engine"
)

// Metric names as reported by Metrics.Map.
const (
	KeyTotalReturn  = "Total Return"
	KeyAnnualReturn = "Annual Return"
	KeySharpeRatio  = "Sharpe Ratio"
	KeyMaxDrawdown  = "Max Drawdown"
	KeyTradeCount   = "Trade Count"
	KeyWinRate      = "Win Rate"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

// Metrics holds the summary performance of a ledger.
type Metrics struct {
	TotalReturn  float64
	AnnualReturn float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TradeCount   int
	WinRate      float64
}

// Map returns all six metrics keyed by their display names.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		KeyTotalReturn:  m.TotalReturn,
		KeyAnnualReturn: m.AnnualReturn,
		KeySharpeRatio:  m.SharpeRatio,
		KeyMaxDrawdown:  m.MaxDrawdown,
		KeyTradeCount:   float64(m.TradeCount),
		KeyWinRate:      m.WinRate,
	}
}

// CalculateMetrics reduces a ledger to its summary statistics. Undefined
// ratios are reported as 0.
func CalculateMetrics(l *engine.Ledger) Metrics {
	if l == nil || len(l.Rows) == 0 {
		return Metrics{}
	}
	m := Metrics{TradeCount: l.TradeCount}
	if l.InitialCapital != 0 {
		m.TotalReturn = l.FinalCapital()/l.InitialCapital - 1
	}
	m.AnnualReturn = annualize(m.TotalReturn, l.Rows[len(l.Rows)-1].Timestamp.Sub(l.Rows[0].Timestamp).Hours()/24)

	capitals := l.Capitals()
	m.SharpeRatio = sharpe(periodReturns(capitals))
	m.MaxDrawdown = maxDrawdown(capitals)

	if l.TradeCount > 0 && len(l.Legs) > 0 {
		wins := 0
		for _, leg := range l.Legs {
			if leg.Return() > 0 {
				wins++
			}
		}
		m.WinRate = float64(wins) / float64(len(l.Legs))
	}
	return m
}

func annualize(total, days float64) float64 {
	switch {
	case days <= 0:
		return 0
	case total <= -1:
		return -1
	}
	return math.Pow(1+total, daysPerYear/days) - 1
}

func periodReturns(capitals []float64) []float64 {
	out := make([]float64, 0, len(capitals))
	for i := 1; i < len(capitals); i++ {
		if capitals[i-1] == 0 {
			continue
		}
		out = append(out, capitals[i]/capitals[i-1]-1)
	}
	return out
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(capitals []float64) float64 {
	peak := math.Inf(-1)
	dd := 0.0
	for _, c := range capitals {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if d := (peak - c) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}
