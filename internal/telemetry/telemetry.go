// Package telemetry exposes Prometheus counters for backtest runs.
package telemetry

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "backtest_steps_total", Help: "Timestamps processed by the trade executor"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backtest_trades_total", Help: "Realized position changes"},
		[]string{"symbol"},
	)
	OutliersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "preprocess_outliers_total", Help: "Prices replaced by the z-score filter"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(StepsTotal, TradesTotal, OutliersTotal)
}

// Serve binds addr and serves /metrics in the background. A bind failure is
// returned to the caller; later serve errors are logged.
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", srv.Addr, "error", err)
		}
	}()
	return srv, nil
}
