// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Engine carries the counters and gauges for the scan/execute loop.
type Engine struct {
	ScanCycles    prometheus.Counter
	ScansSkipped  prometheus.Counter
	Opportunities prometheus.Counter
	ScanDuration  prometheus.Histogram

	ExecutionsTotal   prometheus.Counter
	ExecutionFailures prometheus.Counter
	SuccessRate       prometheus.Gauge
	RealizedProfit    prometheus.Counter

	successCount prometheus.Counter
}

// NewEngine registers the engine metrics on reg. A nil reg gets a private
// registry, which keeps repeated construction (tests) collision-free.
func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Engine{
		ScanCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_scan_cycles_total",
			Help: "Number of scan cycles started",
		}),
		ScansSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_scan_cycles_skipped_total",
			Help: "Scan cycles skipped because a dispatch was still in flight",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_opportunities_total",
			Help: "Scan cycles that produced a best opportunity",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_scan_duration_seconds",
			Help:    "Duration of a full scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ExecutionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_executions_total",
			Help: "Dispatched executions",
		}),
		ExecutionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_execution_failures_total",
			Help: "Executions that reverted, timed out, or failed to send",
		}),
		SuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arb_execution_success_rate",
			Help: "Fraction of dispatched executions that confirmed",
		}),
		RealizedProfit: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_realized_profit_units",
			Help: "Cumulative realized profit in settlement smallest units",
		}),
		successCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_execution_successes_total",
			Help: "Executions that confirmed",
		}),
	}
}

// ObserveExecution records one dispatch outcome and refreshes the success
// rate gauge.
func (e *Engine) ObserveExecution(success bool) {
	e.ExecutionsTotal.Inc()
	if success {
		e.successCount.Inc()
	} else {
		e.ExecutionFailures.Inc()
	}

	total := counterValue(e.ExecutionsTotal)
	if total > 0 {
		e.SuccessRate.Set(counterValue(e.successCount) / total)
	}
}

// AddRealizedProfit accumulates confirmed profit. Metric precision is float;
// trading decisions never read this back.
func (e *Engine) AddRealizedProfit(amount *big.Int) {
	f, _ := new(big.Float).SetInt(amount).Float64()
	if f > 0 {
		e.RealizedProfit.Add(f)
	}
}

// counterValue reads a counter's current value through the collector
// interface.
func counterValue(c prometheus.Counter) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch

	var out dto.Metric
	if err := m.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}
