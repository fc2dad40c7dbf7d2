package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch

	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	if out.Gauge != nil {
		return out.Gauge.GetValue()
	}
	t.Fatal("metric is neither counter nor gauge")
	return 0
}

func TestObserveExecutionSuccessRate(t *testing.T) {
	m := NewEngine(nil)

	m.ObserveExecution(true)
	m.ObserveExecution(true)
	m.ObserveExecution(false)

	assert.InDelta(t, 2.0/3.0, metricValue(t, m.SuccessRate), 1e-9)
	assert.InDelta(t, 3, metricValue(t, m.ExecutionsTotal), 1e-9)
	assert.InDelta(t, 1, metricValue(t, m.ExecutionFailures), 1e-9)
}

func TestAddRealizedProfitIgnoresNonPositive(t *testing.T) {
	m := NewEngine(nil)
	m.AddRealizedProfit(big.NewInt(-5))
	m.AddRealizedProfit(big.NewInt(0))
	m.AddRealizedProfit(big.NewInt(3_800_000))
	assert.InDelta(t, 3_800_000, metricValue(t, m.RealizedProfit), 1e-9)
}
