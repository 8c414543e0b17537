package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.RequestObserved("solana", "sign")
	m.RequestObserved("solana", "sign")
	m.Dispatch("substrate", "respond", nil)
	m.Dispatch("substrate", "respond", errors.New("boom"))
	m.SetPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("solana", "sign")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("substrate", "respond", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("substrate", "respond", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Pending))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestObserved("a", "b")
		m.SignatureProduced("eip155")
		m.SetPending(1)
		m.MonitorResult("bip122", "pending")
		m.Dispatch("a", "b", nil)
		m.FundingResult("ok")
	})
}
