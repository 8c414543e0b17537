// Package metrics holds the responder's prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests       *prometheus.CounterVec
	Signatures     *prometheus.CounterVec
	Pending        prometheus.Gauge
	MonitorResults *prometheus.CounterVec
	Dispatches     *prometheus.CounterVec
	Funding        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_requests_total",
			Help: "Signing requests observed per origin and kind",
		}, []string{"origin", "kind"}),
		Signatures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_signatures_total",
			Help: "Signatures produced per chain namespace",
		}, []string{"namespace"}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "responder_pending_transactions",
			Help: "Destination transactions currently monitored",
		}),
		MonitorResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_monitor_results_total",
			Help: "Destination monitor results",
		}, []string{"namespace", "status"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_dispatch_total",
			Help: "Origin-chain response submissions",
		}, []string{"origin", "method", "result"}),
		Funding: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_funding_total",
			Help: "Gas top-ups of derived EVM addresses",
		}, []string{"result"}),
	}
}

func (m *Metrics) RequestObserved(origin, kind string) {
	if m != nil {
		m.Requests.WithLabelValues(origin, kind).Inc()
	}
}

func (m *Metrics) SignatureProduced(namespace string) {
	if m != nil {
		m.Signatures.WithLabelValues(namespace).Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}

func (m *Metrics) MonitorResult(namespace, status string) {
	if m != nil {
		m.MonitorResults.WithLabelValues(namespace, status).Inc()
	}
}

func (m *Metrics) Dispatch(origin, method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Dispatches.WithLabelValues(origin, method, result).Inc()
}

func (m *Metrics) FundingResult(result string) {
	if m != nil {
		m.Funding.WithLabelValues(result).Inc()
	}
}
