package embedding

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scholarly-ai/scholarly/pkg/metrics"
)

type Metrics struct {
	tokens        *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	providerTime  *prometheus.HistogramVec
}

// NewMetrics 需在 metrics.SetupMetricsManager 之后调用
func NewMetrics() *Metrics {
	return &Metrics{
		tokens:        metrics.NewCounterVec("embedding_tokens", []string{"model"}),
		cacheLookups:  metrics.NewCounterVec("embedding_cache_lookups", []string{"result"}),
		providerCalls: metrics.NewCounterVec("embedding_provider_calls", []string{"status"}),
		providerTime:  metrics.NewHistogramVec("embedding_provider_time", []string{"model"}),
	}
}

func (m *Metrics) tokenAdd(model string, n int64) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(model).Add(float64(n))
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) providerCall(status string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(status).Inc()
}

func (m *Metrics) providerTimer(model string) func() {
	if m == nil {
		return func() {}
	}
	t := prometheus.NewTimer(m.providerTime.WithLabelValues(model))
	return func() { t.ObserveDuration() }
}
