package core

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scholarly-ai/scholarly/pkg/metrics"
)

type Metrics struct {
	apiResponseTime *prometheus.HistogramVec
	apiErrorCounter *prometheus.CounterVec
	graphSearch     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	graphSize       *prometheus.GaugeVec
}

func NewMetrics(ns, system string, registry *prometheus.Registry) *Metrics {
	// setup metric
	metrics.SetupMetricsManager(ns, system, registry)

	m := &Metrics{
		apiResponseTime: metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter: metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		graphSearch:     metrics.NewCounterVec("graph_search", []string{"adapter", "cache"}),
		rateLimited:     metrics.NewCounterVec("rate_limited", []string{"operation"}),
		graphSize:       metrics.NewGaugeVec("graph_size", []string{"adapter", "kind"}),
	}

	return m
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

// GraphSearchInc 作为 store.SearchObserver 注册到存储实现
func (m *Metrics) GraphSearchInc(adapter string, cached bool) {
	m.graphSearch.WithLabelValues(adapter, strconv.FormatBool(cached)).Inc()
}

func (m *Metrics) RateLimitedInc(operation string) {
	m.rateLimited.WithLabelValues(operation).Inc()
}

// GraphSizeSet 记录最近一次状态检查得到的节点数与边数
func (m *Metrics) GraphSizeSet(adapter string, nodes, relationships int64) {
	m.graphSize.WithLabelValues(adapter, "nodes").Set(float64(nodes))
	m.graphSize.WithLabelValues(adapter, "relationships").Set(float64(relationships))
}
