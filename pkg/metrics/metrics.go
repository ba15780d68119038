package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type manager struct {
	namespace string
	system    string
	registry  *prometheus.Registry
}

var (
	locker         sync.RWMutex
	defaultManager = &manager{
		namespace: "default",
		system:    "default",
		registry:  prometheus.NewRegistry(), // ignore registry
	}
)

func RegisterGoMetrics(r prometheus.Registerer) {
	r.Register(collectors.NewGoCollector())
	r.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// SetupMetricsManager 之后创建的指标都注册到 registry 上
func SetupMetricsManager(ns, system string, registry *prometheus.Registry) {
	locker.Lock()
	defaultManager = &manager{
		namespace: ns,
		system:    system,
		registry:  registry,
	}
	locker.Unlock()
	RegisterGoMetrics(registry)
}

func current() *manager {
	locker.RLock()
	defer locker.RUnlock()
	return defaultManager
}

func opts(name, kind string) (string, string, string, string) {
	m := current()
	return FmtFixer(m.namespace), FmtFixer(m.system), FmtFixer(name), fmt.Sprintf("%s %s of /%s/%s", name, kind, m.namespace, m.system)
}

func initLabels(labels []string) []string {
	return make([]string, len(labels))
}

func NewCounterVec(name string, labels []string) *prometheus.CounterVec {
	ns, system, n, help := opts(name, "count")
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: system,
		Name:      n + "_total",
		Help:      help,
	}, labels)
	vec.WithLabelValues(initLabels(labels)...).Add(0)

	current().registry.Register(vec)
	return vec
}

func NewHistogramVec(name string, labels []string) *prometheus.HistogramVec {
	ns, system, n, help := opts(name, "duration")
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: system,
		Name:      n + "_seconds",
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
	vec.WithLabelValues(initLabels(labels)...).Observe(0)

	current().registry.Register(vec)
	return vec
}

func NewGaugeVec(name string, labels []string) *prometheus.GaugeVec {
	ns, system, n, help := opts(name, "gauge")
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: system,
		Name:      n,
		Help:      help,
	}, labels)
	vec.WithLabelValues(initLabels(labels)...).Add(0)

	current().registry.Register(vec)
	return vec
}

func DefaultExportHandler() gin.HandlerFunc {
	registry := current().registry
	h := promhttp.InstrumentMetricHandler(
		registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func FmtFixer(in string) string {
	return strings.Replace(strings.Replace(in, ".", "_", -1), "-", "_", -1)
}
