package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts Counters to the prometheus.Collector interface so
// the admin server can expose it on /metrics, in the style of a simple
// metric-per-key bridge rather than hand-registering one metric per
// rule up front (the rule catalog is dynamic and unknown at startup).
type Collector struct {
	counters *Counters
	desc     *prometheus.Desc
}

// NewCollector wraps counters for Prometheus exposition as the metric
// <namespace>_counter, labeled by counter key.
func NewCollector(counters *Counters, namespace string) *Collector {
	return &Collector{counters: counters, desc: prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "counter"),
		"Monotonic proxy counter, labeled by its key.",
		[]string{"key"},
		nil,
	)}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for k, v := range c.counters.GetAll() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), k)
	}
}

// Registry builds a prometheus.Registry carrying only this store's
// Collector (namespace "tdsguard"), for use by the admin HTTP
// server's /metrics handler; no Go runtime or process collectors are
// registered.
func Registry(counters *Counters) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(counters, "tdsguard"))
	return reg
}
