// Package metrics exposes Prometheus collectors for request handling,
// threshold monitoring and notification dispatch. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mibagent"

// Metrics groups the agent's collectors.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	crossings prometheus.Counter
	dispatch  *prometheus.CounterVec
	cpuUsage  prometheus.Gauge
	threshold prometheus.Gauge
	dropped   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by transport, operation and error status.",
		}, []string{"transport", "op", "status"}),
		crossings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_crossings_total",
			Help:      "Rising-edge threshold crossings detected.",
		}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by sink and result.",
		}, []string{"sink", "result"}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "Last sampled CPU utilization.",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_threshold_percent",
			Help:      "Configured CPU threshold at the last sample.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Inbound SNMP packets dropped, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.requests, m.crossings, m.dispatch, m.cpuUsage, m.threshold, m.dropped)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts a handled request.
func (m *Metrics) ObserveRequest(transport, op, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, op, status).Inc()
}

// ObserveSample records the latest sample and threshold.
func (m *Metrics) ObserveSample(sample, threshold int) {
	if m == nil {
		return
	}
	m.cpuUsage.Set(float64(sample))
	m.threshold.Set(float64(threshold))
}

// ObserveCrossing counts a rising edge.
func (m *Metrics) ObserveCrossing() {
	if m == nil {
		return
	}
	m.crossings.Inc()
}

// ObserveDispatch counts one sink delivery attempt.
func (m *Metrics) ObserveDispatch(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatch.WithLabelValues(sink, result).Inc()
}

// ObserveDrop counts a dropped inbound packet.
func (m *Metrics) ObserveDrop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
