package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "firmwared"

// Collector owns the daemon's Prometheus metrics. All methods are safe for
// concurrent use and on a nil receiver, so callers never need to check
// whether metrics are enabled.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	bytes    prometheus.Counter
	duration prometheus.Histogram
	pending  prometheus.Gauge
	rescans  *prometheus.CounterVec
	overruns prometheus.Counter
}

// NewCollector registers the firmwared metrics plus the Go runtime and
// process collectors on registry. A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Firmware requests dispatched, by discovery origin.",
		}, []string{"origin"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Firmware request outcomes.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loaded_bytes_total",
			Help:      "Bytes of firmware committed to the kernel.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time spent serving one firmware request.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_requests",
			Help:      "Requests left pending by the last enumeration in tentative mode.",
		}),
		rescans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rescans_total",
			Help:      "Enumerations run after startup, by trigger.",
		}, []string{"trigger"}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_overruns_total",
			Help:      "Times the kernel reported dropped device events.",
		}),
	}
	registry.MustRegister(
		c.requests,
		c.outcomes,
		c.bytes,
		c.duration,
		c.pending,
		c.rescans,
		c.overruns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest counts a dispatched request.
func (c *Collector) ObserveRequest(origin string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(origin).Inc()
}

// ObserveOutcome records how a request ended. bytes is only added for
// committed loads.
func (c *Collector) ObserveOutcome(outcome string, bytes int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(outcome).Inc()
	if outcome == "committed" && bytes > 0 {
		c.bytes.Add(float64(bytes))
	}
	c.duration.Observe(elapsed.Seconds())
}

// SetDeferred records how many requests remain pending.
func (c *Collector) SetDeferred(n int) {
	if c == nil {
		return
	}
	c.pending.Set(float64(n))
}

// ObserveRescan counts an enumeration pass triggered after startup.
func (c *Collector) ObserveRescan(trigger string) {
	if c == nil {
		return
	}
	c.rescans.WithLabelValues(trigger).Inc()
}

// ObserveOverrun counts a bus receive buffer overrun.
func (c *Collector) ObserveOverrun() {
	if c == nil {
		return
	}
	c.overruns.Inc()
}
