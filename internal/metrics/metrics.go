package metrics

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeLabel is the label every causal metric is partitioned by.
const NodeLabel = "node"

// Metrics holds the counters and gauges a causal node reports.
type Metrics struct {
	Sent      metrics.Counter
	Delivered metrics.Counter
	Held      metrics.Counter
	Dropped   metrics.Counter
	Rejected  metrics.Counter
	Pending   metrics.Gauge
}

// New creates Prometheus-backed metrics registered with the default registry.
// It must be called at most once per process.
func New() *Metrics {
	return &Metrics{
		Sent: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "sent_total",
			Help:      "Number of messages multicast by the node",
		}, []string{NodeLabel}),
		Delivered: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "delivered_total",
			Help:      "Number of messages delivered in causal order",
		}, []string{NodeLabel}),
		Held: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "held_total",
			Help:      "Number of messages placed in the hold-back queue",
		}, []string{NodeLabel}),
		Dropped: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "dropped_total",
			Help:      "Number of stale duplicate messages dropped",
		}, []string{NodeLabel}),
		Rejected: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "rejected_total",
			Help:      "Number of messages rejected as protocol violations",
		}, []string{NodeLabel}),
		Pending: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "causalcast",
			Subsystem: "node",
			Name:      "pending",
			Help:      "Current size of the hold-back queue",
		}, []string{NodeLabel}),
	}
}

// Discard returns metrics that record nothing.
func Discard() *Metrics {
	return &Metrics{
		Sent:      discard.NewCounter(),
		Delivered: discard.NewCounter(),
		Held:      discard.NewCounter(),
		Dropped:   discard.NewCounter(),
		Rejected:  discard.NewCounter(),
		Pending:   discard.NewGauge(),
	}
}

// For returns a copy of m with every metric bound to the given node label value.
func (m *Metrics) For(node string) *Metrics {
	return &Metrics{
		Sent:      m.Sent.With(NodeLabel, node),
		Delivered: m.Delivered.With(NodeLabel, node),
		Held:      m.Held.With(NodeLabel, node),
		Dropped:   m.Dropped.With(NodeLabel, node),
		Rejected:  m.Rejected.With(NodeLabel, node),
		Pending:   m.Pending.With(NodeLabel, node),
	}
}

// Handler returns the HTTP handler exposing the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr. It blocks until the listener fails.
func Serve(logger log.Logger, addr string) {
	if addr == "" {
		level.Debug(logger).Log("msg", "metrics addr is empty, not exposing prometheus metrics")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
