package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the requests and chunks handled by a Client.
type Metrics struct {
	requests      prometheus.Counter
	resolved      prometheus.Counter
	unsolicited   prometheus.Counter
	timeouts      prometheus.Counter
	failures      *prometheus.CounterVec
	solicitations prometheus.Counter
	pending       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunky", Name: "requests_total",
			Help: "Chunk requests made, excluding requests joining one already pending.",
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunky", Name: "requests_resolved_total",
			Help: "Chunk requests resolved with a chunk.",
		}),
		unsolicited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunky", Name: "chunks_unsolicited_total",
			Help: "Chunks received without a pending request.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunky", Name: "requests_timed_out_total",
			Help: "Chunk requests that timed out.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunky", Name: "requests_failed_total",
			Help: "Chunk requests failed, by reason.",
		}, []string{"reason"}),
		solicitations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunky", Name: "solicitations_total",
			Help: "Position moves made to solicit chunks.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunky", Name: "requests_pending",
			Help: "Chunk requests currently pending.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requests, m.resolved, m.unsolicited, m.timeouts, m.failures, m.solicitations, m.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) incRequests() {
	if m == nil {
		return
	}
	m.requests.Inc()
	m.pending.Inc()
}

func (m *Metrics) incResolved() {
	if m == nil {
		return
	}
	m.resolved.Inc()
	m.pending.Dec()
}

func (m *Metrics) incUnsolicited() {
	if m == nil {
		return
	}
	m.unsolicited.Inc()
}

func (m *Metrics) incTimeouts() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
	m.pending.Dec()
}

// incFailures counts a failed request. reason is one of "decode",
// "unassignable" or "disconnect".
func (m *Metrics) incFailures(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
	m.pending.Dec()
}

func (m *Metrics) incSolicitations() {
	if m == nil {
		return
	}
	m.solicitations.Inc()
}
