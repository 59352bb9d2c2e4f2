package main

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus instruments exported by the server. Each
// handler increments these directly; they're cheap, lock-free counters on
// the hot path (the client_golang counter/histogram types are already
// safe for concurrent use without an extra mutex).
type metrics struct {
	commandsTotal    prometheus.Counter
	addsTotal        *prometheus.CounterVec // label "result": ok, saturated
	containsTotal    prometheus.Counter
	containHits      prometheus.Counter
	batchSize        prometheus.Histogram
	connectionsTotal prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crate_commands_total",
			Help: "Total commands processed by the server.",
		}),
		addsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crate_adds_total",
			Help: "Total CRATE.ADD calls, by result.",
		}, []string{"result"}),
		containsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crate_contains_total",
			Help: "Total CRATE.CONTAIN and CRATE.CONTAINN keys probed.",
		}),
		containHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crate_contain_hits_total",
			Help: "Total CRATE.CONTAIN and CRATE.CONTAINN probes that answered positive.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crate_containn_batch_size",
			Help:    "Size of CRATE.CONTAINN batches.",
			Buckets: []float64{1, 8, 16, 32, 64, 128},
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crate_connections_total",
			Help: "Total TCP connections accepted.",
		}),
	}

	prometheus.MustRegister(
		m.commandsTotal,
		m.addsTotal,
		m.containsTotal,
		m.containHits,
		m.batchSize,
		m.connectionsTotal,
	)

	return m
}
