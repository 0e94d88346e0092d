package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-pluto/convergent/node"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Functions

// nodeMetrics returns the replica's metrics bundle. With
// an empty Prometheus address all observations are
// discarded, otherwise real counters are registered.
func nodeMetrics(promAddr string) *node.Metrics {

	if promAddr == "" {
		return node.InitMetrics()
	}

	return &node.Metrics{
		EventsApplied: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "convergent",
			Subsystem: "replica",
			Name:      "events_applied_total",
			Help:      "Number of events applied to the local log, own and replicated ones",
		}, nil),
		EntriesShipped: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "convergent",
			Subsystem: "replica",
			Name:      "entries_shipped_total",
			Help:      "Number of log entries shipped to peers",
		}, nil),
		RoundsCompleted: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "convergent",
			Subsystem: "replica",
			Name:      "rounds_completed_total",
			Help:      "Number of replication rounds completed against peers",
		}, nil),
		MsgsDropped: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "convergent",
			Subsystem: "replica",
			Name:      "msgs_dropped_total",
			Help:      "Number of received messages dropped without being handled",
		}, nil),
	}
}

func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	http.Handle("/metrics", promhttp.Handler())

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
