package upstream

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Upstream JSON-RPC calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_call_duration_seconds",
			Help:    "Duration of upstream JSON-RPC calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	sessionLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_session_cache_lookups_total",
			Help: "Upstream session cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(upstreamCalls, upstreamLatency, sessionLookups)
}

func observeCall(method string, start time.Time, err error) {
	upstreamLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	upstreamCalls.WithLabelValues(method, outcome(err)).Inc()
}

func outcome(err error) string {
	var rpcErr *RPCError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	default:
		return "transport_error"
	}
}
