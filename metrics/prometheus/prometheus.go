// Package prometheus provides a Prometheus implementation of the router
// metrics collector.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raniellyferreira/redis-replica-router/router"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

// Metrics records router activity as Prometheus collectors.
type Metrics struct {
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	redirections    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	reconnections   prometheus.Counter
	requeued        prometheus.Counter
	syncDuration    prometheus.Histogram
	syncsTotal      prometheus.Counter
	errorsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redisroute_command_duration_seconds",
			Help:    "Time from submission to completion of a routed command",
			Buckets: defaultBuckets,
		}, []string{"command"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisroute_commands_total",
			Help: "Total number of completed commands",
		}, []string{"command"}),

		redirections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisroute_redirections_total",
			Help: "Total number of MOVED and ASK redirections followed",
		}, []string{"kind"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisroute_retries_total",
			Help: "Total number of scheduled retries",
		}, []string{"reason"}),

		reconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redisroute_connections_established_total",
			Help: "Total number of server connections established",
		}),

		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redisroute_requeued_commands_total",
			Help: "Total number of in-flight commands requeued after a connection closed",
		}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redisroute_topology_sync_duration_seconds",
			Help:    "Time taken to discover and install a topology",
			Buckets: defaultBuckets,
		}),

		syncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redisroute_topology_syncs_total",
			Help: "Total number of installed topologies",
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisroute_errors_total",
			Help: "Total number of errors by type",
		}, []string{"error_type"}),
	}

	reg.MustRegister(
		m.commandDuration,
		m.commandsTotal,
		m.redirections,
		m.retries,
		m.reconnections,
		m.requeued,
		m.syncDuration,
		m.syncsTotal,
		m.errorsTotal,
	)

	return m
}

func (m *Metrics) RecordCommand(cmd string, duration time.Duration) {
	m.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
	m.commandsTotal.WithLabelValues(cmd).Inc()
}

func (m *Metrics) RecordRedirection(kind string) {
	m.redirections.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRetry(reason string) {
	m.retries.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordReconnection() {
	m.reconnections.Inc()
}

func (m *Metrics) RecordRequeue(count int) {
	m.requeued.Add(float64(count))
}

func (m *Metrics) RecordTopologySync(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
	m.syncsTotal.Inc()
}

func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

var _ router.MetricsCollector = (*Metrics)(nil)
