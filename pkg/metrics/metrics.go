package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	buildServer = "buildserver"

	// Job metrics
	jobsRegisteredTotal      = "jobs_registered_total"
	jobStatusTransitionTotal = "job_status_transitions_total"

	// Agent metrics
	agentActiveBuilds    = "agent_active_builds"
	buildDurationSeconds = "build_duration_seconds"

	// Queue metrics
	queueReconnectsTotal = "queue_reconnects_total"
	queueDeliveriesTotal = "queue_deliveries_total"

	// Rebuilder metrics
	rebuilderPassesTotal   = "rebuilder_passes_total"
	rebuildsTriggeredTotal = "rebuilds_triggered_total"

	// Labels
	statusLabel  = "status"
	outcomeLabel = "outcome"
	resultLabel  = "result"
	triggerLabel = "trigger"
)

const (
	TriggerClient    = "client"
	TriggerRebuilder = "rebuilder"

	DeliveryAcked    = "ack"
	DeliveryNacked   = "nack"
	DeliveryRequeued = "requeue"

	PassCompleted = "completed"
	PassTimedOut  = "timeout"
	PassFailed    = "failed"
)

/**
* Metrics definition
**/
var jobsRegisteredTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      jobsRegisteredTotal,
		Help:      "number of jobs registered, partitioned by what triggered the registration",
	},
	[]string{triggerLabel},
)

var jobStatusTransitionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      jobStatusTransitionTotal,
		Help:      "number of accepted job status transitions, partitioned by the new status",
	},
	[]string{statusLabel},
)

var agentActiveBuildsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: buildServer,
		Name:      agentActiveBuilds,
		Help:      "number of builds currently executed by this agent",
	},
)

var buildDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: buildServer,
		Name:      buildDurationSeconds,
		Help:      "wall clock duration of clone and build, partitioned by outcome",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	},
	[]string{outcomeLabel},
)

var queueReconnectsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      queueReconnectsTotal,
		Help:      "number of times the queue consumer reconnected after losing the broker",
	},
)

var queueDeliveriesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      queueDeliveriesTotal,
		Help:      "number of consumed deliveries, partitioned by how they were settled",
	},
	[]string{resultLabel},
)

var rebuilderPassesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      rebuilderPassesTotal,
		Help:      "number of rebuilder check passes, partitioned by result",
	},
	[]string{resultLabel},
)

var rebuildsTriggeredMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: buildServer,
		Name:      rebuildsTriggeredTotal,
		Help:      "number of repositories re-registered because their remote HEAD moved",
	},
)

func IncreaseJobsRegisteredMetric(trigger string) {
	jobsRegisteredTotalMetric.With(prometheus.Labels{triggerLabel: trigger}).Inc()
}

func IncreaseJobStatusTransitionMetric(status string) {
	jobStatusTransitionsMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func SetAgentActiveBuilds(count int) {
	agentActiveBuildsMetric.Set(float64(count))
}

func ObserveBuildDuration(outcome string, seconds float64) {
	buildDurationMetric.With(prometheus.Labels{outcomeLabel: outcome}).Observe(seconds)
}

func IncreaseQueueReconnectsMetric() {
	queueReconnectsMetric.Inc()
}

func IncreaseQueueDeliveriesMetric(result string) {
	queueDeliveriesMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseRebuilderPassesMetric(result string) {
	rebuilderPassesMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseRebuildsTriggeredMetric() {
	rebuildsTriggeredMetric.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsRegisteredTotalMetric)
	prometheus.MustRegister(jobStatusTransitionsMetric)
	prometheus.MustRegister(agentActiveBuildsMetric)
	prometheus.MustRegister(buildDurationMetric)
	prometheus.MustRegister(queueReconnectsMetric)
	prometheus.MustRegister(queueDeliveriesMetric)
	prometheus.MustRegister(rebuilderPassesMetric)
	prometheus.MustRegister(rebuildsTriggeredMetric)
}
