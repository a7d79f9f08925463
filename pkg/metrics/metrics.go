// Package metrics wires prometheus counters and gauges for the ambient
// observability surface the §1 non-goal ("no metrics pipeline as a
// feature") still leaves room for at the plumbing level: subtask dispatch
// counts, decref queue depth, subpool restarts. There is no single
// teacher file this mirrors one-to-one; the counter/gauge naming and
// registration pattern follows how the teacher's prometheus usage is
// structured across its (now trimmed) observability packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every counter/gauge this repo exposes, constructed once
// at process startup. The start command updates SubPoolsAlive; no other
// metric in it is updated anywhere in this repository.
type Registry struct {
	SubtasksDispatched *prometheus.CounterVec
	SubtasksFailed     *prometheus.CounterVec
	DecrefQueueDepth   prometheus.Gauge
	SubPoolRestarts    *prometheus.CounterVec
	SubPoolsAlive      prometheus.Gauge
	AnalyzeDuration    prometheus.Histogram
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		SubtasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xorbits",
			Subsystem: "subtask",
			Name:      "dispatched_total",
			Help:      "Subtasks handed to a subpool for execution.",
		}, []string{"band"}),
		SubtasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xorbits",
			Subsystem: "subtask",
			Name:      "failed_total",
			Help:      "Subtasks that returned an error.",
		}, []string{"band"}),
		DecrefQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xorbits",
			Subsystem: "lifecycle",
			Name:      "decref_queue_depth",
			Help:      "Pending decref jobs not yet processed by the runner.",
		}),
		SubPoolRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xorbits",
			Subsystem: "actorpool",
			Name:      "subpool_restarts_total",
			Help:      "Subpool recovery attempts performed by the main pool monitor.",
		}, []string{"address"}),
		SubPoolsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xorbits",
			Subsystem: "actorpool",
			Name:      "subpools_alive",
			Help:      "Subpools currently reporting as alive.",
		}),
		AnalyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xorbits",
			Subsystem: "analyzer",
			Name:      "analyze_duration_seconds",
			Help:      "Wall-clock time spent in one Analyze call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.SubtasksDispatched,
		m.SubtasksFailed,
		m.DecrefQueueDepth,
		m.SubPoolRestarts,
		m.SubPoolsAlive,
		m.AnalyzeDuration,
	)
	return m
}
