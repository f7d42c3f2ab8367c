package reindex

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the scheduler's prometheus collectors.
type Metrics struct {
	TaskCount    *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	Articles     prometheus.Counter
	Active       prometheus.Gauge
	Pending      prometheus.Gauge
	Stalls       prometheus.Counter
	Dropped      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TaskCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "tasks_total",
			Help:      "Finished reindexing tasks by outcome",
		}, []string{"outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "task_duration_seconds",
			Help:      "Reindexing task run time by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"outcome"}),
		Articles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "articles_total",
			Help:      "Records committed by reindexing tasks",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "active_tasks",
			Help:      "Reindexing tasks currently running",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "pending_aus",
			Help:      "Enabled entries of the pending AU queue at the last dispatch pass",
		}),
		Stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "stalls_total",
			Help:      "Reindexing tasks that missed their watchdog deadline",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdindex",
			Subsystem: "reindex",
			Name:      "dropped_total",
			Help:      "Pending AUs removed without indexing, by reason",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.TaskCount, m.TaskDuration, m.Articles, m.Active, m.Pending, m.Stalls, m.Dropped)
	}
	return m
}
