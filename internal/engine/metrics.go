package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	changesets   *prometheus.CounterVec
	changes      prometheus.Counter
	failures     *prometheus.CounterVec
	removed      prometheus.Counter
	written      prometheus.Counter
	changesetLen prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		changesets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macrome_changesets_total",
			Help: "Changesets closed, by root operation.",
		}, []string{"operation"}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrome_changes_total",
			Help: "Changes drained from changeset queues.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "macrome_generator_failures_total",
			Help: "Failed map or reduce calls, by generator.",
		}, []string{"generator"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrome_files_removed_total",
			Help: "Owned files deleted as stale or cascaded output.",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "macrome_files_written_total",
			Help: "Owned files written to disk.",
		}),
		changesetLen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "macrome_changeset_paths",
			Help:    "Number of paths in each closed changeset.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.changesets, m.changes, m.failures, m.removed, m.written, m.changesetLen)
	}
	return m
}

func (m *Metrics) changesetClosed(cs *Changeset) {
	if m == nil {
		return
	}
	m.changesets.WithLabelValues(cs.root.Op.String()).Inc()
	m.changesetLen.Observe(float64(len(cs.Paths())))
}

func (m *Metrics) changeDrained() {
	if m == nil {
		return
	}
	m.changes.Inc()
}

func (m *Metrics) generatorFailed(generator string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(generator).Inc()
}

func (m *Metrics) fileRemoved() {
	if m == nil {
		return
	}
	m.removed.Inc()
}

func (m *Metrics) fileWritten() {
	if m == nil {
		return
	}
	m.written.Inc()
}
