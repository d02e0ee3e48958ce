// Package promhook exports cache and refresh events as Prometheus metrics.
package promhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/cacheback"
)

type Hooks struct {
	reads          *prometheus.CounterVec
	staleAge       prometheus.Histogram
	enqueueFailed  *prometheus.CounterVec
	selfHeals      *prometheus.CounterVec
	setRejected    prometheus.Counter
	refreshes      *prometheus.CounterVec
	refreshSkipped *prometheus.CounterVec
	refreshTook    *prometheus.HistogramVec
}

var _ cacheback.Hooks = (*Hooks)(nil)

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "cacheback"
	}
	f := promauto.With(reg)

	return &Hooks{
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Cache reads by result (hit, stale, miss_fetch, miss_empty)",
		}, []string{"result"}),
		staleAge: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stale_age_seconds",
			Help:      "Age of entries served stale",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		enqueueFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_failures_total",
			Help:      "Refresh requests the dispatcher did not accept",
		}, []string{"job"}),
		selfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heals_total",
			Help:      "Entries deleted on read",
		}, []string{"reason"}),
		setRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_set_rejected_total",
			Help:      "Writes rejected by the provider",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Worker refreshes by job and status",
		}, []string{"job", "status", "stage"}),
		refreshSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_skips_total",
			Help:      "Worker refreshes whose result was not stored",
		}, []string{"job", "reason"}),
		refreshTook: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of successful worker refreshes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (h *Hooks) Hit(string) { h.reads.WithLabelValues("hit").Inc() }

func (h *Hooks) StaleHit(_ string, age time.Duration) {
	h.reads.WithLabelValues("stale").Inc()
	h.staleAge.Observe(age.Seconds())
}

func (h *Hooks) Miss(_ string, fetchOnMiss bool) {
	if fetchOnMiss {
		h.reads.WithLabelValues("miss_fetch").Inc()
		return
	}
	h.reads.WithLabelValues("miss_empty").Inc()
}

func (h *Hooks) EnqueueFailed(job string, _ error) { h.enqueueFailed.WithLabelValues(job).Inc() }

func (h *Hooks) SelfHeal(_ string, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) ProviderSetRejected(string) { h.setRejected.Inc() }

func (h *Hooks) RefreshStored(job string, took time.Duration) {
	h.refreshes.WithLabelValues(job, string(cacheback.StatusStored), "").Inc()
	h.refreshTook.WithLabelValues(job).Observe(took.Seconds())
}

func (h *Hooks) RefreshSkipped(job, reason string) {
	h.refreshes.WithLabelValues(job, string(cacheback.StatusSkipped), "").Inc()
	h.refreshSkipped.WithLabelValues(job, reason).Inc()
}

func (h *Hooks) RefreshFailed(job string, stage cacheback.Stage, _ error) {
	h.refreshes.WithLabelValues(job, string(cacheback.StatusFailed), string(stage)).Inc()
}
