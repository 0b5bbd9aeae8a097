package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	enqueued   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	limited    *prometheus.CounterVec
	denied     *prometheus.CounterVec
	queueJobs  *prometheus.GaugeVec
	pruned     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notipi_jobs_enqueued_total",
			Help: "Jobs durably accepted into the queue.",
		}, []string{"channel"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notipi_delivery_attempts_total",
			Help: "Delivery attempts by outcome.",
		}, []string{"channel", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notipi_delivery_duration_seconds",
			Help:    "Time spent in the channel sender per attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notipi_rate_limited_total",
			Help: "Requests rejected by a rate window.",
		}, []string{"tier"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notipi_quota_denied_total",
			Help: "Requests rejected for insufficient quota.",
		}, []string{"channel"}),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notipi_queue_jobs",
			Help: "Jobs currently in each queue state.",
		}, []string{"state"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notipi_queue_pruned_total",
			Help: "Finished jobs removed by retention.",
		}),
	}

	reg.MustRegister(m.enqueued, m.deliveries, m.duration, m.limited, m.denied, m.queueJobs, m.pruned)
	return m
}

func (m *Metrics) jobEnqueued(ch model.Channel) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) attempt(ch model.Channel, outcome model.Outcome, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(ch), string(outcome)).Inc()
	m.duration.WithLabelValues(string(ch)).Observe(took.Seconds())
}

func (m *Metrics) rateLimited(tier RateTier) {
	if m == nil {
		return
	}
	m.limited.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) quotaDenied(ch model.Channel) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) queueStats(s model.QueueStats, pruned int64) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(string(model.JobStateQueued)).Set(float64(s.Waiting))
	m.queueJobs.WithLabelValues(string(model.JobStateActive)).Set(float64(s.Active))
	m.queueJobs.WithLabelValues(string(model.JobStateCompleted)).Set(float64(s.Completed))
	m.queueJobs.WithLabelValues(string(model.JobStateFailed)).Set(float64(s.Failed))
	m.pruned.Add(float64(pruned))
}
