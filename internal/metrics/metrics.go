package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Source call outcomes.
const (
	OutcomeHit     = "hit"
	OutcomeZero    = "zero"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

// Metrics groups the Prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SourceRequests      *prometheus.CounterVec
	SourceLatency       *prometheus.HistogramVec
	Resolutions         *prometheus.CounterVec
	CacheRequests       *prometheus.CounterVec
	SourceUp            *prometheus.GaugeVec
	SourceFailureStreak *prometheus.GaugeVec
	SourceProbeLatency  *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer, subsystem string) *Metrics {
	return &Metrics{
		SourceRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "source_requests_total",
			Help:      "Adapter calls made by the fallback resolver, labeled by outcome.",
		}, []string{"source", "query", "outcome"}),

		SourceLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of individual adapter calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "query"}),

		Resolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "resolutions_total",
			Help:      "Resolved queries labeled by the answering source; source is empty when no source answered.",
		}, []string{"query", "source"}),

		CacheRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "cache_requests_total",
			Help:      "Cache lookups labeled by result.",
		}, []string{"result"}),

		SourceUp: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "source_up",
			Help:      "1 when the last health probe of the source succeeded.",
		}, []string{"source"}),

		SourceFailureStreak: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "source_consecutive_failures",
			Help:      "Consecutive failed health probes per source.",
		}, []string{"source"}),

		SourceProbeLatency: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "source_probe_latency_seconds",
			Help:      "Latency of the last health probe per source.",
		}, []string{"source"}),
	}
}

func (m *Metrics) ObserveSource(source, query, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(source, query, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.SourceLatency.WithLabelValues(source, query).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveResolution(query, source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(query, source).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSourceHealth(source string, online bool, failures int, latency time.Duration) {
	if m == nil {
		return
	}
	up := 0.0
	if online {
		up = 1
	}
	m.SourceUp.WithLabelValues(source).Set(up)
	m.SourceFailureStreak.WithLabelValues(source).Set(float64(failures))
	m.SourceProbeLatency.WithLabelValues(source).Set(latency.Seconds())
}
