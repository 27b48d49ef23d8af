package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Sweep outcomes used as the "result" label.
const (
	SweepRan    = "ran"
	SweepBusy   = "busy"
	SweepFailed = "failed"
)

// Metrics holds the token service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TokensCreatedTotal prometheus.Counter
	TokensTouchedTotal prometheus.Counter
	TokensDeletedTotal prometheus.Counter
	TokenChecksTotal   *prometheus.CounterVec
	TouchMissesTotal   prometheus.Counter
	SweepsTotal        *prometheus.CounterVec
	SweptTokensTotal   prometheus.Counter
	StorageErrorsTotal *prometheus.CounterVec
	CleanupFrequency   prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_created_total",
			Help: "Total number of tokens created.",
		}),
		TokensTouchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_touched_total",
			Help: "Total number of token touches issued.",
		}),
		TokensDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_deleted_total",
			Help: "Total number of explicit token deletions issued.",
		}),
		TokenChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_checks_total",
			Help: "Total number of token checks by outcome.",
		}, []string{"found"}),
		TouchMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_touch_misses_total",
			Help: "Touches that matched no stored token.",
		}),
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_sweeps_total",
			Help: "Expired token sweeps by result.",
		}, []string{"result"}),
		SweptTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_swept_total",
			Help: "Total number of expired tokens removed by sweeps.",
		}),
		StorageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_storage_errors_total",
			Help: "Storage failures by operation.",
		}, []string{"op"}),
		CleanupFrequency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "token_cleanup_frequency_seconds",
			Help: "Active cleanup frequency, 0 when the scheduler is stopped.",
		}),
	}

	if reg == nil {
		log.Debug().Msg("Prometheus registry is nil, token metrics not registered.")
		return m
	}
	for _, c := range []prometheus.Collector{
		m.TokensCreatedTotal, m.TokensTouchedTotal, m.TokensDeletedTotal,
		m.TokenChecksTotal, m.TouchMissesTotal, m.SweepsTotal,
		m.SweptTokensTotal, m.StorageErrorsTotal, m.CleanupFrequency,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register token metric")
		}
	}
	log.Info().Msg("Token Prometheus metrics registered.")
	return m
}

func (m *Metrics) Created() {
	if m != nil {
		m.TokensCreatedTotal.Inc()
	}
}

func (m *Metrics) Touched(matched bool) {
	if m == nil {
		return
	}
	m.TokensTouchedTotal.Inc()
	if !matched {
		m.TouchMissesTotal.Inc()
	}
}

func (m *Metrics) Deleted() {
	if m != nil {
		m.TokensDeletedTotal.Inc()
	}
}

func (m *Metrics) Checked(found bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.TokenChecksTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) Sweep(result string, deleted int64) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.SweptTokensTotal.Add(float64(deleted))
	}
}

func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.StorageErrorsTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SetCleanupFrequency(seconds float64) {
	if m != nil {
		m.CleanupFrequency.Set(seconds)
	}
}
