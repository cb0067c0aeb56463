package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"capd/internal/domain"
)

type PrometheusMetrics struct {
	invocations          *prometheus.CounterVec
	invocationDuration   *prometheus.HistogramVec
	publishes            *prometheus.CounterVec
	catalogEntries       *prometheus.GaugeVec
	registrationAttempts *prometheus.CounterVec
	downloads            *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capd_invocations_total",
				Help: "Total number of tool invocations and resource acquisitions",
			},
			[]string{"kind", "status"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capd_invocation_duration_seconds",
				Help:    "Duration of tool invocations and resource acquisitions in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind", "status"},
		),
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capd_publish_total",
				Help: "Total number of catalog publish calls",
			},
			[]string{"kind", "status"},
		),
		catalogEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capd_catalog_entries",
				Help: "Current number of catalog entries",
			},
			[]string{"kind"},
		),
		registrationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capd_registration_attempts_total",
				Help: "Total number of discovery registration attempts",
			},
			[]string{"outcome"},
		),
		downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capd_downloads_total",
				Help: "Total number of resource acquisition attempts",
			},
			[]string{"kind", "status"},
		),
	}
}

func (p *PrometheusMetrics) ObserveInvocation(kind domain.CapabilityKind, outcome domain.Outcome, duration time.Duration) {
	p.invocations.WithLabelValues(string(kind), string(outcome)).Inc()
	p.invocationDuration.WithLabelValues(string(kind), string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObservePublish(kind domain.CapabilityKind, outcome domain.Outcome) {
	p.publishes.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (p *PrometheusMetrics) SetCatalogEntries(kind domain.CapabilityKind, count int) {
	p.catalogEntries.WithLabelValues(string(kind)).Set(float64(count))
}

func (p *PrometheusMetrics) ObserveRegistrationAttempt(outcome domain.Outcome) {
	p.registrationAttempts.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusMetrics) ObserveDownload(kind domain.ResourceKind, outcome domain.Outcome) {
	p.downloads.WithLabelValues(string(kind), string(outcome)).Inc()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
