package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "weather_stats"

// Metrics holds the Prometheus collectors shared by the job and the server.
type Metrics struct {
	ObservationsParsed prometheus.Counter
	ParseErrors        *prometheus.CounterVec // labels: kind
	MonthsReduced      prometheus.Counter
	JobDuration        prometheus.Histogram

	DecodeErrors        *prometheus.CounterVec // labels: kind
	SourceFetches       *prometheus.CounterVec // labels: outcome={success,unavailable}
	SourceFetchDuration prometheus.Histogram
	CacheLookups        *prometheus.CounterVec // labels: result={hit,miss,expired}
	SummariesServed     *prometheus.CounterVec // labels: format={json,html}
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_parsed_total",
			Help:      "Daily observations successfully parsed by the aggregation job.",
		}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Input lines rejected by the record parser, by kind.",
		}, []string{"kind"}),
		MonthsReduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "months_reduced_total",
			Help:      "Month keys reduced to a final statistic.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a complete aggregation run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Persisted summary lines skipped by the decoder, by kind.",
		}, []string{"kind"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Summary blob fetches by outcome.",
		}, []string{"outcome"}),
		SourceFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Summary blob fetch duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Summary cache lookups by result.",
		}, []string{"result"}),
		SummariesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_served_total",
			Help:      "Monthly summary responses by format.",
		}, []string{"format"}),
	}
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ObservationsParsed,
		m.ParseErrors,
		m.MonthsReduced,
		m.JobDuration,
		m.DecodeErrors,
		m.SourceFetches,
		m.SourceFetchDuration,
		m.CacheLookups,
		m.SummariesServed,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as
// many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// PushJobMetrics sends the aggregation job collectors to a Prometheus
// Pushgateway, replacing any metrics previously pushed under job.
func (m *Metrics) PushJobMetrics(ctx context.Context, gatewayURL, job string) error {
	err := push.New(gatewayURL, job).
		Collector(m.ObservationsParsed).
		Collector(m.ParseErrors).
		Collector(m.MonthsReduced).
		Collector(m.JobDuration).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push job metrics: %w", err)
	}
	return nil
}
