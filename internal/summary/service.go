package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/stats"
	"github.com/i474232898/monthly-weather-stats/internal/store"
)

// ErrSourceUnavailable is returned when the summary object cannot be read.
var ErrSourceUnavailable = errors.New("summary source unavailable")

// Source reads the raw bytes of a persisted job output.
type Source interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Summary is the decoded job output served to clients.
type Summary struct {
	Records   []stats.DecodedRecord
	Errors    stats.Counters
	FetchedAt time.Time
}

// DecodeErrors is the total number of skipped output lines.
func (s Summary) DecodeErrors() int64 {
	return s.Errors.Total()
}

// Service serves monthly summaries from a Source through a cache.
type Service struct {
	source  Source
	ref     string
	cache   *store.MemoryStore[Summary]
	logger  log.FieldLogger
	metrics *observability.Metrics
}

// NewService creates a Service reading ref from source.
func NewService(source Source, ref string, cache *store.MemoryStore[Summary], logger log.FieldLogger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		source:  source,
		ref:     ref,
		cache:   cache,
		logger:  logger.WithField("component", "summary"),
		metrics: metrics,
	}
}

// GetMonthlySummaries returns the cached summary while it is fresh and
// fetches it from the source otherwise.
func (s *Service) GetMonthlySummaries(ctx context.Context) (Summary, error) {
	if s.cache != nil {
		entry, err := s.cache.Fresh(s.ref)
		if err == nil {
			s.observeCache("hit")
			return entry.Value, nil
		}
		if errors.Is(err, store.ErrExpired) {
			s.observeCache("expired")
		} else {
			s.observeCache("miss")
		}
	}
	return s.Refresh(ctx)
}

// Refresh fetches and decodes the summary object and replaces the cached copy.
func (s *Service) Refresh(ctx context.Context) (Summary, error) {
	start := time.Now()
	data, err := s.source.Fetch(ctx, s.ref)
	s.observeFetch(err, time.Since(start))
	if err != nil {
		s.logger.WithError(err).WithField("ref", s.ref).Warn("summary fetch failed")
		return Summary{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	records, skipped := stats.DecodeWithErrors(string(data))
	counters := stats.Counters{}
	for _, derr := range skipped {
		counters.Inc(string(derr.Kind))
		s.logger.WithFields(log.Fields{
			"ref":  s.ref,
			"line": derr.Line,
			"kind": derr.Kind,
		}).Warn("skipping malformed summary line")
	}
	summary := Summary{
		Records:   records,
		Errors:    counters,
		FetchedAt: time.Now().UTC(),
	}
	if s.metrics != nil {
		for kind, n := range counters {
			s.metrics.DecodeErrors.WithLabelValues(kind).Add(float64(n))
		}
	}
	if s.cache != nil {
		s.cache.Save(s.ref, summary)
	}

	s.logger.WithFields(log.Fields{
		"ref":           s.ref,
		"records":       len(records),
		"decode_errors": counters.Total(),
	}).Info("summary refreshed")
	return summary, nil
}

func (s *Service) observeFetch(err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "unavailable"
	}
	s.metrics.SourceFetches.WithLabelValues(outcome).Inc()
	s.metrics.SourceFetchDuration.Observe(elapsed.Seconds())
}

func (s *Service) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
