package summary

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/stats"
	"github.com/i474232898/monthly-weather-stats/internal/store"
)

type fakeSource struct {
	mu    sync.Mutex
	data  string
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.data), nil
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

const mixedOutput = `"2023-01"	{"avg_max_temp": 21.0, "total_precip": 8.0}
"2023-02"	[18.5, 12.25]
"2023-03"	not a literal
"2023-04"	{"avgMaxTemp": 15, "totalPrecip": 0.5}
`

func TestService_DecodesMixedFormats(t *testing.T) {
	src := &fakeSource{data: mixedOutput}
	m := observability.NewMetricsForTesting()
	svc := NewService(src, "out.txt", nil, quietLogger(), m)

	got, err := svc.GetMonthlySummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []stats.DecodedRecord{
		{Month: "2023-01", Temperature: 21.0, Precipitation: 8.0},
		{Month: "2023-02", Temperature: 18.5, Precipitation: 12.25},
		{Month: "2023-04", Temperature: 15, Precipitation: 0.5},
	}, got.Records)
	assert.Equal(t, int64(1), got.DecodeErrors())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors.WithLabelValues(string(stats.DecodeInvalidLiteral))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("success")))
}

func TestService_EmptyObject(t *testing.T) {
	svc := NewService(&fakeSource{}, "out.txt", nil, quietLogger(), nil)

	got, err := svc.GetMonthlySummaries(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got.Records)
	assert.Empty(t, got.Records)
}

func TestService_SourceUnavailable(t *testing.T) {
	m := observability.NewMetricsForTesting()
	svc := NewService(&fakeSource{err: errors.New("no such key")}, "out.txt", nil, quietLogger(), m)

	_, err := svc.GetMonthlySummaries(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("unavailable")))
}

func TestService_ServesFromCacheUntilExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := store.NewMemoryStore[Summary](1, time.Minute, clock)
	src := &fakeSource{data: mixedOutput}
	m := observability.NewMetricsForTesting()
	svc := NewService(src, "out.txt", cache, quietLogger(), m)

	for i := 0; i < 3; i++ {
		_, err := svc.GetMonthlySummaries(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))

	clock.Advance(2 * time.Minute)
	_, err := svc.GetMonthlySummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("expired")))
}

func TestService_RefreshFailureKeepsCache(t *testing.T) {
	cache := store.NewMemoryStore[Summary](1, 0, clockwork.NewFakeClock())
	src := &fakeSource{data: mixedOutput}
	svc := NewService(src, "out.txt", cache, quietLogger(), nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	src.err = errors.New("timeout")
	_, err = svc.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	got, err := svc.GetMonthlySummaries(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Records, 3)
}

func TestSummary_Filter(t *testing.T) {
	s := Summary{Records: []stats.DecodedRecord{
		{Month: "2023-01"}, {Month: "2023-02"}, {Month: "2023-03"}, {Month: "2023-04"},
	}}

	months := func(s Summary) []stats.MonthKey {
		var out []stats.MonthKey
		for _, r := range s.Records {
			out = append(out, r.Month)
		}
		return out
	}

	assert.Equal(t, []stats.MonthKey{"2023-02", "2023-03"}, months(s.Filter(MonthRange{From: "2023-02", To: "2023-03"})))
	assert.Equal(t, []stats.MonthKey{"2023-03", "2023-04"}, months(s.Filter(MonthRange{From: "2023-03"})))
	assert.Equal(t, []stats.MonthKey{"2023-01"}, months(s.Filter(MonthRange{To: "2023-01"})))
	assert.Len(t, s.Filter(MonthRange{}).Records, 4)
}

func TestService_LogsSkippedLinesWithLineNumber(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := NewService(&fakeSource{data: mixedOutput}, "out.txt", nil, logger, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	var warned []log.Fields
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warned = append(warned, e.Data)
		}
	}
	require.Len(t, warned, 1)
	assert.Equal(t, 3, warned[0]["line"])
	assert.Equal(t, stats.DecodeInvalidLiteral, warned[0]["kind"])
}
