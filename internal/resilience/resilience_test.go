package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	p := NewPolicy("test", fastBackoff)
	var calls int
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	p := NewPolicy("test", fastBackoff)
	var calls int
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("still broken")
	})
	require.EqualError(t, err, "still broken")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	p := NewPolicy("test", fastBackoff)
	sentinel := errors.New("not found")
	var calls int
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_InvalidConfig(t *testing.T) {
	p := NewPolicy("test", BackoffConfig{})
	_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, NewPolicy("test", fastBackoff), func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoHTTP_StatusHandling(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		switch r.URL.Path {
		case "/flaky":
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("fine"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	build := func(path string) func(ctx context.Context) (*http.Request, error) {
		return func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
		}
	}

	resp, err := DoHTTP(context.Background(), NewPolicy("flaky", fastBackoff), srv.Client(), build("/flaky"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), hits.Load())

	hits.Store(0)
	_, err = DoHTTP(context.Background(), NewPolicy("missing", fastBackoff), srv.Client(), build("/missing"))
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Equal(t, int32(1), hits.Load())

	_, err = DoHTTP(context.Background(), NewPolicy("nil", fastBackoff), nil, build("/flaky"))
	assert.ErrorIs(t, err, ErrNoHTTPClient)
}
