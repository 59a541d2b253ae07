package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("server error")
	ErrUnexpected   = errors.New("unexpected status code")
	ErrNoHTTPClient = errors.New("http client not configured")
)

// DoHTTP executes the request built by buildRequest under p. 429 and 5xx are
// retried; other non-2xx statuses are permanent. The caller closes the body.
func DoHTTP(
	ctx context.Context,
	p *Policy,
	client *http.Client,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if client == nil {
		return nil, ErrNoHTTPClient
	}

	return Do(ctx, p, func(ctx context.Context) (*http.Response, error) {
		req, err := buildRequest(ctx)
		if err != nil {
			return nil, Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			return nil, ErrRateLimited
		case resp.StatusCode >= 500:
			drain(resp)
			return nil, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			drain(resp)
			return nil, Permanent(fmt.Errorf("%w: %d", ErrUnexpected, resp.StatusCode))
		}
		return resp, nil
	})
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
