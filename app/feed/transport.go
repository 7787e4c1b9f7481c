package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultUserAgent    = "tubewatch/1.0 (+https://github.com/lysyi3m/tubewatch)"

	maxBodySize = 5 << 20
)

// Transport fetches a URL within timeout. A non-200 answer is not an error; the caller
// inspects Status.
type Transport interface {
	FetchFeed(ctx context.Context, url string, timeout time.Duration) (Response, error)
}

type HTTPTransport struct {
	client    *http.Client
	userAgent string
	interval  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPTransport allows one request per host every interval (no limit when zero).
func NewHTTPTransport(userAgent string, interval time.Duration) *HTTPTransport {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPTransport{
		client:    &http.Client{},
		userAgent: userAgent,
		interval:  interval,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (t *HTTPTransport) FetchFeed(ctx context.Context, rawURL string, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.wait(ctx, rawURL); err != nil {
		return Response{}, fmt.Errorf("rate limit wait for %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := t.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("failed to read response body: %w", err)
	}

	return Response{Status: resp.StatusCode, Body: body}, nil
}

func (t *HTTPTransport) wait(ctx context.Context, rawURL string) error {
	if t.interval <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}
	return t.limiterFor(u.Host).Wait(ctx)
}

func (t *HTTPTransport) limiterFor(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[host] = limiter
	}
	return limiter
}

// RetryTransport retries connection errors, 429 and 5xx answers with exponential backoff.
// A timed-out or cancelled fetch is abandoned, never retried.
type RetryTransport struct {
	next        Transport
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

var errRetryableStatus = errors.New("retryable status")

func NewRetryTransport(next Transport, maxAttempts int, baseDelay time.Duration) *RetryTransport {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryTransport{
		next:        next,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    30 * time.Second,
	}
}

func (r *RetryTransport) FetchFeed(ctx context.Context, rawURL string, timeout time.Duration) (Response, error) {
	attempt := 0
	operation := func() (Response, error) {
		attempt++
		resp, err := r.next.FetchFeed(ctx, rawURL, timeout)
		if !retryable(ctx, resp, err) {
			if err != nil {
				return resp, backoff.Permanent(err)
			}
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %d", errRetryableStatus, resp.Status)
		}
		return resp, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Debug("Retrying fetch", "url", rawURL, "attempt", attempt, "delay", delay, "error", err)
		}),
	)

	var permanent *backoff.PermanentError
	switch {
	case errors.As(err, &permanent):
		err = permanent.Err
	case errors.Is(err, errRetryableStatus):
		// attempts exhausted on a 429 or 5xx; the caller inspects Status
		err = nil
	}
	return resp, err
}

func (r *RetryTransport) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.MaxInterval = r.maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	return bo
}

func retryable(ctx context.Context, resp Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false
		}
		return true
	}
	return resp.Status == http.StatusTooManyRequests || resp.Status >= 500
}
