package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/key"
	"github.com/spf13/viper"
)

// HTTPError carries the status and body of a non-2xx backend response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 300))
}

// Temporary reports whether retrying the same request may succeed.
func (e *HTTPError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusTooEarly:
		return true
	}
	return e.StatusCode >= 500
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// RetryConfig controls exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Once performs a single attempt.
var Once = RetryConfig{MaxAttempts: 1}

// DefaultRetryConfig makes five attempts with backoff from 500ms up to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// RetryConfigFromConfig reads the retry.* keys.
func RetryConfigFromConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: viper.GetInt(key.RetryMaxAttempts),
		BaseDelay:   config.Duration(key.RetryBaseDelay, time.Millisecond),
		MaxDelay:    config.Duration(key.RetryMaxDelay, time.Millisecond),
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	return c
}

// doWithRetry executes the request built by buildReq, retrying transient network
// failures and temporary statuses. The body is always drained so the connection
// can be reused.
func doWithRetry(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	cfg RetryConfig,
) ([]byte, error) {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1, cfg, lastErr); err != nil {
				return nil, err
			}
		}

		req, err := buildReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			if !isRetryableNetErr(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		body, err := readAndClose(resp.Body)
		if err != nil {
			if !isRetryableNetErr(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		herr := &HTTPError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
		if !herr.Temporary() {
			return nil, herr
		}
		lastErr = &retryAfterError{HTTPError: herr, after: parseRetryAfter(resp)}
	}

	var rerr *retryAfterError
	if errors.As(lastErr, &rerr) {
		return nil, rerr.HTTPError
	}
	return nil, lastErr
}

// retryAfterError remembers the server's Retry-After hint between attempts.
type retryAfterError struct {
	*HTTPError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.HTTPError }

func readAndClose(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}

// backoff returns the delay before retry n (1-based), capped at MaxDelay, with
// up to half a base delay of jitter.
func backoff(n int, cfg RetryConfig) time.Duration {
	delay := cfg.MaxDelay
	if n < 31 {
		if d := cfg.BaseDelay * time.Duration(1<<(n-1)); d > 0 && d < cfg.MaxDelay {
			delay = d
		}
	}
	if half := int64(cfg.BaseDelay / 2); half > 0 {
		delay += time.Duration(rand.Int64N(half))
	}
	return delay
}

func sleepBackoff(ctx context.Context, n int, cfg RetryConfig, lastErr error) error {
	sleep := backoff(n, cfg)

	var rerr *retryAfterError
	if errors.As(lastErr, &rerr) && rerr.after > 0 {
		sleep = min(rerr.after, cfg.MaxDelay)
	}

	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	var operr *net.OpError
	if errors.As(err, &operr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof")
}

// parseRetryAfter parses the Retry-After header (seconds or HTTP date).
func parseRetryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

// isPermanent reports whether err is a definite rejection by the backend, as
// opposed to the backend being unreachable.
func isPermanent(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && !herr.Temporary()
}
