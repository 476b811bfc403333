// Package network provides the pre-configured HTTP client shared by every backend call.
package network

import (
	"net/http"
	"time"

	"github.com/lessontrack/lessontrack/constant"
)

// Client is the shared HTTP client. Per-request deadlines come from contexts, so the
// client-level timeout only guards against a backend that never answers.
var Client = New(time.Minute)

// New builds a client with a tuned transport that stamps the application User-Agent.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: newTransport()},
	}
}

// newTransport initializes a tuned http.Transport with modest pool and timeout parameters.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 10
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	return t
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", constant.UserAgent)
	}
	return t.base.RoundTrip(req)
}
