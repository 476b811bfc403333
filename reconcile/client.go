package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lessontrack/lessontrack/auth"
	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/network"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// Record is the backend's view of one lesson's progress.
type Record struct {
	LessonID        string  `json:"lessonId"`
	WatchedDuration float64 `json:"watchedDuration"`
	Completed       bool    `json:"completed"`
}

// Client talks to the course backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() (string, error)
}

// NewClient creates a client for the backend at baseURL. token may be nil for
// unauthenticated backends.
func NewClient(baseURL string, httpClient *http.Client, token func() (string, error)) *Client {
	if httpClient == nil {
		httpClient = network.Client
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

// ClientFromConfig builds a client from the backend.* keys and the stored token.
func ClientFromConfig() *Client {
	return NewClient(
		viper.GetString(key.BackendBaseURL),
		network.New(config.Duration(key.BackendTimeout, time.Second)),
		auth.Token,
	)
}

// CourseProgress fetches the progress of every lesson in a course.
func (c *Client) CourseProgress(ctx context.Context, courseID string) ([]Record, error) {
	var out struct {
		Lessons []Record `json:"lessons"`
	}
	err := c.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(courseID)+"/progress", nil, &out, Once)
	if err != nil {
		return nil, fmt.Errorf("course %s progress: %w", courseID, err)
	}
	return out.Lessons, nil
}

// UpdateWatchTime reports the watch time of a lesson.
func (c *Client) UpdateWatchTime(ctx context.Context, lessonID string, seconds float64, retry RetryConfig) error {
	body := struct {
		Seconds float64 `json:"seconds"`
	}{seconds}
	if err := c.do(ctx, http.MethodPatch, "/lessons/"+url.PathEscape(lessonID)+"/watch-time", body, nil, retry); err != nil {
		return fmt.Errorf("lesson %s watch time: %w", lessonID, err)
	}
	return nil
}

// CompleteLesson marks a lesson complete. The backend treats repeats as no-ops.
func (c *Client) CompleteLesson(ctx context.Context, lessonID string, watched float64, retry RetryConfig) error {
	body := struct {
		WatchedDuration float64 `json:"watchedDuration"`
	}{watched}
	if err := c.do(ctx, http.MethodPost, "/lessons/"+url.PathEscape(lessonID)+"/complete", body, nil, retry); err != nil {
		return fmt.Errorf("lesson %s completion: %w", lessonID, err)
	}
	return nil
}

// IssueCertificate asks the backend for a course certificate and returns its URL.
func (c *Client) IssueCertificate(ctx context.Context, courseID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodPost, "/courses/"+url.PathEscape(courseID)+"/certificate", struct{}{}, &out, Once)
	if err != nil {
		return "", fmt.Errorf("course %s certificate: %w", courseID, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("course %s certificate: empty url", courseID)
	}
	return out.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, retry RetryConfig) error {
	if c.baseURL == "" {
		return errors.New("backend base url is not configured")
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	token, err := c.bearer()
	if err != nil {
		return err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}

	body, err := doWithRetry(ctx, c.http, build, retry)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) bearer() (string, error) {
	if c.token == nil {
		return "", nil
	}
	token, err := c.token()
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}
