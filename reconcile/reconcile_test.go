package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/filesystem"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

type backend struct {
	mu       sync.Mutex
	server   *httptest.Server
	requests []capturedRequest
	hits     atomic.Int32
	handler  func(w http.ResponseWriter, r *http.Request, hit int32)
}

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newBackend(handler func(w http.ResponseWriter, r *http.Request, hit int32)) *backend {
	b := &backend{handler: handler}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit := b.hits.Add(1)

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		b.mu.Lock()
		b.requests = append(b.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		b.mu.Unlock()

		b.handler(w, r, hit)
	}))
	return b
}

func (b *backend) last() capturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

var fastRetry = RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func staticToken() (string, error) { return "secret", nil }

func newReconciler(url string) *Reconciler {
	return New(NewClient(url, http.DefaultClient, staticToken), Options{
		Retry:            fastRetry,
		OutboxPath:       "/state/outbox.jsonl",
		SnapshotPath:     "/cache/progress.json",
		SnapshotLifetime: time.Hour,
	})
}

func progressHandler(completed bool) func(w http.ResponseWriter, r *http.Request, hit int32) {
	return func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lessons": []map[string]any{
				{"lessonId": "l1", "watchedDuration": 120, "completed": completed},
				{"lessonId": "l2", "watchedDuration": 0, "completed": false},
			},
		})
	}
}

func TestClient(t *testing.T) {
	Convey("Given a backend client", t, func() {
		Convey("CourseProgress should decode lessons and send the token", func() {
			b := newBackend(progressHandler(true))
			defer b.server.Close()

			records, err := NewClient(b.server.URL+"/", nil, staticToken).CourseProgress(context.Background(), "go 101")
			So(err, ShouldBeNil)
			So(records, ShouldResemble, []Record{
				{LessonID: "l1", WatchedDuration: 120, Completed: true},
				{LessonID: "l2"},
			})

			req := b.last()
			So(req.Method, ShouldEqual, http.MethodGet)
			So(req.Path, ShouldEqual, "/courses/go%20101/progress")
			So(req.Auth, ShouldEqual, "Bearer secret")
		})

		Convey("IssueCertificate should return the url", func() {
			b := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				_, _ = w.Write([]byte(`{"url":"https://certs.example/c1"}`))
			})
			defer b.server.Close()

			url, err := NewClient(b.server.URL, nil, nil).IssueCertificate(context.Background(), "c1")
			So(err, ShouldBeNil)
			So(url, ShouldEqual, "https://certs.example/c1")
			So(b.last().Auth, ShouldBeEmpty)
		})

		Convey("A missing base url should be an error", func() {
			_, err := NewClient("", nil, nil).CourseProgress(context.Background(), "c1")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestReconciler(t *testing.T) {
	Convey("Given a reconciler on an in-memory filesystem", t, func() {
		filesystem.SetMemMapFs()
		ctx := context.Background()

		Convey("PushHeartbeat should PATCH the watch time once", func() {
			b := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusNoContent)
			})
			defer b.server.Close()

			So(newReconciler(b.server.URL).PushHeartbeat(ctx, "l1", 42.5), ShouldBeNil)
			req := b.last()
			So(req.Method, ShouldEqual, http.MethodPatch)
			So(req.Path, ShouldEqual, "/lessons/l1/watch-time")
			So(req.Body["seconds"], ShouldEqual, 42.5)
		})

		Convey("A failing heartbeat should not be retried", func() {
			b := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})
			defer b.server.Close()

			So(newReconciler(b.server.URL).PushHeartbeat(ctx, "l1", 10), ShouldNotBeNil)
			So(b.hits.Load(), ShouldEqual, 1)
		})

		Convey("PushCompletion should retry transient failures", func() {
			b := newBackend(func(w http.ResponseWriter, _ *http.Request, hit int32) {
				if hit < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte(`{"completed":true}`))
			})
			defer b.server.Close()

			So(newReconciler(b.server.URL).PushCompletion(ctx, "l1", 300), ShouldBeNil)
			So(b.hits.Load(), ShouldEqual, 3)
			So(b.last().Body["watchedDuration"], ShouldEqual, 300.0)
		})

		Convey("When completion can never be delivered", func() {
			b := newBackend(func(w http.ResponseWriter, r *http.Request, _ int32) {
				if r.Method == http.MethodGet {
					progressHandler(false)(w, r, 0)
					return
				}
				w.WriteHeader(http.StatusInternalServerError)
			})
			defer b.server.Close()

			r := newReconciler(b.server.URL)
			err := r.PushCompletion(ctx, "l1", 300)

			Convey("It should report the undelivered completion", func() {
				So(errors.Is(err, ErrCompletionUndelivered), ShouldBeTrue)
				var herr *HTTPError
				So(errors.As(err, &herr), ShouldBeTrue)
				So(herr.StatusCode, ShouldEqual, http.StatusInternalServerError)
				So(b.hits.Load(), ShouldEqual, 3)
			})

			Convey("It should queue the completion", func() {
				pending, err := r.Pending()
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 1)
				So(pending[0].LessonID, ShouldEqual, "l1")
				So(pending[0].WatchedDuration, ShouldEqual, 300.0)
			})

			Convey("Pull should never un-complete the lesson", func() {
				records, err := r.Pull(ctx, "c1")
				So(err, ShouldBeNil)
				So(records[0].Completed, ShouldBeTrue)
				So(records[1].Completed, ShouldBeFalse)
			})

			Convey("A later process should still see it through the outbox", func() {
				records, err := newReconciler(b.server.URL).Pull(ctx, "c1")
				So(err, ShouldBeNil)
				So(records[0].Completed, ShouldBeTrue)
			})

			Convey("Flush should keep it while the backend is down", func() {
				delivered, err := r.Flush(ctx)
				So(err, ShouldNotBeNil)
				So(delivered, ShouldEqual, 0)
				pending, _ := r.Pending()
				So(pending, ShouldHaveLength, 1)
			})
		})

		Convey("A rejected completion should not be retried", func() {
			b := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusNotFound)
			})
			defer b.server.Close()

			err := newReconciler(b.server.URL).PushCompletion(ctx, "missing", 1)
			So(errors.Is(err, ErrCompletionUndelivered), ShouldBeTrue)
			So(b.hits.Load(), ShouldEqual, 1)
		})

		Convey("Flush should deliver queued completions and empty the outbox", func() {
			down := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusBadGateway)
			})
			_ = newReconciler(down.server.URL).PushCompletion(ctx, "l1", 100)
			_ = newReconciler(down.server.URL).PushCompletion(ctx, "l2", 200)
			down.server.Close()

			up := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				_, _ = w.Write([]byte(`{"completed":true}`))
			})
			defer up.server.Close()

			r := newReconciler(up.server.URL)
			delivered, err := r.Flush(ctx)
			So(err, ShouldBeNil)
			So(delivered, ShouldEqual, 2)

			pending, err := r.Pending()
			So(err, ShouldBeNil)
			So(pending, ShouldBeEmpty)
		})

		Convey("Flush should drop completions the backend rejects", func() {
			down := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusBadGateway)
			})
			_ = newReconciler(down.server.URL).PushCompletion(ctx, "gone", 100)
			down.server.Close()

			gone := newBackend(func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(http.StatusGone)
			})
			defer gone.server.Close()

			r := newReconciler(gone.server.URL)
			delivered, err := r.Flush(ctx)
			So(err, ShouldBeNil)
			So(delivered, ShouldEqual, 0)
			pending, _ := r.Pending()
			So(pending, ShouldBeEmpty)
		})

		Convey("Pull should fall back to the cached snapshot when offline", func() {
			b := newBackend(progressHandler(true))
			r := newReconciler(b.server.URL)

			fresh, err := r.Pull(ctx, "c1")
			So(err, ShouldBeNil)
			b.server.Close()

			cached, err := r.Pull(ctx, "c1")
			So(err, ShouldBeNil)
			So(cached, ShouldResemble, fresh)

			_, err = r.Pull(ctx, "unknown-course")
			So(err, ShouldNotBeNil)
		})

		Convey("Pull should not hide a rejection behind the snapshot", func() {
			var status atomic.Int32
			status.Store(http.StatusOK)
			b := newBackend(func(w http.ResponseWriter, r *http.Request, hit int32) {
				if code := int(status.Load()); code != http.StatusOK {
					w.WriteHeader(code)
					return
				}
				progressHandler(false)(w, r, hit)
			})
			defer b.server.Close()

			r := newReconciler(b.server.URL)
			_, err := r.Pull(ctx, "c1")
			So(err, ShouldBeNil)

			status.Store(http.StatusUnauthorized)
			_, err = r.Pull(ctx, "c1")
			var herr *HTTPError
			So(errors.As(err, &herr), ShouldBeTrue)
			So(herr.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestBackoff(t *testing.T) {
	Convey("backoff", t, func() {
		cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

		Convey("Should grow exponentially with bounded jitter", func() {
			for n, want := range map[int]time.Duration{1: 100, 2: 200, 3: 400, 4: 800} {
				d := backoff(n, cfg)
				So(d, ShouldBeGreaterThanOrEqualTo, want*time.Millisecond)
				So(d, ShouldBeLessThan, want*time.Millisecond+50*time.Millisecond)
			}
		})

		Convey("Should be capped", func() {
			So(backoff(5, cfg), ShouldBeLessThan, time.Second+50*time.Millisecond)
			So(backoff(40, cfg), ShouldBeLessThan, time.Second+50*time.Millisecond)
		})
	})

	Convey("parseRetryAfter", t, func() {
		resp := &http.Response{Header: http.Header{}}
		So(parseRetryAfter(resp), ShouldEqual, 0)

		resp.Header.Set("Retry-After", "3")
		So(parseRetryAfter(resp), ShouldEqual, 3*time.Second)

		resp.Header.Set("Retry-After", "soon")
		So(parseRetryAfter(resp), ShouldEqual, 0)
	})

	Convey("HTTPError.Temporary", t, func() {
		So((&HTTPError{StatusCode: 503}).Temporary(), ShouldBeTrue)
		So((&HTTPError{StatusCode: 429}).Temporary(), ShouldBeTrue)
		So((&HTTPError{StatusCode: 404}).Temporary(), ShouldBeFalse)
	})
}

func TestRetryDefaults(t *testing.T) {
	Convey("Given the registered settings", t, func() {
		filesystem.SetMemMapFs()
		So(config.Setup(), ShouldBeNil)
		Reset(viper.Reset)

		Convey("The configured retry policy is the default one", func() {
			So(RetryConfigFromConfig(), ShouldResemble, DefaultRetryConfig())
		})
	})
}
