// Package reconcile keeps local watch progress and the course backend in agreement.
//
// The backend is the record of truth on load and the write target during
// playback. Heartbeats are fire-and-forget, completions are retried with
// exponential backoff and, if still undelivered, parked in a JSON-lines outbox
// that Flush replays later. The last good progress of every course is kept in a
// disk cache so Pull can answer while offline.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/metrics"
	"github.com/lessontrack/lessontrack/where"
	"github.com/metafates/gache"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrCompletionUndelivered means the backend never acknowledged a completion.
// The lesson stays complete locally.
var ErrCompletionUndelivered = errors.New("completion not delivered to backend")

// Options configures a Reconciler.
type Options struct {
	Retry RetryConfig

	// OutboxPath enables the undelivered completion log when set.
	OutboxPath string

	// SnapshotPath enables the offline progress cache when set.
	SnapshotPath     string
	SnapshotLifetime time.Duration
}

// Reconciler pulls and pushes lesson progress.
type Reconciler struct {
	client    *Client
	opts      Options
	outbox    *outbox
	snapshots *gache.Cache[map[string][]Record]

	mu        sync.Mutex
	completed map[string]bool
}

// New creates a reconciler over client.
func New(client *Client, opts Options) *Reconciler {
	r := &Reconciler{
		client:    client,
		opts:      opts,
		completed: make(map[string]bool),
	}

	if opts.OutboxPath != "" {
		r.outbox = &outbox{path: opts.OutboxPath}
	}

	if opts.SnapshotPath != "" {
		r.snapshots = gache.New[map[string][]Record](&gache.Options{
			Path:       opts.SnapshotPath,
			Lifetime:   opts.SnapshotLifetime,
			FileSystem: &filesystem.GacheFs{},
		})
	}

	return r
}

// FromConfig creates a reconciler using the configured backend and local stores.
func FromConfig() *Reconciler {
	opts := Options{
		Retry:            RetryConfigFromConfig(),
		SnapshotPath:     where.Progress(),
		SnapshotLifetime: config.Duration(key.ReconcileCacheHours, time.Hour),
	}
	if viper.GetBool(key.ReconcileOutbox) {
		opts.OutboxPath = where.Outbox()
	}
	return New(ClientFromConfig(), opts)
}

// Client returns the underlying backend client.
func (r *Reconciler) Client() *Client {
	return r.client
}

// Pull loads the course progress. Lessons completed by this process are never
// reported as incomplete, even if the backend has not caught up. When the
// backend cannot be reached the last good snapshot is returned instead.
func (r *Reconciler) Pull(ctx context.Context, courseID string) ([]Record, error) {
	records, err := r.client.CourseProgress(ctx, courseID)
	metrics.BackendCalls.WithLabelValues("pull", metrics.Outcome(err)).Inc()

	if err != nil {
		if isPermanent(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		cached, ok := r.snapshot(courseID)
		if !ok {
			return nil, err
		}

		log.Warnf("backend unreachable (%v), using cached progress for course %s", err, courseID)
		return r.merge(cached), nil
	}

	records = r.merge(records)
	r.saveSnapshot(courseID, records)
	return records, nil
}

func (r *Reconciler) merge(records []Record) []Record {
	local := r.locallyCompleted()

	return lo.Map(records, func(rec Record, _ int) Record {
		if local[rec.LessonID] {
			rec.Completed = true
		}
		return rec
	})
}

// locallyCompleted lists lessons completed in this process or still waiting in the outbox.
func (r *Reconciler) locallyCompleted() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	local := make(map[string]bool, len(r.completed))
	for id := range r.completed {
		local[id] = true
	}

	if r.outbox != nil {
		pending, err := r.outbox.load()
		if err != nil {
			log.Warnf("reading outbox: %v", err)
		}
		for _, p := range pending {
			local[p.LessonID] = true
		}
	}

	return local
}

func (r *Reconciler) snapshot(courseID string) ([]Record, bool) {
	if r.snapshots == nil {
		return nil, false
	}

	cached, expired, err := r.snapshots.Get()
	if err != nil || expired || cached == nil {
		return nil, false
	}

	records, ok := cached[courseID]
	return records, ok
}

func (r *Reconciler) saveSnapshot(courseID string, records []Record) {
	if r.snapshots == nil {
		return
	}

	cached, expired, err := r.snapshots.Get()
	if err != nil || expired || cached == nil {
		cached = make(map[string][]Record)
	}

	cached[courseID] = records
	if err := r.snapshots.Set(cached); err != nil {
		log.Warnf("caching progress of course %s: %v", courseID, err)
	}
}

// PushHeartbeat reports the watch time once. Failures are logged and returned,
// the next heartbeat carries a newer value anyway.
func (r *Reconciler) PushHeartbeat(ctx context.Context, lessonID string, seconds float64) error {
	err := r.client.UpdateWatchTime(ctx, lessonID, seconds, Once)
	metrics.BackendCalls.WithLabelValues("heartbeat", metrics.Outcome(err)).Inc()

	if err != nil {
		log.Warnf("heartbeat dropped: %v", err)
		return err
	}

	log.Debugf("heartbeat for lesson %s: %.1fs", lessonID, seconds)
	return nil
}

// PushCompletion marks the lesson complete on the backend, retrying with
// backoff. If every attempt fails it returns ErrCompletionUndelivered and, when
// the outbox is enabled, parks the call for Flush.
func (r *Reconciler) PushCompletion(ctx context.Context, lessonID string, seconds float64) error {
	r.mu.Lock()
	r.completed[lessonID] = true
	r.mu.Unlock()

	err := r.client.CompleteLesson(ctx, lessonID, seconds, r.opts.Retry)
	metrics.BackendCalls.WithLabelValues("complete", metrics.Outcome(err)).Inc()

	if err == nil {
		log.Infof("lesson %s completed on backend", lessonID)
		return nil
	}

	log.Errorf("completion of lesson %s undelivered: %v", lessonID, err)

	if r.outbox != nil {
		r.mu.Lock()
		qerr := r.outbox.append(lessonID, seconds)
		r.mu.Unlock()

		if qerr != nil {
			log.Errorf("queueing completion of lesson %s: %v", lessonID, qerr)
		}
	}

	return fmt.Errorf("%w: %w", ErrCompletionUndelivered, err)
}

// Flush replays queued completions. Delivered and permanently rejected entries
// are dropped from the outbox, the rest stay for the next attempt.
func (r *Reconciler) Flush(ctx context.Context) (delivered int, err error) {
	if r.outbox == nil {
		return 0, nil
	}

	r.mu.Lock()
	pending, err := r.outbox.load()
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	log.Infof("replaying %d queued completion(s)", len(pending))

	var remaining []Pending
	for i, p := range pending {
		if ctx.Err() != nil {
			remaining = append(remaining, pending[i:]...)
			break
		}

		err := r.client.CompleteLesson(ctx, p.LessonID, p.WatchedDuration, Once)
		metrics.BackendCalls.WithLabelValues("flush", metrics.Outcome(err)).Inc()

		switch {
		case err == nil:
			delivered++
		case isPermanent(err):
			log.Errorf("dropping queued completion of lesson %s: %v", p.LessonID, err)
		default:
			remaining = append(remaining, p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// entries appended while replaying are kept as they are
	current, err := r.outbox.load()
	if err != nil {
		return delivered, err
	}
	if len(current) > len(pending) {
		remaining = append(remaining, current[len(pending):]...)
	}

	if err := r.outbox.replace(remaining); err != nil {
		return delivered, err
	}

	if len(remaining) > 0 {
		return delivered, fmt.Errorf("%d queued completion(s) still undelivered", len(remaining))
	}
	return delivered, nil
}

// Pending lists completions waiting in the outbox.
func (r *Reconciler) Pending() ([]Pending, error) {
	if r.outbox == nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outbox.load()
}
