package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/lessontrack/lessontrack/player"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAdapter struct {
	mu      sync.Mutex
	kind    player.SourceKind
	emit    player.Emitter
	closed  bool
	failure error
}

func (a *fakeAdapter) Kind() player.SourceKind {
	if a.kind == "" {
		return player.EmbeddedWidget
	}
	return a.kind
}

func (a *fakeAdapter) Start(_ context.Context, emit player.Emitter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failure != nil {
		return a.failure
	}
	a.emit = emit
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *fakeAdapter) send(ev player.Event) {
	a.mu.Lock()
	emit, closed := a.emit, a.closed
	a.mu.Unlock()
	if emit != nil && !closed {
		emit(ev)
	}
}

type push struct {
	LessonID string
	Seconds  float64
}

type fakeReconciler struct {
	mu            sync.Mutex
	heartbeats    []push
	completions   []push
	completionErr error
}

func (f *fakeReconciler) PushHeartbeat(_ context.Context, lessonID string, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, push{lessonID, seconds})
	return nil
}

func (f *fakeReconciler) PushCompletion(_ context.Context, lessonID string, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, push{lessonID, seconds})
	return f.completionErr
}

func (f *fakeReconciler) completed() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.completions...)
}

func (f *fakeReconciler) beats() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.heartbeats...)
}

type inbox struct {
	mu    sync.Mutex
	items []Notification
}

func (i *inbox) notify(n Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, n)
}

func (i *inbox) count(kind NotificationKind) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, item := range i.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

func (i *inbox) lastOf(kind NotificationKind) (Notification, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for j := len(i.items) - 1; j >= 0; j-- {
		if i.items[j].Kind == kind {
			return i.items[j], true
		}
	}
	return Notification{}, false
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// settle gives the loop a moment to process anything already queued.
func settle() {
	time.Sleep(30 * time.Millisecond)
}
