package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lessontrack/lessontrack/config"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/metrics"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/samber/mo"
)

var (
	ErrEngineClosed = errors.New("tracker: engine closed")
	ErrNoSession    = errors.New("tracker: no open session")
)

// finalHeartbeatTimeout bounds the heartbeat sent when a session is torn down.
const finalHeartbeatTimeout = 5 * time.Second

// Reconciler is where the engine persists progress.
type Reconciler interface {
	PushHeartbeat(ctx context.Context, lessonID string, seconds float64) error
	PushCompletion(ctx context.Context, lessonID string, seconds float64) error
}

// NotificationKind tells the UI layer what happened.
type NotificationKind int

const (
	WatchTimeChanged NotificationKind = iota + 1
	LessonCompleted
	CompletionUndelivered
	PlaybackRecovering
	PlaybackFailed
	SessionResynced
)

func (k NotificationKind) String() string {
	switch k {
	case WatchTimeChanged:
		return "watch-time"
	case LessonCompleted:
		return "completed"
	case CompletionUndelivered:
		return "completion-undelivered"
	case PlaybackRecovering:
		return "recovering"
	case PlaybackFailed:
		return "failed"
	case SessionResynced:
		return "resynced"
	default:
		return fmt.Sprintf("notification(%d)", int(k))
	}
}

// Notification is delivered to the UI layer from the session loop.
type Notification struct {
	Kind    NotificationKind
	Session Session
	Reason  string
	Err     error
}

// Options configures an Engine.
type Options struct {
	HeartbeatInterval time.Duration
	CheckInterval     time.Duration
	Thresholds        Thresholds
	Now               func() time.Time
}

// OptionsFromConfig reads the tracking.* and completion.* keys.
func OptionsFromConfig() Options {
	return Options{
		HeartbeatInterval: config.Duration(key.TrackingHeartbeatInterval, time.Second),
		CheckInterval:     config.Duration(key.TrackingCheckInterval, time.Second),
		Thresholds:        ThresholdsFromConfig(),
	}
}

// Engine owns the current lesson session.
type Engine struct {
	reconciler Reconciler
	opts       Options
	notify     func(Notification)

	// ctx outlives sessions so completion pushes can finish after teardown
	ctx    context.Context
	cancel context.CancelFunc
	pushes sync.WaitGroup

	mu      sync.Mutex
	current *run
	closed  bool
}

// NewEngine creates an engine. notify may be nil. It runs on the session loop
// and must not call back into the engine.
func NewEngine(reconciler Reconciler, opts Options, notify func(Notification)) *Engine {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notify == nil {
		notify = func(Notification) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		reconciler: reconciler,
		opts:       opts,
		notify:     notify,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Open starts tracking lesson through adapter, disposing any previous session
// first. remote is the backend record loaded for the lesson, if any: a remote
// completion is adopted immediately and its watched duration is the starting point.
func (e *Engine) Open(ctx context.Context, lesson Lesson, adapter player.Adapter, remote mo.Option[reconcile.Record]) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Session{}, ErrEngineClosed
	}

	e.disposeLocked()

	r := e.newRun(lesson, adapter)
	if rec, ok := remote.Get(); ok {
		r.applyRemote(rec)
	}
	opened := r.session

	runCtx, cancel := context.WithCancel(ctx)
	r.ctx, r.cancel = runCtx, cancel

	go r.loop()

	if err := adapter.Start(runCtx, r.deliver); err != nil {
		r.stop()
		return Session{}, fmt.Errorf("start %s source: %w", adapter.Kind(), err)
	}

	e.current = r
	metrics.SessionsOpened.Inc()
	log.With(log.Fields{
		"session": opened.ID,
		"lesson":  opened.LessonID,
		"source":  opened.SourceKind,
	}).Info("session opened")

	return opened, nil
}

// Resync applies a fresh backend record to the open session.
func (e *Engine) Resync(rec reconcile.Record) error {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()

	if r == nil {
		return ErrNoSession
	}

	select {
	case r.resync <- rec:
		return nil
	case <-r.done:
		return ErrNoSession
	}
}

// Snapshot returns a copy of the open session.
func (e *Engine) Snapshot() (Session, bool) {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()

	if r == nil {
		return Session{}, false
	}

	reply := make(chan Session, 1)
	select {
	case r.snapshots <- reply:
		return <-reply, true
	case <-r.done:
		return r.final, true
	}
}

// Dispose ends the open session, if any.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposeLocked()
}

// Close disposes the session and waits for in-flight backend calls.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.disposeLocked()
	e.mu.Unlock()

	e.pushes.Wait()
	e.cancel()
	return nil
}

func (e *Engine) disposeLocked() {
	if e.current == nil {
		return
	}
	e.current.stop()
	e.current = nil
}

func (e *Engine) newRun(lesson Lesson, adapter player.Adapter) *run {
	return &run{
		engine:  e,
		adapter: adapter,
		session: Session{
			ID:               uuid.NewString(),
			CourseID:         lesson.CourseID,
			LessonID:         lesson.ID,
			Title:            lesson.Title,
			SourceKind:       adapter.Kind(),
			NominalDuration:  lesson.Duration,
			ObservedDuration: mo.None[float64](),
			LastReconciledAt: mo.None[time.Time](),
		},
		acc:       NewAccumulator(0),
		eval:      NewEvaluator(e.opts.Thresholds, float64(lesson.Duration)),
		events:    make(chan player.Event, 64),
		results:   make(chan result, 8),
		resync:    make(chan reconcile.Record),
		snapshots: make(chan chan Session),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

type operation string

const (
	opHeartbeat  operation = "heartbeat"
	opCompletion operation = "completion"
)

type result struct {
	op  operation
	at  time.Time
	err error
}

// run is one session and its loop. Everything but the channels belongs to the loop goroutine.
type run struct {
	engine  *Engine
	adapter player.Adapter
	ctx     context.Context
	cancel  context.CancelFunc

	session       Session
	acc           *Accumulator
	eval          *Evaluator
	lastHeartbeat float64
	lastNotified  int

	events    chan player.Event
	results   chan result
	resync    chan reconcile.Record
	snapshots chan chan Session
	quit      chan struct{}
	done      chan struct{}

	// final is written before done is closed
	final Session
}

func (r *run) now() time.Time {
	return r.engine.opts.Now()
}

func (r *run) deliver(ev player.Event) {
	select {
	case r.events <- ev:
	case <-r.quit:
	}
}

// stop tears the session down: the loop exits first, then the adapter and
// context go. Events emitted meanwhile are dropped.
func (r *run) stop() {
	close(r.quit)
	<-r.done
	if err := r.adapter.Close(); err != nil {
		log.Warnf("closing %s source: %v", r.adapter.Kind(), err)
	}
	r.cancel()
	log.With(log.Fields{
		"session": r.final.ID,
		"lesson":  r.final.LessonID,
		"watched": r.final.WatchTime,
	}).Info("session closed")
}

func (r *run) loop() {
	defer close(r.done)

	heartbeat := time.NewTicker(r.engine.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	check := time.NewTicker(r.engine.opts.CheckInterval)
	defer check.Stop()

	for {
		select {
		case <-r.quit:
			r.teardown()
			return
		case ev := <-r.events:
			r.handle(ev)
		case <-heartbeat.C:
			r.heartbeat()
		case <-check.C:
			r.check()
		case res := <-r.results:
			r.handleResult(res)
		case rec := <-r.resync:
			if rec.LessonID == r.session.LessonID {
				r.applyRemote(rec)
				r.notify(Notification{Kind: SessionResynced})
			}
		case reply := <-r.snapshots:
			reply <- r.session
		}
	}
}

func (r *run) handle(ev player.Event) {
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	log.Debugf("session %s event %s", r.session.ID, ev)

	switch ev.Kind {
	case player.DurationKnown:
		r.session.ObservedDuration = mo.Some(ev.Duration)
		r.eval.SetDuration(ev.Duration)
	case player.Failed:
		metrics.PlaybackErrors.WithLabelValues(string(r.session.SourceKind), strconv.FormatBool(ev.Fatal)).Inc()
	}

	r.setWatch(r.acc.OnEvent(ev))

	switch ev.Kind {
	case player.Ended:
		if r.eval.OnEnded() {
			r.complete("ended")
		}
	case player.Failed:
		if ev.Fatal {
			log.Errorf("session %s: playback failed: %s", r.session.ID, ev.Reason)
			r.notify(Notification{Kind: PlaybackFailed, Reason: ev.Reason})
		} else {
			log.Warnf("session %s: playback error, recovering: %s", r.session.ID, ev.Reason)
			r.notify(Notification{Kind: PlaybackRecovering, Reason: ev.Reason})
		}
	}
}

func (r *run) check() {
	r.setWatch(r.acc.Current(r.now()))
	if r.eval.Check(r.session.WatchTime) {
		r.complete("threshold")
	}
}

func (r *run) setWatch(watch float64) {
	if watch <= r.session.WatchTime {
		return
	}
	r.session.WatchTime = watch
	metrics.WatchTime.Set(watch)

	if whole := int(watch); whole != r.lastNotified {
		r.lastNotified = whole
		r.notify(Notification{Kind: WatchTimeChanged})
	}
}

func (r *run) applyRemote(rec reconcile.Record) {
	r.eval.SetRemote(rec.WatchedDuration)
	r.session.WatchTime = r.acc.Raise(rec.WatchedDuration, r.now())

	if rec.Completed && !r.session.Completed {
		r.eval.Adopt()
		r.session.Completed = true
		log.Infof("lesson %s already completed on backend", r.session.LessonID)
	}
}

func (r *run) complete(trigger string) {
	r.session.Completed = true
	metrics.LessonsCompleted.WithLabelValues(trigger).Inc()
	log.Infof("lesson %s completed (%s) at %.1fs", r.session.LessonID, trigger, r.session.WatchTime)

	r.notify(Notification{Kind: LessonCompleted})

	lessonID, watch := r.session.LessonID, r.session.WatchTime
	e := r.engine
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		err := e.reconciler.PushCompletion(e.ctx, lessonID, watch)
		r.report(result{op: opCompletion, at: e.opts.Now(), err: err})
	}()
}

func (r *run) heartbeat() {
	watch := r.acc.Current(r.now())
	r.setWatch(watch)

	if r.session.WatchTime <= 0 || r.session.WatchTime == r.lastHeartbeat {
		return
	}
	r.lastHeartbeat = r.session.WatchTime

	lessonID, seconds, ctx := r.session.LessonID, r.session.WatchTime, r.ctx
	e := r.engine
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		err := e.reconciler.PushHeartbeat(ctx, lessonID, seconds)
		r.report(result{op: opHeartbeat, at: e.opts.Now(), err: err})
	}()
}

// report hands a backend result to the loop, or logs it if the session is gone.
func (r *run) report(res result) {
	select {
	case r.results <- res:
	case <-r.done:
		if res.err != nil {
			log.Warnf("%s for closed session %s failed: %v", res.op, r.final.ID, res.err)
		} else {
			log.Debugf("%s for closed session %s delivered", res.op, r.final.ID)
		}
	}
}

func (r *run) handleResult(res result) {
	if res.err == nil {
		r.session.LastReconciledAt = mo.Some(res.at)
		return
	}

	if res.op == opCompletion {
		r.notify(Notification{Kind: CompletionUndelivered, Err: res.err})
	}
}

// teardown runs on the loop before it exits: watch time is frozen and sent once more.
func (r *run) teardown() {
	r.setWatch(r.acc.Current(r.now()))
	r.final = r.session

	if r.session.WatchTime <= 0 {
		return
	}

	lessonID, seconds := r.session.LessonID, r.session.WatchTime
	e := r.engine
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), finalHeartbeatTimeout)
		defer cancel()
		if err := e.reconciler.PushHeartbeat(ctx, lessonID, seconds); err != nil {
			log.Warnf("final heartbeat for lesson %s failed: %v", lessonID, err)
		}
	}()
}

func (r *run) notify(n Notification) {
	n.Session = r.session
	r.engine.notify(n)
}
