package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/lessontrack/lessontrack/log"
	"golang.org/x/time/rate"
)

// MediaOptions configures a MediaAdapter.
type MediaOptions struct {
	// PrimaryURL is tried first, usually the proxied stream.
	PrimaryURL string
	// FallbackURL is loaded once if the primary fails. Empty disables the retry.
	FallbackURL string
	// ProgressEvery bounds how often Progress is forwarded. Defaults to 1s.
	ProgressEvery time.Duration
	// SyntheticEndRatio emits Ended once the position reaches this share of the
	// duration, for sources that stall just short of a real end event. Defaults to 0.9.
	SyntheticEndRatio float64
	Now               func() time.Time
}

// MediaAdapter wraps a MediaElement into the normalized event stream.
type MediaAdapter struct {
	element MediaElement
	opts    MediaOptions
	limiter *rate.Limiter

	emitMu       sync.Mutex
	mu           sync.Mutex
	ctx          context.Context
	emit         Emitter
	closed       bool
	ended        bool
	failed       bool
	fallbackUsed bool
	duration     float64
	unsubscribe  func()
}

// NewMediaAdapter creates an adapter around element.
func NewMediaAdapter(element MediaElement, opts MediaOptions) *MediaAdapter {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = time.Second
	}
	if opts.SyntheticEndRatio <= 0 || opts.SyntheticEndRatio > 1 {
		opts.SyntheticEndRatio = 0.9
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MediaAdapter{
		element: element,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.ProgressEvery), 1),
	}
}

func (a *MediaAdapter) Kind() SourceKind { return DirectMedia }

// Start subscribes to the element and loads the primary URL. Load failures are
// reported through the event stream, going through the fallback strategy.
func (a *MediaAdapter) Start(ctx context.Context, emit Emitter) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.emit != nil {
		a.mu.Unlock()
		return errors.New("player: media adapter already started")
	}
	a.ctx = ctx
	a.emit = emit
	a.unsubscribe = a.element.Subscribe(a.onNative)
	a.mu.Unlock()

	log.Infof("media adapter loading %s", a.opts.PrimaryURL)
	if err := a.element.Load(ctx, a.opts.PrimaryURL); err != nil {
		a.fail(err.Error())
	}
	return nil
}

// Close deregisters from the element and closes it.
func (a *MediaAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	unsubscribe := a.unsubscribe
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	a.emitMu.Lock()
	a.emitMu.Unlock()

	return a.element.Close()
}

func (a *MediaAdapter) onNative(ev NativeEvent) {
	if ev.Type == NativeError {
		a.fail(ev.Err)
		return
	}

	now := a.opts.Now()

	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if a.closed || a.emit == nil {
		a.mu.Unlock()
		return
	}

	var events []Event
	switch ev.Type {
	case NativeLoadedMetadata:
		events = a.applyDuration(ev.Duration, now, events)
	case NativePlay:
		events = append(events, Event{Kind: Started, At: now})
	case NativePause:
		events = append(events, Event{Kind: Paused, At: now})
	case NativeEnded:
		events = a.applyEnded(now, events)
	case NativeTimeUpdate:
		events = a.applyDuration(ev.Duration, now, events)
		pos := ev.CurrentTime
		if pos >= 0 && !math.IsNaN(pos) && a.limiter.AllowN(now, 1) {
			events = append(events, Event{Kind: Progress, At: now, Position: pos, Authoritative: true})
		}
		if a.duration > 0 && pos >= a.duration*a.opts.SyntheticEndRatio {
			events = a.applyEnded(now, events)
		}
	}
	emit := a.emit
	a.mu.Unlock()

	for _, e := range events {
		emit(e)
	}
}

func (a *MediaAdapter) applyDuration(d float64, now time.Time, events []Event) []Event {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) || math.Abs(d-a.duration) < durationEpsilon {
		return events
	}
	a.duration = d
	return append(events, Event{Kind: DurationKnown, At: now, Duration: d})
}

func (a *MediaAdapter) applyEnded(now time.Time, events []Event) []Event {
	if a.ended {
		return events
	}
	a.ended = true
	return append(events, Event{Kind: Ended, At: now})
}

// fail applies the fallback strategy: the first failure switches to the fallback
// URL once, anything after that is terminal.
func (a *MediaAdapter) fail(reason string) {
	now := a.opts.Now()

	a.mu.Lock()
	if a.closed || a.failed || a.emit == nil {
		a.mu.Unlock()
		return
	}
	retry := !a.fallbackUsed && a.opts.FallbackURL != ""
	if retry {
		a.fallbackUsed = true
	} else {
		a.failed = true
	}
	ctx, emit := a.ctx, a.emit
	a.mu.Unlock()

	a.emitMu.Lock()
	emit(Event{Kind: Failed, At: now, Reason: reason, Fatal: !retry})
	a.emitMu.Unlock()

	if !retry {
		log.Errorf("media playback failed: %s", reason)
		return
	}

	log.Warnf("primary source failed (%s), retrying with fallback %s", reason, a.opts.FallbackURL)
	if err := a.element.Load(ctx, a.opts.FallbackURL); err != nil && !errors.Is(err, ErrClosed) {
		a.fail(err.Error())
	}
}
