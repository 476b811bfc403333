package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lessontrack/lessontrack/log"
)

// Widget player states, as reported in playerState / onStateChange messages.
const (
	stateUnstarted = -1
	stateEnded     = 0
	statePlaying   = 1
	statePaused    = 2
	stateBuffering = 3
	stateCued      = 5
)

// durationEpsilon ignores float noise when a widget repeats its duration.
const durationEpsilon = 0.5

// pollFuncs are the state queries sent on every poll tick.
var pollFuncs = []string{"getPlayerState", "getCurrentTime", "getDuration"}

// widgetCommand is the JSON structure posted to the widget.
type widgetCommand struct {
	Event string `json:"event"`
	Func  string `json:"func,omitempty"`
	Args  []any  `json:"args"`
	ID    string `json:"id,omitempty"`
}

// widgetMessage is the JSON structure received from the widget.
type widgetMessage struct {
	Event string          `json:"event"`
	Info  json.RawMessage `json:"info"`
}

type widgetInfo struct {
	PlayerState *int     `json:"playerState"`
	CurrentTime *float64 `json:"currentTime"`
	Duration    *float64 `json:"duration"`
}

// WidgetOptions configures a WidgetAdapter.
type WidgetOptions struct {
	// Origin is the only message origin accepted.
	Origin string
	// PollInterval is the cadence of state polls. Defaults to 2s.
	PollInterval time.Duration
	// ID tags the listening handshake so the widget can address replies.
	ID  string
	Now func() time.Time
}

// WidgetAdapter derives the event stream from an embedded widget reachable only
// through a MessageChannel.
type WidgetAdapter struct {
	channel MessageChannel
	opts    WidgetOptions

	// emitMu serializes delivery so Close can wait for an in-flight message.
	emitMu      sync.Mutex
	mu          sync.Mutex
	emit        Emitter
	closed      bool
	playing     bool
	ended       bool
	duration    float64
	position    float64
	unsubscribe func()
	stop        chan struct{}
	done        chan struct{}
	pollNow     chan struct{}
}

// NewWidgetAdapter creates an adapter for the widget behind channel.
func NewWidgetAdapter(channel MessageChannel, opts WidgetOptions) *WidgetAdapter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WidgetAdapter{
		channel:  channel,
		opts:     opts,
		position: -1,
	}
}

func (a *WidgetAdapter) Kind() SourceKind { return EmbeddedWidget }

// Start subscribes to the channel and begins polling.
func (a *WidgetAdapter) Start(ctx context.Context, emit Emitter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.emit != nil {
		return errors.New("player: widget adapter already started")
	}

	a.emit = emit
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.pollNow = make(chan struct{}, 1)
	a.unsubscribe = a.channel.Subscribe(a.onMessage)

	go a.poll(ctx)

	log.Infof("widget adapter started (origin %s, polling every %s)", a.opts.Origin, a.opts.PollInterval)
	return nil
}

// Close unsubscribes from the channel and stops the poll loop, waiting for it to exit.
func (a *WidgetAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	unsubscribe, stop, done := a.unsubscribe, a.stop, a.done
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if stop != nil {
		close(stop)
		<-done
	}

	a.emitMu.Lock()
	a.emitMu.Unlock()
	return nil
}

// poll sends the handshake and then state queries on every tick. Push
// notifications from the widget are not guaranteed, so this is what keeps the
// stream alive.
func (a *WidgetAdapter) poll(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	a.post(ctx, widgetCommand{Event: "listening", Args: []any{}, ID: a.opts.ID})
	a.sendPoll(ctx)

	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendPoll(ctx)
		case <-a.pollNow:
			a.sendPoll(ctx)
		}
	}
}

func (a *WidgetAdapter) sendPoll(ctx context.Context) {
	for _, fn := range pollFuncs {
		a.post(ctx, widgetCommand{Event: "command", Func: fn, Args: []any{}})
	}
}

func (a *WidgetAdapter) post(ctx context.Context, cmd widgetCommand) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	if err := a.channel.Post(ctx, payload); err != nil {
		// the widget may not be attached yet; the next tick retries
		log.Debugf("widget command %s not delivered: %v", cmd.Func, err)
	}
}

// onMessage filters and decodes one channel message. It never panics or returns errors:
// noise is dropped.
func (a *WidgetAdapter) onMessage(msg Message) {
	if msg.Origin != a.opts.Origin {
		log.Debugf("dropping widget message from untrusted origin %q", msg.Origin)
		return
	}

	parsed, ok := decodeWidgetMessage(msg.Data)
	if !ok {
		log.Debugf("dropping malformed widget message")
		return
	}

	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if a.closed || a.emit == nil {
		a.mu.Unlock()
		return
	}
	events := a.apply(parsed, a.opts.Now())
	emit := a.emit
	a.mu.Unlock()

	for _, ev := range events {
		emit(ev)
	}
}

// apply folds a message into the adapter state and returns the events it implies.
// Callers hold a.mu.
func (a *WidgetAdapter) apply(msg widgetMessage, now time.Time) []Event {
	var events []Event

	switch msg.Event {
	case "infoDelivery", "initialDelivery":
		var info widgetInfo
		if err := json.Unmarshal(msg.Info, &info); err != nil {
			return nil
		}
		if info.Duration != nil {
			events = a.applyDuration(*info.Duration, now, events)
		}
		if info.PlayerState != nil {
			events = a.applyState(*info.PlayerState, now, events)
		}
		if info.CurrentTime != nil {
			events = a.applyPosition(*info.CurrentTime, now, events)
		}
	case "onStateChange", "getPlayerState":
		var state int
		if err := json.Unmarshal(msg.Info, &state); err != nil {
			return nil
		}
		events = a.applyState(state, now, events)
	case "getCurrentTime":
		var pos float64
		if err := json.Unmarshal(msg.Info, &pos); err != nil {
			return nil
		}
		events = a.applyPosition(pos, now, events)
	case "getDuration":
		var d float64
		if err := json.Unmarshal(msg.Info, &d); err != nil {
			return nil
		}
		events = a.applyDuration(d, now, events)
	case "onReady":
		select {
		case a.pollNow <- struct{}{}:
		default:
		}
	case "onError":
		var code any
		_ = json.Unmarshal(msg.Info, &code)
		a.playing = false
		events = append(events, Event{Kind: Failed, At: now, Reason: fmt.Sprintf("widget error %v", code), Fatal: true})
	}

	return events
}

func (a *WidgetAdapter) applyState(state int, now time.Time, events []Event) []Event {
	switch state {
	case statePlaying:
		if !a.playing {
			a.playing = true
			events = append(events, Event{Kind: Started, At: now})
		}
	case stateEnded:
		a.playing = false
		if !a.ended {
			a.ended = true
			events = append(events, Event{Kind: Ended, At: now})
		}
	case statePaused, stateBuffering, stateUnstarted, stateCued:
		if a.playing {
			a.playing = false
			events = append(events, Event{Kind: Paused, At: now})
		}
	}
	return events
}

func (a *WidgetAdapter) applyDuration(d float64, now time.Time, events []Event) []Event {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return events
	}
	if a.duration > 0 && math.Abs(d-a.duration) < durationEpsilon {
		return events
	}
	a.duration = d
	return append(events, Event{Kind: DurationKnown, At: now, Duration: d})
}

func (a *WidgetAdapter) applyPosition(pos float64, now time.Time, events []Event) []Event {
	if pos < 0 || math.IsNaN(pos) || math.IsInf(pos, 0) || pos == a.position {
		return events
	}
	a.position = pos
	return append(events, Event{Kind: Progress, At: now, Position: pos})
}

// decodeWidgetMessage accepts both object payloads and JSON strings holding an
// object, which is how many widgets serialize postMessage data.
func decodeWidgetMessage(data []byte) (widgetMessage, bool) {
	var msg widgetMessage

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return msg, false
		}
		data = []byte(inner)
	}

	if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
		return msg, false
	}
	return msg, true
}
