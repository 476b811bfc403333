// Package player normalizes heterogeneous video sources into one playback event stream.
//
// Two adapters are provided. WidgetAdapter observes a third-party embedded widget
// that can only be reached through an asynchronous message channel, polling it
// because the widget may never report state on its own. MediaAdapter wraps a
// directly controlled media element with native lifecycle events, such as the
// mpv-backed MPV element.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when an adapter is used after Close.
var ErrClosed = errors.New("player: adapter closed")

// SourceKind identifies the structural kind of a video source.
type SourceKind string

const (
	EmbeddedWidget SourceKind = "embedded-widget"
	DirectMedia    SourceKind = "direct-media"
)

// ParseSourceKind maps a user supplied name onto a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(s) {
	case EmbeddedWidget, "widget":
		return EmbeddedWidget, nil
	case DirectMedia, "media":
		return DirectMedia, nil
	}
	return "", fmt.Errorf("unknown video source kind %q", s)
}

// Kind enumerates the normalized playback events.
type Kind int

const (
	Started Kind = iota + 1
	Progress
	Paused
	Ended
	Failed
	DurationKnown
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Progress:
		return "progress"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Failed:
		return "error"
	case DurationKnown:
		return "durationKnown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single normalized observation. Which fields are meaningful depends on Kind.
type Event struct {
	Kind Kind
	At   time.Time

	// Position is the reported playback position for Progress.
	Position float64
	// Authoritative marks a Position the source guarantees, as opposed to a best-effort report.
	Authoritative bool

	// Duration is the source duration for DurationKnown.
	Duration float64

	// Reason and Fatal describe Failed. A non-fatal failure means the adapter is recovering.
	Reason string
	Fatal  bool
}

func (e Event) String() string {
	switch e.Kind {
	case Progress:
		return fmt.Sprintf("progress(%.1f)", e.Position)
	case DurationKnown:
		return fmt.Sprintf("durationKnown(%.1f)", e.Duration)
	case Failed:
		return fmt.Sprintf("error(%s, fatal=%t)", e.Reason, e.Fatal)
	default:
		return e.Kind.String()
	}
}

// Emitter receives normalized events. Events from one adapter arrive in order.
type Emitter func(Event)

// Adapter is a video source normalized into the Event stream.
type Adapter interface {
	// Kind reports which structural source the adapter wraps.
	Kind() SourceKind

	// Start begins observing the source and delivering events to emit.
	// Cancelling ctx stops background work, but Close must still be called.
	Start(ctx context.Context, emit Emitter) error

	// Close tears down every listener and timer. No events are emitted once it returns.
	Close() error
}
