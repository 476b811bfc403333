package player

import "context"

// NativeEventType names a lifecycle event of a directly controlled media element.
type NativeEventType string

const (
	NativeLoadedMetadata NativeEventType = "loadedmetadata"
	NativePlay           NativeEventType = "play"
	NativePause          NativeEventType = "pause"
	NativeTimeUpdate     NativeEventType = "timeupdate"
	NativeEnded          NativeEventType = "ended"
	NativeError          NativeEventType = "error"
)

// NativeEvent is one lifecycle event reported by a MediaElement.
type NativeEvent struct {
	Type        NativeEventType
	CurrentTime float64
	Duration    float64
	Err         string
}

// MediaElement is a playback element under direct control.
type MediaElement interface {
	// Load starts playing url, replacing whatever is loaded.
	Load(ctx context.Context, url string) error

	// Subscribe registers a handler for native events and returns its deregistration.
	Subscribe(handler func(NativeEvent)) (unsubscribe func())

	// Close stops playback and releases the element.
	Close() error
}
