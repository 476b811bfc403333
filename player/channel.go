package player

import "context"

// Message is one payload received from a cross-origin message channel.
type Message struct {
	Origin string
	Data   []byte
}

// MessageChannel is the only way to reach an embedded widget: write-only command
// dispatch plus a read-only subscription. Messages may be unordered, duplicated,
// or come from origins other than the widget's.
type MessageChannel interface {
	Post(ctx context.Context, data []byte) error
	Subscribe(handler func(Message)) (unsubscribe func())
}
