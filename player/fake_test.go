package player

import (
	"context"
	"sync"
	"time"
)

type fakeChannel struct {
	mu       sync.Mutex
	posts    [][]byte
	handlers map[int]func(Message)
	nextID   int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[int]func(Message))}
}

func (c *fakeChannel) Post(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, data)
	return nil
}

func (c *fakeChannel) Subscribe(handler func(Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *fakeChannel) deliver(origin, data string) {
	c.mu.Lock()
	handlers := make([]func(Message), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(Message{Origin: origin, Data: []byte(data)})
	}
}

func (c *fakeChannel) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeChannel) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.posts))
	for i, p := range c.posts {
		out[i] = string(p)
	}
	return out
}

type fakeElement struct {
	mu       sync.Mutex
	loads    []string
	loadErr  map[string]error
	handlers map[int]func(NativeEvent)
	nextID   int
	closed   bool
}

func newFakeElement() *fakeElement {
	return &fakeElement{
		loadErr:  make(map[string]error),
		handlers: make(map[int]func(NativeEvent)),
	}
}

func (e *fakeElement) Load(_ context.Context, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads = append(e.loads, url)
	return e.loadErr[url]
}

func (e *fakeElement) Subscribe(handler func(NativeEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

func (e *fakeElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeElement) fire(ev NativeEvent) {
	e.mu.Lock()
	handlers := make([]func(NativeEvent), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (e *fakeElement) loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
