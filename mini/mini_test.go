package mini

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeAdapter struct {
	mu     sync.Mutex
	emit   player.Emitter
	closed bool
}

func (a *fakeAdapter) Kind() player.SourceKind { return player.DirectMedia }

func (a *fakeAdapter) Start(_ context.Context, emit player.Emitter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emit = emit
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) send(ev player.Event) {
	a.mu.Lock()
	emit := a.emit
	a.mu.Unlock()
	emit(ev)
}

type fakeReconciler struct {
	mu        sync.Mutex
	records   []reconcile.Record
	pullErr   error
	completed []string
}

func (f *fakeReconciler) Pull(_ context.Context, _ string) ([]reconcile.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconcile.Record(nil), f.records...), f.pullErr
}

func (f *fakeReconciler) PushHeartbeat(context.Context, string, float64) error { return nil }

func (f *fakeReconciler) PushCompletion(_ context.Context, lessonID string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, lessonID)
	return nil
}

// scripted hands every prompt to the test and waits for its answer.
// Closing answers interrupts the prompt.
type scripted struct {
	asked   chan []string
	answers chan int
}

func newScripted() *scripted {
	return &scripted{asked: make(chan []string), answers: make(chan int)}
}

func (s *scripted) Select(_ string, options []string) (int, error) {
	s.asked <- options
	index, ok := <-s.answers
	if !ok {
		return 0, terminal.InterruptErr
	}
	return index, nil
}

func (s *scripted) next() []string {
	select {
	case options := <-s.asked:
		return options
	case <-time.After(2 * time.Second):
		return nil
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) waitFor(s string) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), s) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func indexOf(options []string, prefix string) int {
	for i, o := range options {
		if strings.HasPrefix(o, prefix) {
			return i
		}
	}
	return -1
}

func TestMini(t *testing.T) {
	Convey("Given a course in mini mode", t, func() {
		backend := &fakeReconciler{records: []reconcile.Record{{LessonID: "intro", WatchedDuration: 30}}}

		var mu sync.Mutex
		adapters := map[string]*fakeAdapter{}
		adapterOf := func(id string) *fakeAdapter {
			mu.Lock()
			defer mu.Unlock()
			return adapters[id]
		}

		options := &Options{
			Course: &course.Course{
				ID:    "go-101",
				Title: "Go 101",
				Lessons: []course.Lesson{
					{ID: "intro", Title: "Introduction", Duration: "2:00", Source: "media", URL: "https://cdn.example.com/intro.mp4"},
					{ID: "types", Title: "Types", Duration: "10:00", Source: "media", URL: "https://cdn.example.com/types.mp4"},
				},
			},
			Reconciler: backend,
			Adapter: func(lesson course.Lesson) (player.Adapter, error) {
				mu.Lock()
				defer mu.Unlock()
				a := &fakeAdapter{}
				adapters[lesson.ID] = a
				return a, nil
			},
			Engine: tracker.Options{HeartbeatInterval: time.Hour, CheckInterval: time.Hour},
			Start:  mo.None[string](),
		}

		prompt := newScripted()
		out := &syncBuffer{}
		m := newMini(options, prompt, out)

		done := make(chan error, 1)
		start := func() {
			go func() { done <- m.run(context.Background()) }()
		}
		wait := func() error {
			select {
			case err := <-done:
				return err
			case <-time.After(2 * time.Second):
				return errors.New("mini did not stop")
			}
		}
		Reset(m.close)

		Convey("When a lesson is picked and played to the end", func() {
			start()

			lessons := prompt.next()
			So(lessons, ShouldHaveLength, 3)
			So(lessons[0], ShouldContainSubstring, "Introduction (2:00) watched 0:30")
			prompt.answers <- 0

			menu := prompt.next()
			So(menu[0], ShouldEqual, choiceNext)

			adapterOf("intro").send(player.Event{Kind: player.Ended})
			So(out.waitFor("up next: Types"), ShouldBeTrue)

			Convey("Then the next lesson opens and the first is saved", func() {
				prompt.answers <- indexOf(menu, choiceNext)

				menu = prompt.next()
				So(indexOf(menu, choiceNext), ShouldEqual, -1)
				So(out.String(), ShouldContainSubstring, "Watching Types")

				backend.mu.Lock()
				So(backend.completed, ShouldContain, "intro")
				backend.mu.Unlock()

				prompt.answers <- indexOf(menu, choiceQuit)
				So(wait(), ShouldBeNil)
				So(m.last.MustGet().LessonID, ShouldEqual, "types")
			})

			Convey("Then going back shows it as completed", func() {
				prompt.answers <- indexOf(menu, choiceBack)

				lessons = prompt.next()
				So(lessons[0], ShouldNotContainSubstring, "watched")
				So(m.records["intro"].Completed, ShouldBeTrue)

				close(prompt.answers)
				So(wait(), ShouldBeNil)
				So(m.state, ShouldEqual, quitState)
			})
		})

		Convey("When the course starts at a lesson and is resynced", func() {
			options.Start = mo.Some("intro")
			start()

			menu := prompt.next()
			So(menu, ShouldContain, choiceResync)

			backend.mu.Lock()
			backend.records = []reconcile.Record{{LessonID: "intro", WatchedDuration: 90}}
			backend.mu.Unlock()

			prompt.answers <- indexOf(menu, choiceResync)
			So(out.waitFor("progress resynced, watched 1:30"), ShouldBeTrue)

			menu = prompt.next()
			prompt.answers <- indexOf(menu, choiceQuit)
			So(wait(), ShouldBeNil)
		})

		Convey("When the backend is offline", func() {
			backend.pullErr = errors.New("offline")
			start()

			lessons := prompt.next()
			So(lessons[0], ShouldNotContainSubstring, "watched")
			So(out.String(), ShouldContainSubstring, "working offline")

			prompt.answers <- len(lessons) - 1
			So(wait(), ShouldBeNil)
		})

		Convey("When the lesson source cannot be built", func() {
			options.Adapter = func(course.Lesson) (player.Adapter, error) {
				return nil, errors.New("no player")
			}
			start()

			prompt.next()
			prompt.answers <- 0

			lessons := prompt.next()
			So(lessons, ShouldHaveLength, 3)
			So(out.String(), ShouldContainSubstring, "no player")

			close(prompt.answers)
			So(wait(), ShouldBeNil)
		})
	})
}
