package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngine(t *testing.T) {
	Convey("Given an engine", t, func() {
		clk := newClock()
		backend := &fakeReconciler{}
		notes := &inbox{}

		engine := NewEngine(backend, Options{
			HeartbeatInterval: time.Hour,
			CheckInterval:     5 * time.Millisecond,
			Now:               clk.Now,
		}, notes.notify)
		Reset(func() { _ = engine.Close() })

		ctx := context.Background()
		lesson := Lesson{CourseID: "c1", ID: "l1", Title: "Intro", Duration: 100}
		adapter := &fakeAdapter{}

		snapshot := func() Session {
			s, ok := engine.Snapshot()
			So(ok, ShouldBeTrue)
			return s
		}

		Convey("When a lesson is watched past its threshold", func() {
			opened, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)
			So(opened.ID, ShouldNotBeEmpty)
			So(opened.SourceKind, ShouldEqual, player.EmbeddedWidget)
			So(opened.Completed, ShouldBeFalse)

			adapter.send(player.Event{Kind: player.Started, At: clk.Now()})
			settle()
			clk.Advance(95 * time.Second)

			Convey("It should complete exactly once", func() {
				So(eventually(func() bool { return len(backend.completed()) == 1 }), ShouldBeTrue)

				adapter.send(player.Event{Kind: player.Ended, At: clk.Now()})
				settle()

				So(backend.completed(), ShouldHaveLength, 1)
				So(backend.completed()[0].LessonID, ShouldEqual, "l1")
				So(backend.completed()[0].Seconds, ShouldBeGreaterThanOrEqualTo, 90)
				So(notes.count(LessonCompleted), ShouldEqual, 1)

				s := snapshot()
				So(s.Completed, ShouldBeTrue)
				So(s.LastReconciledAt.IsPresent(), ShouldBeTrue)
			})
		})

		Convey("When the source reports a longer duration", func() {
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			adapter.send(player.Event{Kind: player.DurationKnown, At: clk.Now(), Duration: 300})
			adapter.send(player.Event{Kind: player.Started, At: clk.Now()})
			settle()
			clk.Advance(95 * time.Second)
			settle()

			Convey("The threshold should follow it", func() {
				s := snapshot()
				So(s.ObservedDuration.OrEmpty(), ShouldEqual, 300)
				So(s.Duration(), ShouldEqual, 300)
				So(s.Completed, ShouldBeFalse)
				So(backend.completed(), ShouldBeEmpty)
			})
		})

		Convey("When the duration is unknown", func() {
			lesson.Duration = 0
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			adapter.send(player.Event{Kind: player.Started, At: clk.Now()})
			settle()
			clk.Advance(time.Hour)
			settle()

			Convey("Only the end of playback should complete it", func() {
				So(backend.completed(), ShouldBeEmpty)

				adapter.send(player.Event{Kind: player.Ended, At: clk.Now()})
				So(eventually(func() bool { return len(backend.completed()) == 1 }), ShouldBeTrue)
				So(backend.completed()[0].Seconds, ShouldEqual, 3600)
			})
		})

		Convey("When the backend already has the lesson completed", func() {
			opened, err := engine.Open(ctx, lesson, adapter, mo.Some(reconcile.Record{LessonID: "l1", WatchedDuration: 50, Completed: true}))
			So(err, ShouldBeNil)

			Convey("The session should start completed without a new completion", func() {
				So(opened.Completed, ShouldBeTrue)
				So(opened.WatchTime, ShouldEqual, 50)

				adapter.send(player.Event{Kind: player.Ended, At: clk.Now()})
				settle()
				So(backend.completed(), ShouldBeEmpty)
				So(notes.count(LessonCompleted), ShouldEqual, 0)
			})
		})

		Convey("When the backend reports progress from elsewhere", func() {
			lesson.Duration = 600
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			So(engine.Resync(reconcile.Record{LessonID: "l1", WatchedDuration: 580}), ShouldBeNil)
			settle()

			Convey("It should raise the watch time without completing below the threshold", func() {
				So(snapshot().WatchTime, ShouldEqual, 580)
				So(backend.completed(), ShouldBeEmpty)
				So(notes.count(SessionResynced), ShouldEqual, 1)
			})

			Convey("It should complete once the remote value crosses the threshold", func() {
				So(engine.Resync(reconcile.Record{LessonID: "l1", WatchedDuration: 595}), ShouldBeNil)
				So(eventually(func() bool { return len(backend.completed()) == 1 }), ShouldBeTrue)
			})

			Convey("A remote completion should be adopted without a push", func() {
				So(engine.Resync(reconcile.Record{LessonID: "l1", Completed: true}), ShouldBeNil)
				settle()
				So(snapshot().Completed, ShouldBeTrue)
				So(backend.completed(), ShouldBeEmpty)
			})

			Convey("Records for other lessons should be ignored", func() {
				So(engine.Resync(reconcile.Record{LessonID: "other", WatchedDuration: 599, Completed: true}), ShouldBeNil)
				settle()
				So(snapshot().Completed, ShouldBeFalse)
			})
		})

		Convey("When completion cannot be delivered", func() {
			backend.completionErr = fmt.Errorf("%w: boom", reconcile.ErrCompletionUndelivered)
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			adapter.send(player.Event{Kind: player.Ended, At: clk.Now()})

			Convey("It should warn and keep the lesson complete locally", func() {
				So(eventually(func() bool { return notes.count(CompletionUndelivered) == 1 }), ShouldBeTrue)
				n, _ := notes.lastOf(CompletionUndelivered)
				So(errors.Is(n.Err, reconcile.ErrCompletionUndelivered), ShouldBeTrue)
				So(snapshot().Completed, ShouldBeTrue)
			})
		})

		Convey("When playback fails", func() {
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			adapter.send(player.Event{Kind: player.Failed, At: clk.Now(), Reason: "network"})
			adapter.send(player.Event{Kind: player.Failed, At: clk.Now(), Reason: "decode", Fatal: true})

			Convey("Recoverable and terminal errors should be surfaced", func() {
				So(eventually(func() bool { return notes.count(PlaybackFailed) == 1 }), ShouldBeTrue)
				So(notes.count(PlaybackRecovering), ShouldEqual, 1)
				n, _ := notes.lastOf(PlaybackFailed)
				So(n.Reason, ShouldEqual, "decode")
			})
		})

		Convey("When another lesson is opened", func() {
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)
			adapter.send(player.Event{Kind: player.Started, At: clk.Now()})
			settle()
			clk.Advance(20 * time.Second)

			next := &fakeAdapter{kind: player.DirectMedia}
			second, err := engine.Open(ctx, Lesson{CourseID: "c1", ID: "l2", Duration: 100}, next, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)

			Convey("The previous session should be disposed first", func() {
				So(adapter.isClosed(), ShouldBeTrue)
				So(eventually(func() bool { return len(backend.beats()) == 1 }), ShouldBeTrue)
				So(backend.beats()[0], ShouldResemble, push{LessonID: "l1", Seconds: 20})

				So(second.LessonID, ShouldEqual, "l2")
				So(second.SourceKind, ShouldEqual, player.DirectMedia)
				So(snapshot().WatchTime, ShouldEqual, 0)
			})
		})

		Convey("When the adapter cannot start", func() {
			adapter.failure = errors.New("no widget")
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())

			Convey("Open should fail and leave no session", func() {
				So(err, ShouldNotBeNil)
				So(adapter.isClosed(), ShouldBeTrue)
				_, ok := engine.Snapshot()
				So(ok, ShouldBeFalse)
				So(engine.Resync(reconcile.Record{LessonID: "l1"}), ShouldEqual, ErrNoSession)
			})
		})

		Convey("When the engine is closed", func() {
			_, err := engine.Open(ctx, lesson, adapter, mo.None[reconcile.Record]())
			So(err, ShouldBeNil)
			So(engine.Close(), ShouldBeNil)

			Convey("It should refuse new sessions", func() {
				So(adapter.isClosed(), ShouldBeTrue)
				_, err := engine.Open(ctx, lesson, &fakeAdapter{}, mo.None[reconcile.Record]())
				So(err, ShouldEqual, ErrEngineClosed)
			})
		})
	})
}

func TestEngineHeartbeat(t *testing.T) {
	Convey("Given an engine with a fast heartbeat", t, func() {
		clk := newClock()
		backend := &fakeReconciler{}

		engine := NewEngine(backend, Options{
			HeartbeatInterval: 5 * time.Millisecond,
			CheckInterval:     time.Hour,
			Now:               clk.Now,
		}, nil)
		Reset(func() { _ = engine.Close() })

		adapter := &fakeAdapter{}
		_, err := engine.Open(context.Background(), Lesson{CourseID: "c1", ID: "l1", Duration: 600}, adapter, mo.None[reconcile.Record]())
		So(err, ShouldBeNil)

		Convey("It should report watch time only when it changed", func() {
			adapter.send(player.Event{Kind: player.Started, At: clk.Now()})
			clk.Advance(30 * time.Second)
			So(eventually(func() bool { return len(backend.beats()) == 1 }), ShouldBeTrue)

			settle()
			So(backend.beats(), ShouldHaveLength, 1)
			So(backend.beats()[0].Seconds, ShouldEqual, 30)
		})

		Convey("Nothing should be sent before anything was watched", func() {
			settle()
			So(backend.beats(), ShouldBeEmpty)
		})
	})
}
