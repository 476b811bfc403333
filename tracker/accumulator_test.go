package tracker

import (
	"testing"
	"time"

	"github.com/lessontrack/lessontrack/player"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAccumulator(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(s float64) time.Time { return t0.Add(time.Duration(s * float64(time.Second))) }

	Convey("Given an accumulator starting from zero", t, func() {
		acc := NewAccumulator(0)

		Convey("Started then paused twelve seconds later should credit 12s", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			So(acc.OnEvent(player.Event{Kind: player.Paused, At: at(12)}), ShouldEqual, 12)
			So(acc.Running(), ShouldBeFalse)
		})

		Convey("Time should not advance while paused", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			acc.OnEvent(player.Event{Kind: player.Paused, At: at(10)})
			So(acc.Current(at(100)), ShouldEqual, 10)

			acc.OnEvent(player.Event{Kind: player.Started, At: at(100)})
			So(acc.Current(at(105)), ShouldEqual, 15)
		})

		Convey("A repeated start should not re-anchor", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			acc.OnEvent(player.Event{Kind: player.Started, At: at(5)})
			So(acc.Current(at(8)), ShouldEqual, 8)
		})

		Convey("An authoritative position ahead of the counter should be adopted", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			So(acc.OnEvent(player.Event{Kind: player.Progress, At: at(2), Position: 30, Authoritative: true}), ShouldEqual, 30)
			So(acc.Current(at(5)), ShouldEqual, 33)
		})

		Convey("Best-effort positions should not move the counter", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			So(acc.OnEvent(player.Event{Kind: player.Progress, At: at(2), Position: 30}), ShouldEqual, 2)
		})

		Convey("Seeking backwards should never decrease watch time", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			acc.OnEvent(player.Event{Kind: player.Progress, At: at(1), Position: 50, Authoritative: true})

			last := 0.0
			for i, pos := range []float64{10, 5, 60, 0, 20} {
				v := acc.OnEvent(player.Event{Kind: player.Progress, At: at(float64(i + 2)), Position: pos, Authoritative: true})
				So(v, ShouldBeGreaterThanOrEqualTo, last)
				last = v
			}
			v := acc.OnEvent(player.Event{Kind: player.Ended, At: at(10)})
			So(v, ShouldBeGreaterThanOrEqualTo, last)
		})

		Convey("Errors should freeze the counter", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
			acc.OnEvent(player.Event{Kind: player.Failed, At: at(4), Reason: "network"})
			So(acc.Current(at(60)), ShouldEqual, 4)
		})

		Convey("Raise should only adopt larger values", func() {
			So(acc.Raise(40, at(0)), ShouldEqual, 40)
			So(acc.Raise(10, at(0)), ShouldEqual, 40)
		})

		Convey("A clock going backwards should not subtract time", func() {
			acc.OnEvent(player.Event{Kind: player.Started, At: at(10)})
			So(acc.Current(at(5)), ShouldEqual, 0)
		})
	})

	Convey("An accumulator with a base should start from it", t, func() {
		acc := NewAccumulator(100)
		acc.OnEvent(player.Event{Kind: player.Started, At: at(0)})
		So(acc.Current(at(5)), ShouldEqual, 105)
		So(NewAccumulator(-3).Current(at(0)), ShouldEqual, 0)
	})
}
