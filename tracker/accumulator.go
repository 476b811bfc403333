package tracker

import (
	"time"

	"github.com/lessontrack/lessontrack/player"
)

// Accumulator turns playback events into credited watch time.
//
// While the source plays, time advances with the wall clock from the last
// anchor. Authoritative positions ahead of the counter move it forward, so a
// source that reports exact positions wins over wall-clock estimation. The
// counter never decreases.
type Accumulator struct {
	watch       float64
	running     bool
	anchorWall  time.Time
	anchorWatch float64
}

// NewAccumulator starts counting from base seconds.
func NewAccumulator(base float64) *Accumulator {
	return &Accumulator{watch: max(base, 0)}
}

// OnEvent folds ev into the counter and returns the current watch time.
func (a *Accumulator) OnEvent(ev player.Event) float64 {
	now := ev.At

	switch ev.Kind {
	case player.Started:
		if !a.running {
			a.running = true
			a.anchor(now)
		}
	case player.Progress:
		cur := a.Current(now)
		if ev.Authoritative && ev.Position > cur {
			a.watch = ev.Position
			if a.running {
				a.anchor(now)
			}
		}
	case player.Paused, player.Ended, player.Failed:
		a.watch = a.Current(now)
		a.running = false
	}

	return a.Current(now)
}

// Current returns the watch time at now without consuming an event.
func (a *Accumulator) Current(now time.Time) float64 {
	if a.running {
		if elapsed := now.Sub(a.anchorWall).Seconds(); elapsed > 0 {
			a.watch = max(a.watch, a.anchorWatch+elapsed)
		}
	}
	return a.watch
}

// Raise adopts seconds when it is ahead of the counter, e.g. after the backend
// reported more progress than this session has seen.
func (a *Accumulator) Raise(seconds float64, now time.Time) float64 {
	cur := a.Current(now)
	if seconds > cur {
		a.watch = seconds
		if a.running {
			a.anchor(now)
		}
	}
	return a.watch
}

// Running reports whether the clock is advancing.
func (a *Accumulator) Running() bool {
	return a.running
}

func (a *Accumulator) anchor(now time.Time) {
	a.anchorWall = now
	a.anchorWatch = a.watch
}
