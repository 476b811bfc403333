// Package tracker turns normalized playback events into credited watch time and
// lesson completion.
//
// The Engine owns at most one Session at a time. Every mutation of a session
// happens on that session's loop goroutine: adapter events, both tickers and
// backend results reach it over channels. Accumulator and Evaluator are plain
// state machines that the loop drives.
package tracker

import (
	"time"

	"github.com/lessontrack/lessontrack/player"
	"github.com/samber/mo"
)

// Lesson identifies what is being watched.
type Lesson struct {
	CourseID string
	ID       string
	Title    string
	// Duration is the nominal duration in seconds, 0 when unknown.
	Duration int
}

// Session is the state of one lesson being watched.
type Session struct {
	ID               string
	CourseID         string
	LessonID         string
	Title            string
	SourceKind       player.SourceKind
	NominalDuration  int
	ObservedDuration mo.Option[float64]
	WatchTime        float64
	Completed        bool
	LastReconciledAt mo.Option[time.Time]
}

// Duration is the observed duration when known, otherwise the nominal one.
func (s Session) Duration() float64 {
	return s.ObservedDuration.OrElse(float64(s.NominalDuration))
}

// Fraction is the watched share of the lesson in [0, 1], 0 when the duration is unknown.
func (s Session) Fraction() float64 {
	d := s.Duration()
	if d <= 0 {
		return 0
	}
	return min(s.WatchTime/d, 1)
}
