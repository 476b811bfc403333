package tracker

import (
	"github.com/lessontrack/lessontrack/key"
	"github.com/spf13/viper"
)

// Thresholds decide when a lesson counts as watched.
type Thresholds struct {
	// LongRatio and Tail apply to lessons at least ShortCutoff seconds long:
	// the threshold is the later of LongRatio of the duration and Tail seconds before the end.
	LongRatio float64
	Tail      float64

	// ShortRatio applies to shorter lessons.
	ShortRatio  float64
	ShortCutoff float64
}

// DefaultThresholds is 90% or ten seconds before the end for lessons of a
// minute or more, and 80% below that.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LongRatio:   0.9,
		Tail:        10,
		ShortRatio:  0.8,
		ShortCutoff: 60,
	}
}

// ThresholdsFromConfig reads the completion.* keys. Out of range values keep the default.
func ThresholdsFromConfig() Thresholds {
	t := DefaultThresholds()

	if p := viper.GetInt(key.CompletionLongPercent); p > 0 && p <= 100 {
		t.LongRatio = float64(p) / 100
	}
	if s := viper.GetInt(key.CompletionTailSeconds); s >= 0 {
		t.Tail = float64(s)
	}
	if p := viper.GetInt(key.CompletionShortPercent); p > 0 && p <= 100 {
		t.ShortRatio = float64(p) / 100
	}
	if s := viper.GetInt(key.CompletionShortCutoff); s > 0 {
		t.ShortCutoff = float64(s)
	}

	return t
}

// For returns the completion threshold for a duration in seconds.
// ok is false when the duration is unknown.
func (t Thresholds) For(duration float64) (threshold float64, ok bool) {
	if duration <= 0 {
		return 0, false
	}
	if duration < t.ShortCutoff {
		return duration * t.ShortRatio, true
	}
	return max(duration*t.LongRatio, duration-t.Tail), true
}

// State of a CompletionEvaluator.
type State int

const (
	Pending State = iota
	Completed
)

func (s State) String() string {
	if s == Completed {
		return "completed"
	}
	return "pending"
}

// Evaluator decides, at most once, that a lesson is complete.
type Evaluator struct {
	thresholds Thresholds
	nominal    float64
	observed   float64
	remote     float64
	state      State
}

// NewEvaluator creates a pending evaluator for a lesson of nominal duration (0 = unknown).
func NewEvaluator(thresholds Thresholds, nominal float64) *Evaluator {
	return &Evaluator{thresholds: thresholds, nominal: nominal}
}

// SetDuration records the duration reported by the source, which wins over the nominal one.
func (e *Evaluator) SetDuration(d float64) {
	if d > 0 {
		e.observed = d
	}
}

// SetRemote records the backend's watched duration. Only increases are kept.
func (e *Evaluator) SetRemote(watched float64) {
	e.remote = max(e.remote, watched)
}

// Duration is the effective duration, 0 when unknown.
func (e *Evaluator) Duration() float64 {
	if e.observed > 0 {
		return e.observed
	}
	return e.nominal
}

// Threshold is the effective completion threshold.
func (e *Evaluator) Threshold() (float64, bool) {
	return e.thresholds.For(e.Duration())
}

// State returns the current state.
func (e *Evaluator) State() State {
	return e.state
}

// OnEnded completes on end of playback. It reports whether this call completed the lesson.
func (e *Evaluator) OnEnded() bool {
	return e.complete()
}

// Check completes once max(watch, remote) reaches the threshold. Without a known
// duration nothing is decided.
func (e *Evaluator) Check(watch float64) bool {
	if e.state == Completed {
		return false
	}

	threshold, ok := e.Threshold()
	if !ok {
		return false
	}

	if max(watch, e.remote) < threshold {
		return false
	}
	return e.complete()
}

// Adopt marks the lesson completed because the backend says so. It never
// counts as a new completion.
func (e *Evaluator) Adopt() {
	e.state = Completed
}

func (e *Evaluator) complete() bool {
	if e.state == Completed {
		return false
	}
	e.state = Completed
	return true
}
