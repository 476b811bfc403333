// Package tui provides the course watch interface: the lesson list, the watch
// view fed by the tracker engine, and the next-lesson handoff.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/samber/mo"
)

// Reconciler is the backend view the interface needs.
type Reconciler interface {
	tracker.Reconciler
	Pull(ctx context.Context, courseID string) ([]reconcile.Record, error)
}

// Options encapsulates the runtime configuration for the terminal user interface.
type Options struct {
	Course     *course.Course
	Reconciler Reconciler
	// Adapter builds the video source for a lesson.
	Adapter func(lesson course.Lesson) (player.Adapter, error)
	Engine  tracker.Options
	// Start opens this lesson right away instead of showing the list.
	Start mo.Option[string]
	// WidgetURL is where the learner opens embedded widget lessons.
	WidgetURL string
}

// Run shows the interface until the learner quits. It returns the last session
// that was open, for history.
func Run(options *Options) (mo.Option[tracker.Session], error) {
	bubble := newBubble(options)

	_, err := tea.NewProgram(bubble, tea.WithAltScreen()).Run()
	bubble.shutdown()
	return bubble.last, err
}
