// Package mini is a prompt driven alternative to the full screen interface.
// It asks for a lesson, tracks it while printing what the engine reports, and
// asks again once the learner moves on.
package mini

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/lessontrack/lessontrack/util"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

const notificationBuffer = 64

// Reconciler is the backend view mini mode needs.
type Reconciler interface {
	tracker.Reconciler
	Pull(ctx context.Context, courseID string) ([]reconcile.Record, error)
}

type Options struct {
	Course     *course.Course
	Reconciler Reconciler
	Adapter    func(lesson course.Lesson) (player.Adapter, error)
	Engine     tracker.Options
	Start      mo.Option[string]
	WidgetURL  string
}

type mini struct {
	state         state
	statesHistory util.Stack[state]

	options *Options
	prompt  prompter
	out     io.Writer

	engine        *tracker.Engine
	notifications chan tracker.Notification

	records  map[string]reconcile.Record
	pulled   bool
	selected mo.Option[course.Lesson]
	last     mo.Option[tracker.Session]
}

func newMini(options *Options, prompt prompter, out io.Writer) *mini {
	m := &mini{
		statesHistory: util.Stack[state]{},
		options:       options,
		prompt:        prompt,
		out:           out,
		notifications: make(chan tracker.Notification, notificationBuffer),
		records:       make(map[string]reconcile.Record),
	}
	m.engine = tracker.NewEngine(options.Reconciler, options.Engine, m.notify)
	m.state = lessonsState
	return m
}

// notify never blocks the session loop. Anything that does not fit is only logged.
func (m *mini) notify(n tracker.Notification) {
	select {
	case m.notifications <- n:
	default:
		log.Debugf("dropping %s notification for %s", n.Kind, n.Session.LessonID)
	}
}

func (m *mini) previousState() {
	if m.statesHistory.Len() > 0 {
		m.setState(m.statesHistory.Pop())
		return
	}
	m.setState(lessonsState)
}

func (m *mini) setState(s state) {
	m.state = s
}

func (m *mini) newState(s state) {
	if m.state == s {
		return
	}

	if !lo.Contains([]state{quitState}, m.state) {
		m.statesHistory.Push(m.state)
	}

	m.setState(s)
}

// Run prompts until the learner quits and returns the last session that was open.
func Run(options *Options) (mo.Option[tracker.Session], error) {
	m := newMini(options, surveyPrompter{}, os.Stdout)
	err := m.run(context.Background())
	m.close()
	return m.last, err
}

func (m *mini) run(ctx context.Context) error {
	if id, ok := m.options.Start.Get(); ok {
		if lesson, found := m.options.Course.Lesson(id); found {
			m.selected = mo.Some(lesson)
			m.newState(watchState)
		} else {
			log.Warnf("lesson %s is not part of course %s", id, m.options.Course.ID)
		}
	}

	for m.state != quitState {
		err := m.handleState(ctx)
		if errors.Is(err, terminal.InterruptErr) {
			m.newState(quitState)
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *mini) handleState(ctx context.Context) error {
	switch m.state {
	case lessonsState:
		return m.handleLessonsState(ctx)
	case watchState:
		return m.handleWatchState(ctx)
	}

	return nil
}

func (m *mini) close() {
	if session, ok := m.engine.Snapshot(); ok {
		m.last = mo.Some(session)
	}
	if err := m.engine.Close(); err != nil {
		log.Warnf("closing tracker engine: %v", err)
	}
}
