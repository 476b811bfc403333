package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/open"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

const pullTimeout = 20 * time.Second

// progressPulledMsg carries a fresh course progress pull. Then names the lesson
// to open once the records are in.
type progressPulledMsg struct {
	records []reconcile.Record
	err     error
	then    mo.Option[course.Lesson]
}

type sessionOpenedMsg struct {
	lesson  course.Lesson
	session tracker.Session
}

type sessionClosedMsg struct{}

func (b *statefulBubble) pullProgress(then mo.Option[course.Lesson]) tea.Cmd {
	courseID := b.options.Course.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, pullTimeout)
		defer cancel()

		records, err := b.options.Reconciler.Pull(ctx, courseID)
		return progressPulledMsg{records: records, err: err, then: then}
	}
}

// resync pulls the course and feeds the current lesson's record to the engine.
func (b *statefulBubble) resync() tea.Cmd {
	courseID := b.options.Course.ID
	lesson, ok := b.current.Get()
	if !ok {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, pullTimeout)
		defer cancel()

		records, err := b.options.Reconciler.Pull(ctx, courseID)
		if err != nil {
			return progressPulledMsg{err: err}
		}

		if rec, found := lo.Find(records, func(r reconcile.Record) bool {
			return r.LessonID == lesson.ID
		}); found {
			if err := b.engine.Resync(rec); err != nil && !errors.Is(err, tracker.ErrNoSession) {
				return notifyMsg(fmt.Sprintf("resync failed: %v", err))
			}
		}
		return progressPulledMsg{records: records}
	}
}

// openLesson builds the lesson source and hands it to the engine, which
// disposes whatever session was open.
func (b *statefulBubble) openLesson(lesson course.Lesson) tea.Cmd {
	b.loadingText = fmt.Sprintf("Opening %s", lesson.Name())
	b.setStatus(statusInfo, "")
	b.newState(loadingState)

	remote := b.remoteOf(lesson.ID)
	tracked := b.options.Course.Tracked(lesson)

	return tea.Batch(b.spinnerC.Tick, func() tea.Msg {
		adapter, err := b.options.Adapter(lesson)
		if err != nil {
			return fmt.Errorf("lesson %s: %w", lesson.ID, err)
		}

		// the session outlives this command, so it runs on the interface context
		session, err := b.engine.Open(b.ctx, tracked, adapter, remote)
		if err != nil {
			_ = adapter.Close()
			return err
		}
		return sessionOpenedMsg{lesson: lesson, session: session}
	})
}

// closeSession disposes the open session off the update loop, since disposal
// waits for the session loop to drain.
func (b *statefulBubble) closeSession() tea.Cmd {
	if session, ok := b.session.Get(); ok {
		b.last = mo.Some(session)
	}
	b.current = mo.None[course.Lesson]()
	b.session = mo.None[tracker.Session]()

	return func() tea.Msg {
		b.engine.Dispose()
		return sessionClosedMsg{}
	}
}

func (b *statefulBubble) waitForNotification() tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-b.notifications:
			return n
		case <-b.ctx.Done():
			return nil
		}
	}
}

// openPlayer shows the widget page for embedded lessons.
func (b *statefulBubble) openPlayer() tea.Cmd {
	lesson, ok := b.current.Get()
	if !ok {
		return nil
	}

	kind, _ := lesson.Kind()
	if kind != player.EmbeddedWidget || b.options.WidgetURL == "" {
		return notify("the player window is already open")
	}

	url := b.options.WidgetURL
	return func() tea.Msg {
		if err := open.URL(url); err != nil {
			return notifyMsg(fmt.Sprintf("could not open %s: %v", url, err))
		}
		return notifyMsg("opened " + url)
	}
}
