package tui

import (
	"fmt"

	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/samber/mo"
)

// Init pulls the course progress and starts listening to the engine.
func (b *statefulBubble) Init() tea.Cmd {
	then := mo.None[course.Lesson]()
	if id, ok := b.options.Start.Get(); ok {
		if lesson, found := b.options.Course.Lesson(id); found {
			then = mo.Some(lesson)
		} else {
			log.Warnf("lesson %s is not part of course %s", id, b.options.Course.ID)
		}
	}

	return tea.Batch(b.spinnerC.Tick, b.pullProgress(then), b.waitForNotification())
}

func (b *statefulBubble) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if cmd := b.notifier.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case error:
		b.raiseError(msg)
		return b, tea.Batch(cmds...)
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if bubblesKey.Matches(msg, b.keymap.forceQuit) {
			return b, tea.Quit
		}
	case progressPulledMsg:
		return b, tea.Batch(append(cmds, b.onProgressPulled(msg))...)
	case sessionOpenedMsg:
		b.current = mo.Some(msg.lesson)
		b.session = mo.Some(msg.session)
		b.statesHistory.Clear()
		b.statesHistory.Push(lessonsState)
		b.setState(watchState)
		if msg.session.Completed {
			b.setStatus(statusSuccess, "Already completed. Watch time still counts.")
		}
		return b, tea.Batch(cmds...)
	case sessionClosedMsg:
		return b, tea.Batch(cmds...)
	case tracker.Notification:
		return b, tea.Batch(append(cmds, b.onNotification(msg), b.waitForNotification())...)
	case spinner.TickMsg:
		if b.state == loadingState {
			var cmd tea.Cmd
			b.spinnerC, cmd = b.spinnerC.Update(msg)
			cmds = append(cmds, cmd)
		}
		return b, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	switch b.state {
	case lessonsState:
		cmd = b.updateLessons(msg)
	case watchState:
		cmd = b.updateWatch(msg)
	case errorState:
		cmd = b.updateError(msg)
	}

	return b, tea.Batch(append(cmds, cmd)...)
}

func (b *statefulBubble) onProgressPulled(msg progressPulledMsg) tea.Cmd {
	var cmd tea.Cmd

	if msg.err != nil {
		log.Warnf("pulling progress of %s: %v", b.options.Course.ID, msg.err)
		cmd = notify("progress unavailable, working offline")
	}

	for _, rec := range msg.records {
		// a completion seen locally is never taken back by a stale pull
		if known, ok := b.records[rec.LessonID]; ok && known.Completed {
			rec.Completed = true
			rec.WatchedDuration = max(rec.WatchedDuration, known.WatchedDuration)
		}
		b.records[rec.LessonID] = rec
	}
	b.setLessons()

	if lesson, ok := msg.then.Get(); ok {
		return tea.Batch(cmd, b.openLesson(lesson))
	}

	if b.state == loadingState {
		b.setState(lessonsState)
	}
	return cmd
}

func (b *statefulBubble) onNotification(n tracker.Notification) tea.Cmd {
	current, ok := b.current.Get()
	isCurrent := ok && current.ID == n.Session.LessonID
	if isCurrent {
		b.session = mo.Some(n.Session)
	}

	switch n.Kind {
	case tracker.LessonCompleted:
		b.markCompleted(n.Session)
		if !isCurrent {
			return notify(fmt.Sprintf("%s completed", n.Session.Title))
		}
		switch {
		case b.courseCompleted():
			b.setStatus(statusSuccess, "Lesson complete. Every lesson of this course is done.")
		case b.next().IsPresent():
			b.setStatus(statusSuccess, fmt.Sprintf("Lesson complete. Up next: %s", b.next().MustGet().Name()))
		default:
			b.setStatus(statusSuccess, "Lesson complete.")
		}
	case tracker.CompletionUndelivered:
		msg := "Completion could not be saved yet, it will be retried later."
		if n.Err != nil {
			log.Warnf("completion of %s undelivered: %v", n.Session.LessonID, n.Err)
		}
		if isCurrent {
			b.setStatus(statusWarning, msg)
			return nil
		}
		return notify(msg)
	case tracker.PlaybackRecovering:
		if isCurrent {
			b.setStatus(statusWarning, fmt.Sprintf("Playback problem (%s), trying another source.", n.Reason))
		}
	case tracker.PlaybackFailed:
		if isCurrent {
			b.setStatus(statusError, fmt.Sprintf("Playback failed: %s", n.Reason))
		}
	case tracker.SessionResynced:
		if isCurrent {
			return notify("progress resynced")
		}
	}
	return nil
}

// next is the lesson after the current one.
func (b *statefulBubble) next() mo.Option[course.Lesson] {
	current, ok := b.current.Get()
	if !ok {
		return mo.None[course.Lesson]()
	}
	return b.options.Course.Next(current.ID)
}

func (b *statefulBubble) updateLessons(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok && b.lessonsC.FilterState() != list.Filtering {
		switch {
		case bubblesKey.Matches(msg, b.keymap.confirm):
			item, ok := b.lessonsC.SelectedItem().(*listItem)
			if !ok {
				return nil
			}
			return b.openLesson(item.lesson)
		case bubblesKey.Matches(msg, b.keymap.refresh):
			return tea.Batch(b.pullProgress(mo.None[course.Lesson]()), notify("refreshing progress"))
		case bubblesKey.Matches(msg, b.keymap.back):
			if b.lessonsC.FilterState() == list.Unfiltered {
				return nil
			}
		}
	}

	var cmd tea.Cmd
	b.lessonsC, cmd = b.lessonsC.Update(msg)
	return cmd
}

func (b *statefulBubble) updateWatch(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch {
	case bubblesKey.Matches(keyMsg, b.keymap.quit):
		return tea.Quit
	case bubblesKey.Matches(keyMsg, b.keymap.back):
		cmd := b.closeSession()
		b.previousState()
		b.selectCurrentLesson()
		return cmd
	case bubblesKey.Matches(keyMsg, b.keymap.next):
		next, ok := b.next().Get()
		if !ok {
			return notify("this is the last lesson")
		}
		return b.openLesson(next)
	case bubblesKey.Matches(keyMsg, b.keymap.resync):
		return tea.Batch(b.resync(), notify("resyncing"))
	case bubblesKey.Matches(keyMsg, b.keymap.openURL):
		return b.openPlayer()
	}
	return nil
}

func (b *statefulBubble) updateError(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch {
	case bubblesKey.Matches(keyMsg, b.keymap.quit):
		return tea.Quit
	case bubblesKey.Matches(keyMsg, b.keymap.back):
		b.lastError = nil
		b.statesHistory.Clear()
		b.setState(lessonsState)
		if b.current.IsPresent() {
			return b.closeSession()
		}
	}
	return nil
}

// selectCurrentLesson moves the list cursor to the lesson that was last watched.
func (b *statefulBubble) selectCurrentLesson() {
	session, ok := b.last.Get()
	if !ok {
		return
	}
	for i, item := range b.lessonsC.Items() {
		if it, ok := item.(*listItem); ok && it.lesson.ID == session.LessonID {
			b.lessonsC.Select(i)
			return
		}
	}
}

// remoteOf returns the known record of a lesson.
func (b *statefulBubble) remoteOf(lessonID string) mo.Option[reconcile.Record] {
	if rec, ok := b.records[lessonID]; ok {
		return mo.Some(rec)
	}
	return mo.None[reconcile.Record]()
}
