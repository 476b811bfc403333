package mini

import (
	"context"
	"fmt"
	"time"

	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

type state int

const (
	lessonsState state = iota + 1
	watchState
	quitState
)

const pullTimeout = 20 * time.Second

// watch menu entries
const (
	choiceNext   = "Next lesson"
	choiceResync = "Resync progress"
	choiceBack   = "Back to lessons"
	choiceQuit   = "Quit"
)

func (m *mini) pull(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	erase := m.progress("Pulling progress..")
	records, err := m.options.Reconciler.Pull(ctx, m.options.Course.ID)
	erase()

	m.pulled = true
	if err != nil {
		log.Warnf("pulling progress of %s: %v", m.options.Course.ID, err)
		m.warn("progress unavailable, working offline")
		return
	}

	for _, rec := range records {
		// a completion seen locally is never taken back by a stale pull
		if known, ok := m.records[rec.LessonID]; ok && known.Completed {
			rec.Completed = true
			rec.WatchedDuration = max(rec.WatchedDuration, known.WatchedDuration)
		}
		m.records[rec.LessonID] = rec
	}
}

func (m *mini) lessonLabel(i int, l course.Lesson) string {
	mark := icon.Get(icon.Pending)
	rec, ok := m.records[l.ID]
	if ok && rec.Completed {
		mark = icon.Get(icon.Check)
	}

	label := fmt.Sprintf("%s %d. %s", mark, i+1, l.Name())
	if seconds := l.Seconds(); seconds > 0 {
		label += fmt.Sprintf(" (%s)", duration.Format(seconds))
	}
	if ok && !rec.Completed && rec.WatchedDuration > 0 {
		label += fmt.Sprintf(" watched %s", duration.Format(int(rec.WatchedDuration)))
	}
	return label
}

func (m *mini) handleLessonsState(ctx context.Context) error {
	if !m.pulled {
		m.pull(ctx)
	}

	lessons := m.options.Course.Lessons
	options := lo.Map(lessons, func(l course.Lesson, i int) string {
		return m.lessonLabel(i, l)
	})
	options = append(options, choiceQuit)

	m.title(m.options.Course.Name())
	index, err := m.prompt.Select("Pick a lesson", options)
	if err != nil {
		return err
	}

	if index >= len(lessons) {
		m.newState(quitState)
		return nil
	}

	m.selected = mo.Some(lessons[index])
	m.newState(watchState)
	return nil
}

func (m *mini) handleWatchState(ctx context.Context) error {
	lesson, ok := m.selected.Get()
	if !ok {
		m.previousState()
		return nil
	}

	if !m.pulled {
		m.pull(ctx)
	}

	session, err := m.open(ctx, lesson)
	if err != nil {
		m.fail(err.Error())
		m.selected = mo.None[course.Lesson]()
		m.previousState()
		return nil
	}
	m.last = mo.Some(session)

	m.title(fmt.Sprintf("Watching %s", lesson.Name()))
	if session.Completed {
		m.success("already completed, watch time still counts")
	} else if d := session.Duration(); d > 0 {
		m.info(fmt.Sprintf("watched %s of %s", duration.Format(int(session.WatchTime)), duration.Format(int(d))))
	}
	if session.SourceKind == player.EmbeddedWidget && m.options.WidgetURL != "" {
		m.info(fmt.Sprintf("open %s to play this lesson", m.options.WidgetURL))
	}

	type pick struct {
		choice string
		err    error
	}

	next := m.options.Course.Next(lesson.ID)
	choices := []string{choiceBack, choiceResync, choiceQuit}
	if next.IsPresent() {
		choices = append([]string{choiceNext}, choices...)
	}

	picked := make(chan pick, 1)
	ask := func() {
		index, err := m.prompt.Select("", choices)
		if err != nil {
			picked <- pick{err: err}
			return
		}
		picked <- pick{choice: choices[index]}
	}
	go ask()

	for {
		select {
		case n := <-m.notifications:
			m.report(lesson, n)
		case p := <-picked:
			if p.err == nil && p.choice == choiceResync {
				m.resync(ctx, lesson)
				go ask()
				continue
			}

			m.dispose()
			if p.err != nil {
				return p.err
			}

			switch p.choice {
			case choiceNext:
				m.selected = next
			case choiceBack:
				m.selected = mo.None[course.Lesson]()
				m.previousState()
			case choiceQuit:
				m.newState(quitState)
			}
			return nil
		}
	}
}

// open builds the lesson source and starts tracking it.
func (m *mini) open(ctx context.Context, lesson course.Lesson) (tracker.Session, error) {
	adapter, err := m.options.Adapter(lesson)
	if err != nil {
		return tracker.Session{}, fmt.Errorf("lesson %s: %w", lesson.ID, err)
	}

	remote := mo.None[reconcile.Record]()
	if rec, ok := m.records[lesson.ID]; ok {
		remote = mo.Some(rec)
	}

	session, err := m.engine.Open(ctx, m.options.Course.Tracked(lesson), adapter, remote)
	if err != nil {
		_ = adapter.Close()
		return tracker.Session{}, err
	}
	return session, nil
}

// dispose ends the open session, keeping its last state for history.
func (m *mini) dispose() {
	if session, ok := m.engine.Snapshot(); ok {
		m.last = mo.Some(session)
	}
	m.engine.Dispose()
}

func (m *mini) resync(ctx context.Context, lesson course.Lesson) {
	m.pulled = false
	m.pull(ctx)

	rec, ok := m.records[lesson.ID]
	if !ok {
		return
	}
	if err := m.engine.Resync(rec); err != nil {
		m.warn(fmt.Sprintf("resync failed: %v", err))
	}
}

// report prints what the engine says about the current lesson.
func (m *mini) report(lesson course.Lesson, n tracker.Notification) {
	if n.Session.LessonID != lesson.ID {
		return
	}
	m.last = mo.Some(n.Session)

	switch n.Kind {
	case tracker.LessonCompleted:
		m.markCompleted(n.Session)
		msg := "lesson complete"
		if next, ok := m.options.Course.Next(lesson.ID).Get(); ok {
			msg += fmt.Sprintf(", up next: %s", next.Name())
		} else if m.courseCompleted() {
			msg += ", every lesson of this course is done"
		}
		m.success(msg)
	case tracker.CompletionUndelivered:
		m.warn("completion could not be saved yet, it will be retried later")
	case tracker.PlaybackRecovering:
		m.warn(fmt.Sprintf("playback problem (%s), trying another source", n.Reason))
	case tracker.PlaybackFailed:
		m.fail(fmt.Sprintf("playback failed: %s", n.Reason))
	case tracker.SessionResynced:
		m.info(fmt.Sprintf("progress resynced, watched %s", duration.Format(int(n.Session.WatchTime))))
	}
}

func (m *mini) markCompleted(s tracker.Session) {
	rec := m.records[s.LessonID]
	rec.LessonID = s.LessonID
	rec.Completed = true
	rec.WatchedDuration = max(rec.WatchedDuration, s.WatchTime)
	m.records[s.LessonID] = rec
}

func (m *mini) courseCompleted() bool {
	return lo.EveryBy(m.options.Course.Lessons, func(l course.Lesson) bool {
		return m.records[l.ID].Completed
	})
}
