package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/lessontrack/lessontrack/util"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

// notificationBuffer absorbs bursts from the session loop while the program is busy.
const notificationBuffer = 64

// statusLevel colors the playback status line.
type statusLevel int

const (
	statusInfo statusLevel = iota
	statusSuccess
	statusWarning
	statusError
)

// statefulBubble holds the whole interface state. Engine notifications arrive
// through notifications and are read back into Update by waitForNotification.
type statefulBubble struct {
	state         state
	statesHistory util.Stack[state]

	keymap *statefulKeymap

	// components
	spinnerC  spinner.Model
	lessonsC  list.Model
	progressC progress.Model
	helpC     help.Model
	notifier  notifier

	options *Options
	engine  *tracker.Engine
	records map[string]reconcile.Record

	ctx           context.Context
	cancel        context.CancelFunc
	notifications chan tracker.Notification

	current mo.Option[course.Lesson]
	session mo.Option[tracker.Session]
	last    mo.Option[tracker.Session]

	status      string
	statusLevel statusLevel
	loadingText string
	lastError   error

	width, height int
}

// raiseError dispatches a terminal error and transitions the application to the failure view.
func (b *statefulBubble) raiseError(err error) {
	b.lastError = err
	b.newState(errorState)
}

// setState performs a synchronous transition of both the application workflow and its associated keymap.
func (b *statefulBubble) setState(s state) {
	b.state = s
	b.keymap.setState(s)
}

// newState transitions to s, recording the previous state unless it was transient.
func (b *statefulBubble) newState(s state) {
	if b.state == s {
		return
	}

	if !lo.Contains([]state{loadingState, errorState}, b.state) {
		b.statesHistory.Push(b.state)
	}

	b.setState(s)
}

// previousState restores the application to its immediate predecessor in the navigation stack.
func (b *statefulBubble) previousState() {
	if b.statesHistory.Len() > 0 {
		b.setState(b.statesHistory.Pop())
		return
	}
	b.setState(lessonsState)
}

// resize propagates terminal dimension changes to all child component models.
func (b *statefulBubble) resize(width, height int) {
	x, y := paddingStyle.GetFrameSize()
	xx, yy := listExtraPaddingStyle.GetFrameSize()

	listWidth := width - xx
	listHeight := height - yy

	b.lessonsC.SetSize(listWidth, listHeight)
	b.lessonsC.Help.Width = listWidth

	b.progressC.Width = util.Min(width-x, 80)

	b.width = width - x
	b.height = height - y
	b.helpC.Width = listWidth
}

// notify is the engine callback. It runs on the session loop, so it never
// blocks for long: watch time updates are dropped when the buffer is full since
// the next one supersedes them.
func (b *statefulBubble) notify(n tracker.Notification) {
	if n.Kind == tracker.WatchTimeChanged {
		select {
		case b.notifications <- n:
		default:
			log.Debugf("dropping watch time notification for %s", n.Session.LessonID)
		}
		return
	}

	select {
	case b.notifications <- n:
	case <-b.ctx.Done():
	}
}

// shutdown closes the engine once the program has exited.
func (b *statefulBubble) shutdown() {
	// cancel first: it releases a session loop blocked in notify
	b.cancel()

	if session, ok := b.engine.Snapshot(); ok {
		b.last = mo.Some(session)
	}
	if err := b.engine.Close(); err != nil {
		log.Warnf("closing tracker engine: %v", err)
	}
}

// newBubble performs a complete initialization of the application's primary UI model.
func newBubble(options *Options) *statefulBubble {
	ctx, cancel := context.WithCancel(context.Background())

	bubble := &statefulBubble{
		statesHistory: util.Stack[state]{},
		keymap:        newStatefulKeymap(),
		options:       options,
		records:       make(map[string]reconcile.Record),
		ctx:           ctx,
		cancel:        cancel,
		notifications: make(chan tracker.Notification, notificationBuffer),
	}
	bubble.engine = tracker.NewEngine(options.Reconciler, options.Engine, bubble.notify)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(viper.GetInt(key.TUIItemSpacing))
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(style.AccentColor).
		Foreground(style.AccentColor).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(lipgloss.Color("7"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedTitle

	bubble.lessonsC = list.New([]list.Item{}, delegate, 0, 0)
	bubble.lessonsC.KeyMap = bubble.keymap.forList()
	bubble.lessonsC.AdditionalShortHelpKeys = bubble.keymap.ShortHelp
	bubble.lessonsC.AdditionalFullHelpKeys = func() []bubblesKey.Binding {
		return bubble.keymap.FullHelp()[0]
	}
	bubble.lessonsC.Title = options.Course.Name()
	bubble.lessonsC.Styles.Title = lipgloss.NewStyle().Foreground(style.Base).Background(style.AccentColor).Padding(0, 1)
	bubble.lessonsC.Styles.NoItems = paddingStyle
	bubble.lessonsC.StatusMessageLifetime = time.Hour
	bubble.lessonsC.SetStatusBarItemName("lesson", "lessons")
	bubble.setLessons()

	bubble.helpC = help.New()

	bubble.spinnerC = spinner.New()
	bubble.spinnerC.Spinner = spinner.Dot
	bubble.spinnerC.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bubble.progressC = progress.New(progress.WithDefaultGradient())

	if w, h, err := util.TerminalSize(); err == nil {
		bubble.resize(w, h)
	}

	bubble.loadingText = "Loading course progress"
	bubble.setState(loadingState)

	return bubble
}

// setLessons rebuilds the lesson list from the manifest and the known records.
func (b *statefulBubble) setLessons() {
	items := lo.Map(b.options.Course.Lessons, func(l course.Lesson, i int) list.Item {
		item := &listItem{index: i, lesson: l, record: mo.None[reconcile.Record]()}
		if rec, ok := b.records[l.ID]; ok {
			item.record = mo.Some(rec)
		}
		return item
	})
	b.lessonsC.SetItems(items)
}

// markCompleted records a completion seen during this run, so the list does not
// wait for the next pull to show it.
func (b *statefulBubble) markCompleted(s tracker.Session) {
	rec := b.records[s.LessonID]
	rec.LessonID = s.LessonID
	rec.Completed = true
	rec.WatchedDuration = max(rec.WatchedDuration, s.WatchTime)
	b.records[s.LessonID] = rec
	b.setLessons()
}

// courseCompleted reports whether every lesson of the manifest is completed.
func (b *statefulBubble) courseCompleted() bool {
	return lo.EveryBy(b.options.Course.Lessons, func(l course.Lesson) bool {
		return b.records[l.ID].Completed
	})
}

func (b *statefulBubble) setStatus(level statusLevel, status string) {
	b.statusLevel = level
	b.status = status
}
