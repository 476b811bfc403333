package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/reconcile"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

// listItem implements the list.Item interface for one lesson of the course.
type listItem struct {
	index  int
	lesson course.Lesson
	record mo.Option[reconcile.Record]
}

func (t *listItem) completed() bool {
	rec, ok := t.record.Get()
	return ok && rec.Completed
}

func (t *listItem) getMark() string {
	if t.completed() {
		return lipgloss.NewStyle().Bold(true).Foreground(style.SuccessColor).Render(icon.Get(icon.Check))
	}
	return style.Faint(icon.Get(icon.Pending))
}

// Title retrieves the primary display text for the list item.
func (t *listItem) Title() string {
	title := fmt.Sprintf("%d. %s", t.index+1, t.lesson.Name())
	if mark := t.getMark(); mark != "" {
		title = fmt.Sprintf("%s %s", mark, title)
	}
	return title
}

// Description retrieves the secondary metadata for the list item.
func (t *listItem) Description() string {
	var parts []string

	seconds := t.lesson.Seconds()
	if seconds > 0 {
		parts = append(parts, duration.Format(seconds))
	} else {
		parts = append(parts, "unknown length")
	}

	if rec, ok := t.record.Get(); ok {
		switch {
		case rec.Completed:
			parts = append(parts, "completed")
		case rec.WatchedDuration > 0:
			watched := fmt.Sprintf("watched %s", duration.Format(int(rec.WatchedDuration)))
			if seconds > 0 {
				watched += fmt.Sprintf(" (%.0f%%)", min(rec.WatchedDuration/float64(seconds), 1)*100)
			}
			parts = append(parts, watched)
		}
	}

	if kind, err := t.lesson.Kind(); err == nil {
		parts = append(parts, string(kind))
	}

	if viper.GetBool(key.TUIShowURLs) {
		parts = append(parts, t.lesson.URL)
	}

	return strings.Join(parts, " · ")
}

// FilterValue is the value used when filtering lessons.
func (t *listItem) FilterValue() string {
	return t.lesson.Name()
}
