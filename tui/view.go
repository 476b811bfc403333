package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/duration"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/style"
	"github.com/lessontrack/lessontrack/tracker"
	"github.com/muesli/reflow/wrap"
)

var (
	listExtraPaddingStyle = lipgloss.NewStyle().Padding(1, 2, 1, 0)
	paddingStyle          = lipgloss.NewStyle().Padding(1, 2)
)

func (b *statefulBubble) View() string {
	var output string

	switch b.state {
	case loadingState:
		output = b.viewLoading()
	case lessonsState:
		output = b.viewLessons()
	case watchState:
		output = b.viewWatch()
	case errorState:
		output = b.viewError()
	default:
		output = "Unknown state"
	}

	return b.notifier.View(output)
}

func (b *statefulBubble) viewLoading() string {
	return b.renderLines(
		true,
		[]string{
			style.Title("Loading"),
			"",
			b.spinnerC.View() + " " + b.loadingText,
		},
	)
}

func (b *statefulBubble) viewLessons() string {
	return listExtraPaddingStyle.Render(b.lessonsC.View())
}

func (b *statefulBubble) viewWatch() string {
	session, ok := b.session.Get()
	if !ok {
		return b.viewLoading()
	}

	title := style.Title("Now Watching")
	if session.Completed {
		title = style.Tag(style.Base, style.SuccessColor)("Completed")
	}

	lines := []string{
		title,
		"",
		style.Truncate(b.width)(fmt.Sprintf("%s %s %s",
			style.Faint(b.options.Course.Name()),
			style.Faint("/"),
			style.Fg(color.Purple)(session.Title),
		)),
		"",
		b.progressC.ViewAs(session.Fraction()),
		"",
		b.watchedLine(session),
	}

	if session.SourceKind == player.EmbeddedWidget && b.options.WidgetURL != "" {
		lines = append(lines, style.Faint(fmt.Sprintf("Player page: %s", b.options.WidgetURL)))
	}

	if b.status != "" {
		lines = append(lines, "")
		lines = append(lines, strings.Split(wrap.String(b.renderStatus(), b.width), "\n")...)
	}

	if next, ok := b.next().Get(); ok && session.Completed {
		lines = append(lines, "", fmt.Sprintf("%s press %s to watch %s",
			icon.Get(icon.Next),
			style.Bold("n"),
			style.Fg(color.Purple)(next.Name()),
		))
	} else if session.Completed && b.courseCompleted() {
		lines = append(lines, "", fmt.Sprintf("%s course complete", icon.Get(icon.Certificate)))
	}

	return b.renderLines(true, lines)
}

// watchedLine renders watch time, duration and when the lesson will count as completed.
func (b *statefulBubble) watchedLine(session tracker.Session) string {
	watched := duration.Format(int(session.WatchTime))

	d := session.Duration()
	if d <= 0 {
		return fmt.Sprintf("%s watched %s", icon.Get(icon.Play), style.Faint("(length unknown)"))
	}

	line := fmt.Sprintf("%s watched %s of %s", icon.Get(icon.Play), style.Bold(watched), duration.Format(int(d)))
	if threshold, ok := b.options.Engine.Thresholds.For(d); ok && !session.Completed {
		line += style.Faint(fmt.Sprintf(" · completes at %s", duration.Format(int(threshold))))
	}
	if at, ok := session.LastReconciledAt.Get(); ok {
		line += style.Faint(fmt.Sprintf(" · saved %s", at.Format("15:04:05")))
	}
	return line
}

func (b *statefulBubble) renderStatus() string {
	switch b.statusLevel {
	case statusSuccess:
		return style.Fg(color.Green)(icon.Get(icon.Success) + " " + b.status)
	case statusWarning:
		return style.Fg(color.Yellow)(icon.Get(icon.Warn) + " " + b.status)
	case statusError:
		return style.Fg(color.Red)(icon.Get(icon.Fail) + " " + b.status)
	default:
		return b.status
	}
}

func (b *statefulBubble) viewError() string {
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	var message string
	if b.lastError != nil {
		message = b.lastError.Error()
	}
	errorMsg := wrap.String(errorStyle.Render(message), b.width)

	return b.renderLines(
		true,
		append([]string{
			style.ErrorTitle("Error"),
			"",
			icon.Get(icon.Fail) + " An error occurred:",
			"",
		},
			errorMsg,
		),
	)
}

func (b *statefulBubble) renderLines(addHelp bool, lines []string) string {
	h := len(lines)
	l := strings.Join(lines, "\n")
	if addHelp {
		if b.height > h {
			l += strings.Repeat("\n", b.height-h)
		}
		l += b.helpC.View(b.keymap)
	}

	return paddingStyle.Render(l)
}
