package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessontrack/lessontrack/style"
)

const notificationLifetime = 4 * time.Second

// notifyMsg shows a transient message next to the last line of the view.
type notifyMsg string

// clearNotificationMsg carries the sequence of the notification it clears, so
// a newer message is not removed by an older timer.
type clearNotificationMsg int

// notifier keeps one transient message at a time.
type notifier struct {
	message string
	seq     int
}

func notify(message string) tea.Cmd {
	return func() tea.Msg {
		return notifyMsg(message)
	}
}

func (n *notifier) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case notifyMsg:
		n.message = string(msg)
		n.seq++
		seq := n.seq
		return tea.Tick(notificationLifetime, func(time.Time) tea.Msg {
			return clearNotificationMsg(seq)
		})
	case clearNotificationMsg:
		if int(msg) == n.seq {
			n.message = ""
		}
	}
	return nil
}

// View appends the current message to the last line of content.
func (n *notifier) View(content string) string {
	if n.message == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	lines[len(lines)-1] += "  " + style.Faint(n.message)
	return strings.Join(lines, "\n")
}
