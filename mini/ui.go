package mini

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/style"
)

// prompter asks the learner to pick one of options and returns its index.
type prompter interface {
	Select(message string, options []string) (int, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Select(message string, options []string) (int, error) {
	var index int
	err := survey.AskOne(&survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 15,
	}, &index)
	return index, err
}

func (m *mini) title(t string) {
	fmt.Fprintf(m.out, "%s\n", style.New().Bold(true).Foreground(color.HiBlue).Render(t))
}

func (m *mini) info(msg string) {
	fmt.Fprintf(m.out, "%s %s\n", icon.Get(icon.Play), msg)
}

func (m *mini) success(msg string) {
	fmt.Fprintf(m.out, "%s %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), msg)
}

func (m *mini) warn(msg string) {
	fmt.Fprintf(m.out, "%s %s\n", style.Fg(color.Yellow)(icon.Get(icon.Warn)), msg)
}

func (m *mini) fail(msg string) {
	fmt.Fprintf(m.out, "%s %s\n", style.Fg(color.Red)(icon.Get(icon.Fail)), msg)
}

// progress prints msg on the current line and returns a func that erases it.
func (m *mini) progress(msg string) (eraser func()) {
	msg = style.Fg(color.Purple)(msg)
	fmt.Fprintf(m.out, "\r%s", msg)

	return func() {
		fmt.Fprintf(m.out, "\r%s\r", strings.Repeat(" ", len(msg)))
	}
}
