// Package style wraps lipgloss into small render funcs.
package style

import (
	"github.com/charmbracelet/lipgloss"
)

// New returns an empty style.
func New() lipgloss.Style {
	return lipgloss.NewStyle()
}

func colored(fg, bg lipgloss.Color) lipgloss.Style {
	return New().Foreground(fg).Background(bg)
}

// Fg renders its argument in c.
func Fg(c lipgloss.Color) func(string) string {
	return func(s string) string { return colored(c, "").Render(s) }
}

// Truncate renders its argument in a block max cells wide.
func Truncate(max int) func(string) string {
	return func(s string) string { return New().Width(max).Render(s) }
}

var (
	Faint = func(s string) string { return New().Faint(true).Render(s) }
	Bold  = func(s string) string { return New().Bold(true).Render(s) }
)

// Tag renders its argument as a padded block.
func Tag(fg, bg lipgloss.Color) func(string) string {
	return func(s string) string { return colored(fg, bg).Padding(0, 1).Render(s) }
}

// Title is the banner on top of every view.
var Title = Tag(lipgloss.Color("230"), lipgloss.Color("62"))

// ErrorTitle is Title for the error view.
var ErrorTitle = Tag(lipgloss.Color("230"), ErrorColor)
