package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/lessontrack/lessontrack/course"
	"github.com/lessontrack/lessontrack/icon"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/player"
	"github.com/lessontrack/lessontrack/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// needsPlayer reports whether any lesson of c plays through mpv.
func needsPlayer(c *course.Course) bool {
	return lo.SomeBy(c.Lessons, func(l course.Lesson) bool {
		kind, err := l.Kind()
		return err == nil && kind == player.DirectMedia
	})
}

// needsBridge reports whether any lesson of c is an embedded widget.
func needsBridge(c *course.Course) bool {
	return lo.SomeBy(c.Lessons, func(l course.Lesson) bool {
		kind, err := l.Kind()
		return err == nil && kind == player.EmbeddedWidget
	})
}

// CheckDependencies exits when the media player needed by c is missing.
func CheckDependencies(c *course.Course) {
	if !needsPlayer(c) {
		return
	}

	mpv := viper.GetString(key.PlayerMPVPath)
	if _, err := exec.LookPath(mpv); err != nil {
		printMissingDependencyError(mpv)
		os.Exit(1)
	}
}

func printMissingDependencyError(dep string) {
	var installCmd string
	switch runtime.GOOS {
	case "darwin":
		installCmd = "brew install mpv"
	case "linux":
		installCmd = "sudo apt install mpv"
	case "windows":
		installCmd = "scoop install mpv"
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(style.ErrorColor).
		Padding(1, 2).
		Margin(1, 0)

	title := style.New().Bold(true).Foreground(style.ErrorColor).Render(fmt.Sprintf("%s Media player not found", icon.Get(icon.Fail)))
	body := style.New().Foreground(style.Text).Render(fmt.Sprintf(
		"Direct media lessons play through mpv, but '%s' is not in your PATH.\nSet %s to its location or install it.",
		dep,
		style.New().Foreground(style.AccentColor).Render(key.PlayerMPVPath),
	))

	suggestion := ""
	if installCmd != "" {
		suggestion = fmt.Sprintf("\n\nTo install it, try running:\n  %s", style.New().Foreground(style.AccentColor).Bold(true).Render(installCmd))
	}

	fmt.Println(box.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			body,
			suggestion,
		),
	))
}
