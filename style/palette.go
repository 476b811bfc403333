package style

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the interface needs.
var (
	Base    = lipgloss.Color("#1e1e2e")
	Text    = lipgloss.Color("#cdd6f4")
	Overlay = lipgloss.Color("#6c7086")
	Mauve   = lipgloss.Color("#cba6f7")
	Red     = lipgloss.Color("#f38ba8")
	Yellow  = lipgloss.Color("#f9e2af")
	Green   = lipgloss.Color("#a6e3a1")
)

// Roles.
var (
	AccentColor  = Mauve
	SuccessColor = Green
	WarningColor = Yellow
	ErrorColor   = Red
	FaintColor   = Overlay
)
