package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/lessontrack/lessontrack/color"
	"github.com/lessontrack/lessontrack/style"
)

// statefulKeymap exposes only the bindings that make sense in the current state.
type statefulKeymap struct {
	state state

	quit, forceQuit key.Binding
	confirm, back   key.Binding

	// lesson list
	refresh, filter key.Binding

	// watch view
	resync, next, openURL key.Binding

	// list navigation
	up, down, left, right, top, bottom, showHelp key.Binding
}

func (k *statefulKeymap) setState(s state) {
	k.state = s
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

func newStatefulKeymap() *statefulKeymap {
	accent := style.Fg(color.Orange)

	return &statefulKeymap{
		quit:      bind("q", "quit", "q"),
		forceQuit: bind("ctrl+c", "quit", "ctrl+c", "ctrl+d"),
		confirm:   bind(accent("enter"), accent("watch"), "enter"),
		back:      bind("esc", "back", "esc"),

		refresh: bind("r", "refresh progress", "r"),
		filter:  bind("/", "filter", "/"),

		// shares "r" with refresh, the two never live in the same state
		resync:  bind("r", "resync", "r"),
		next:    bind("n", "next lesson", "n"),
		openURL: bind("o", "open player", "o"),

		up:       bind("↑", "up", "up", "k"),
		down:     bind("↓", "down", "down", "j"),
		left:     bind("←", "previous page", "left", "h"),
		right:    bind("→", "next page", "right", "l"),
		top:      bind("g", "first lesson", "g", "home"),
		bottom:   bind("G", "last lesson", "G", "end"),
		showHelp: bind("?", "help", "?"),
	}
}

// help returns the short and the full help of the current state.
func (k *statefulKeymap) help() (short, full []key.Binding) {
	switch k.state {
	case loadingState:
		short = []key.Binding{k.forceQuit}
		full = short
	case lessonsState:
		short = []key.Binding{k.confirm, k.refresh}
		full = append(short, k.filter, k.quit)
	case watchState:
		short = []key.Binding{k.next, k.openURL, k.back}
		full = []key.Binding{k.next, k.resync, k.openURL, k.back, k.quit}
	case errorState:
		short = []key.Binding{k.back, k.quit}
		full = short
	}
	return short, full
}

func (k *statefulKeymap) ShortHelp() []key.Binding {
	short, _ := k.help()
	return short
}

func (k *statefulKeymap) FullHelp() [][]key.Binding {
	_, full := k.help()
	return [][]key.Binding{full}
}

// forList maps the bindings onto the lesson list component.
func (k *statefulKeymap) forList() list.KeyMap {
	return list.KeyMap{
		CursorUp:             k.up,
		CursorDown:           k.down,
		NextPage:             k.right,
		PrevPage:             k.left,
		GoToStart:            k.top,
		GoToEnd:              k.bottom,
		Filter:               k.filter,
		ClearFilter:          k.back,
		CancelWhileFiltering: k.back,
		AcceptWhileFiltering: k.confirm,
		ShowFullHelp:         k.showHelp,
		CloseFullHelp:        k.showHelp,
		Quit:                 k.quit,
		ForceQuit:            k.forceQuit,
	}
}
