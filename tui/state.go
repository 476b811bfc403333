package tui

// state is the screen the interface shows.
type state int

const (
	loadingState state = iota
	errorState
	lessonsState
	watchState
)

func (s state) String() string {
	switch s {
	case loadingState:
		return "loading"
	case errorState:
		return "error"
	case lessonsState:
		return "lessons"
	case watchState:
		return "watch"
	default:
		return "unknown"
	}
}
