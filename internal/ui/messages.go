package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/pkg/denoise"
)

// FileStartMsg indicates a file has started processing
type FileStartMsg struct {
	FileIndex   int
	TotalFrames int // zero when the input size is unknown
}

// ProgressMsg represents a progress update from the runner
type ProgressMsg struct {
	FileIndex int
	Frames    int
}

// FileCompleteMsg indicates a file has finished processing
type FileCompleteMsg struct {
	FileIndex int
	Frames    int
	Stats     denoise.Stats
	Error     error
}

// AllCompleteMsg indicates all files have been processed
type AllCompleteMsg struct{}

// sender is the part of *tea.Program used by EventHandler.
type sender interface {
	Send(msg tea.Msg)
}

// EventHandler returns an app event handler that forwards every event to
// the program as the matching message.
func EventHandler(p sender) func(app.Event) {
	return func(e app.Event) {
		p.Send(toMsg(e))
	}
}

func toMsg(e app.Event) tea.Msg {
	switch e.Kind {
	case app.EventStarted:
		return FileStartMsg{FileIndex: e.Job, TotalFrames: e.TotalFrames}
	case app.EventProgress:
		return ProgressMsg{FileIndex: e.Job, Frames: e.Progress.Frames}
	default:
		return FileCompleteMsg{FileIndex: e.Job, Frames: e.Progress.Frames, Stats: e.Stats, Error: e.Err}
	}
}
