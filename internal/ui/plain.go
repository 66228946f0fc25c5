package ui

import (
	"log/slog"

	"github.com/MrWong99/hush/internal/app"
)

// PlainHandler returns an app event handler that reports jobs as log lines
// instead of a terminal UI. Starts go to Info and progress to Debug; the
// outcome of each file is logged by app.App itself.
func PlainHandler(log *slog.Logger, jobs []app.Job) func(app.Event) {
	return func(e app.Event) {
		var input string
		if e.Job >= 0 && e.Job < len(jobs) {
			input = jobs[e.Job].Input
		}
		switch e.Kind {
		case app.EventStarted:
			log.Info("processing", "input", input, "total_frames", e.TotalFrames)
		case app.EventProgress:
			log.Debug("progress", "input", input, "frames", e.Progress.Frames)
		}
	}
}
