package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5F87FF"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	okIcon     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")).Render("✓")
	activeIcon = lipgloss.NewStyle().Foreground(lipgloss.Color("#87D7AF")).Render("◐")
	failIcon   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D70000")).Render("✗")
	queuedIcon = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("○")
)

const barWidth = 40

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(renderOverallProgress(m))
	b.WriteString("\n")
	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := titleStyle.Render("hush - speech denoiser")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Processing %d file(s), q to cancel", len(m.Files)))
	return title + "\n" + subtitle
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress) string {
	name := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		return fmt.Sprintf(" %s %s → %s\n   %d frames | speech %.1f%% | VAD avg %.3f | %.1fs",
			okIcon, name, filepath.Base(file.OutputPath),
			file.Stats.FramesProcessed, file.Stats.SpeechPercent, file.Stats.VADAvg,
			file.ElapsedTime.Seconds())

	case StatusProcessing:
		var detail string
		if file.TotalFrames > 0 {
			detail = renderProgressBar(file.Progress(), barWidth)
		} else {
			detail = fmt.Sprintf("%d frames", file.Frames)
		}
		return fmt.Sprintf(" %s %s → %s\n   %s", activeIcon, name, filepath.Base(file.OutputPath), detail)

	case StatusError:
		return fmt.Sprintf(" %s %s\n   Error: %v", failIcon, name, file.Error)

	default:
		return fmt.Sprintf(" %s %s\n   Queued...", queuedIcon, name)
	}
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return fmt.Sprintf("%s %d%%", bar, int(progress*100))
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#888888")).
		Padding(0, 1)

	content := fmt.Sprintf("%d/%d complete", m.CompletedFiles, len(m.Files))
	if m.FailedFiles > 0 {
		content += fmt.Sprintf(", %d failed", m.FailedFiles)
	}
	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := "Processing complete"
	if m.FailedFiles > 0 {
		header = fmt.Sprintf("Processing finished with %d failure(s)", m.FailedFiles)
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}
	return b.String()
}
