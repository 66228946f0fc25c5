// Package cli holds the terminal styling shared by the hush commands: the
// kong help printer and the version, error and statistics printers.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/hush/internal/model"
	"github.com/MrWong99/hush/pkg/denoise"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#5F87FF") // Hush blue
	accentColor  = lipgloss.Color("#87D7AF") // Mint
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
	errorColor   = lipgloss.Color("#D70000") // Red
)

// Styles
var (
	// Title style - bold blue
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Highlighted value, e.g. the speech percentage
	AccentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)
)

// PrintVersion prints version information
func PrintVersion(w io.Writer, version string) {
	fmt.Fprintln(w, TitleStyle.Render("hush"))
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Fprintln(w)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintStats prints the statistics report of one stream under title.
func PrintStats(w io.Writer, title string, st denoise.Stats) {
	fmt.Fprintln(w, TitleStyle.Render(title))
	if st.FramesProcessed == 0 {
		fmt.Fprintf(w, "  %s\n\n", KeyStyle.Render("no frames processed"))
		return
	}

	rows := [][2]string{
		{"Frames", fmt.Sprintf("%d", st.FramesProcessed)},
		{"Speech", AccentStyle.Render(fmt.Sprintf("%.1f%%", st.SpeechPercent)) +
			KeyStyle.Render(fmt.Sprintf(" (%d frames)", st.SpeechFrames))},
		{"VAD avg/min/max", fmt.Sprintf("%.3f / %.3f / %.3f", st.VADAvg, st.VADMin, st.VADMax)},
		{"Processing total", FormatMillis(st.ProcessingTotal)},
		{"Processing avg", FormatMillis(st.ProcessingAvg)},
		{"Processing last", FormatMillis(st.ProcessingLast)},
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		key := r[0] + ":" + strings.Repeat(" ", width-len(r[0]))
		fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render(key), ValueStyle.Render(r[1]))
	}
	fmt.Fprintln(w)
}

// FormatMillis renders d in milliseconds with three decimals.
func FormatMillis(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}

// EngineInfo is one row of the engine listing.
type EngineInfo struct {
	Name string
	// Err is why the engine cannot be used in this build, if anything.
	Err error
}

// PrintModels prints the model presets and the registered engines.
func PrintModels(w io.Writer, presets []model.Info, engines []EngineInfo) {
	fmt.Fprintln(w, TitleStyle.Render("Model presets"))
	for _, p := range presets {
		fmt.Fprintf(w, "  %s  %s\n", ValueStyle.Render(fmt.Sprintf("%-10s", p.Name)), p.Description)
		fmt.Fprintf(w, "  %s  %s\n", strings.Repeat(" ", 10), KeyStyle.Render(p.Usage))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, TitleStyle.Render("Engines"))
	for _, e := range engines {
		status := AccentStyle.Render("available")
		if e.Err != nil {
			status = ErrorStyle.Render("unavailable") + KeyStyle.Render(": "+e.Err.Error())
		}
		fmt.Fprintf(w, "  %s  %s\n", ValueStyle.Render(fmt.Sprintf("%-12s", e.Name)), status)
	}
	fmt.Fprintln(w)
}
