// Package ui provides the Bubbletea terminal user interface for hush process
// and the plain log fallback used when stdout is not a terminal.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/pkg/denoise"
)

// FileStatus represents the processing state of a single file
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusProcessing
	StatusComplete
	StatusError
)

// FileProgress tracks progress for a single file
type FileProgress struct {
	InputPath  string
	OutputPath string
	Status     FileStatus

	// Frames processed so far and the expected total (zero if unknown).
	Frames      int
	TotalFrames int

	StartTime   time.Time
	ElapsedTime time.Duration

	// Completion results
	Stats denoise.Stats
	Error error
}

// Progress returns the completed fraction in [0, 1], or zero when the total
// is unknown.
func (fp FileProgress) Progress() float64 {
	if fp.TotalFrames <= 0 {
		return 0
	}
	return min(float64(fp.Frames)/float64(fp.TotalFrames), 1)
}

// Model is the Bubbletea model for the processing UI
type Model struct {
	Files          []FileProgress
	CompletedFiles int
	FailedFiles    int

	// Global state
	StartTime time.Time
	Done      bool
	Cancelled bool

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a new UI model for the given jobs
func NewModel(jobs []app.Job) Model {
	files := make([]FileProgress, len(jobs))
	for i, j := range jobs {
		files[i] = FileProgress{
			InputPath:  j.Input,
			OutputPath: j.Output,
			Status:     StatusQueued,
		}
	}
	return Model{
		Files:     files,
		StartTime: time.Now(),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Cancelled = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case FileStartMsg:
		if fp, ok := m.file(msg.FileIndex); ok {
			fp.Status = StatusProcessing
			fp.TotalFrames = msg.TotalFrames
			fp.StartTime = time.Now()
		}

	case ProgressMsg:
		if fp, ok := m.file(msg.FileIndex); ok {
			fp.Frames = msg.Frames
			fp.ElapsedTime = time.Since(fp.StartTime)
		}

	case FileCompleteMsg:
		if fp, ok := m.file(msg.FileIndex); ok {
			fp.Frames = msg.Frames
			fp.Stats = msg.Stats
			fp.Error = msg.Error
			if !fp.StartTime.IsZero() {
				fp.ElapsedTime = time.Since(fp.StartTime)
			}
			if msg.Error != nil {
				fp.Status = StatusError
				m.FailedFiles++
			} else {
				fp.Status = StatusComplete
				m.CompletedFiles++
			}
		}

	case AllCompleteMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// file returns the entry for index i, or false for an index outside Files.
func (m *Model) file(i int) (*FileProgress, bool) {
	if i < 0 || i >= len(m.Files) {
		return nil, false
	}
	return &m.Files[i], true
}

// View renders the UI
func (m Model) View() string {
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}
