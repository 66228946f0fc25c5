package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/cli"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/ui"
)

// ProcessCmd denoises files.
type ProcessCmd struct {
	Pipeline PipelineFlags `embed:""`

	Output   string   `short:"o" help:"Output file, or directory for several inputs. \"-\" writes to stdout." placeholder:"path"`
	Suffix   string   `help:"Suffix added before the extension of generated output names." default:".clean"`
	Parallel int      `short:"p" help:"Number of files processed at once." default:"1"`
	Stats    bool     `short:"s" help:"Print a statistics report per file."`
	Plain    bool     `help:"Log progress lines instead of the interactive UI."`
	Files    []string `arg:"" name:"files" help:"Raw little-endian 16-bit PCM files; \"-\" reads stdin."`
}

// Run processes every file and prints the optional statistics reports.
func (c *ProcessCmd) Run(rt *runtime) error {
	p, err := c.Pipeline.pipeline(rt.cfg.Pipeline)
	if err != nil {
		return err
	}
	jobs, err := buildJobs(c.Files, c.Output, c.Suffix)
	if err != nil {
		return err
	}

	// The UI needs the terminal for both key input and drawing.
	stdio := slices.ContainsFunc(jobs, func(j app.Job) bool { return j.Input == "-" || j.Output == "-" })
	tui := !c.Plain && !stdio && isatty.IsTerminal(os.Stdout.Fd())

	var outcomes []app.Outcome
	if tui {
		outcomes, err = c.runTUI(rt.ctx, rt, p, jobs)
	} else {
		sm := newFileSessionManager(rt)
		a := app.New(sm, p,
			app.WithParallel(c.Parallel),
			app.WithEventHandler(ui.PlainHandler(slog.Default(), jobs)),
		)
		outcomes, err = a.Process(rt.ctx, jobs)
	}

	if c.Stats || p.Stats {
		var w io.Writer = os.Stdout
		if stdio {
			w = os.Stderr
		}
		for _, o := range outcomes {
			if o.Err == nil {
				cli.PrintStats(w, o.Job.Input, o.Stats)
			}
		}
	}
	return err
}

// runTUI runs the batch behind the bubbletea progress view. Logging is
// silenced below Error while the view owns the terminal.
func (c *ProcessCmd) runTUI(ctx context.Context, rt *runtime, p config.PipelineConfig, jobs []app.Job) ([]app.Outcome, error) {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer slog.SetDefault(prev)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(ui.NewModel(jobs), tea.WithContext(ctx))
	sm := newFileSessionManager(rt)
	a := app.New(sm, p,
		app.WithParallel(c.Parallel),
		app.WithEventHandler(ui.EventHandler(prog)),
	)

	var (
		outcomes []app.Outcome
		procErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		outcomes, procErr = a.Process(ctx, jobs)
		prog.Send(ui.AllCompleteMsg{})
	}()

	final, err := prog.Run()
	cancel()
	<-done

	if m, ok := final.(ui.Model); ok && m.Cancelled {
		return outcomes, context.Canceled
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return outcomes, fmt.Errorf("ui: %w", err)
	}
	return outcomes, procErr
}

func newFileSessionManager(rt *runtime) *app.SessionManager {
	return app.NewSessionManager(app.SessionManagerConfig{
		Registry: rt.registry,
		Resolver: resolveModel,
	})
}

// buildJobs pairs every input with its output path.
func buildJobs(inputs []string, output, suffix string) ([]app.Job, error) {
	if len(inputs) > 1 && output == "-" {
		return nil, errors.New("--output - accepts a single input")
	}
	dir := output != "" && output != "-" && isDir(output)
	if len(inputs) > 1 && output != "" && !dir {
		return nil, fmt.Errorf("--output %q must be a directory when processing several files", output)
	}

	jobs := make([]app.Job, 0, len(inputs))
	for _, in := range inputs {
		var out string
		switch {
		case output == "-" || (in == "-" && output == ""):
			out = "-"
		case in == "-":
			if dir {
				return nil, errors.New("stdin input needs an output file, not a directory")
			}
			out = output
		case dir:
			out = filepath.Join(output, withSuffix(filepath.Base(in), suffix))
		case output != "":
			out = output
		default:
			out = withSuffix(in, suffix)
		}
		if out != "-" && out == in {
			return nil, fmt.Errorf("output %q would overwrite its input", out)
		}
		jobs = append(jobs, app.Job{Input: in, Output: out})
	}
	return jobs, nil
}

// withSuffix inserts suffix before the extension of path.
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
