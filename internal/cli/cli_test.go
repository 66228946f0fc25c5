package cli_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/hush/internal/cli"
	"github.com/MrWong99/hush/internal/model"
	"github.com/MrWong99/hush/pkg/denoise"
)

type testCLI struct {
	Config string `short:"c" help:"Config file." placeholder:"path"`

	Process struct {
		Plain bool     `help:"Disable the progress UI."`
		Files []string `arg:"" help:"Raw PCM files."`
	} `cmd:"" help:"Denoise files."`

	Version struct{} `cmd:"" help:"Show version information."`
}

func renderHelp(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	parser, err := kong.New(&testCLI{},
		kong.Name("hush"),
		kong.Description("Real-time speech denoiser."),
		kong.Writers(&buf, &buf),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	_, _ = parser.Parse(args)
	return buf.String()
}

func TestStyledHelpPrinter_Application(t *testing.T) {
	out := renderHelp(t, "--help")
	for _, want := range []string{
		"Real-time speech denoiser.",
		"Commands:",
		"process",
		"Denoise files.",
		"version",
		"-c, --config=PATH",
		"-h, --help",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestStyledHelpPrinter_Command(t *testing.T) {
	out := renderHelp(t, "process", "--help")
	for _, want := range []string{
		"Denoise files.",
		"hush process [flags]",
		"Arguments:",
		"Raw PCM files.",
		"--plain",
		"--config", // inherited from the application
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Commands:") {
		t.Errorf("command help lists subcommands:\n%s", out)
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintStats(&buf, "take1.raw", denoise.Stats{
		FramesProcessed: 200,
		SpeechFrames:    50,
		SpeechPercent:   25,
		VADAvg:          0.4,
		VADMin:          0.05,
		VADMax:          0.98,
		ProcessingTotal: 40 * time.Millisecond,
		ProcessingAvg:   200 * time.Microsecond,
		ProcessingLast:  150 * time.Microsecond,
	})
	out := buf.String()
	for _, want := range []string{
		"take1.raw",
		"200",
		"25.0%",
		"(50 frames)",
		"0.400 / 0.050 / 0.980",
		"40.000 ms",
		"0.200 ms",
		"0.150 ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintStats(&buf, "empty.raw", denoise.Stats{VADMin: 1})
	if !strings.Contains(buf.String(), "no frames processed") {
		t.Errorf("empty stats output: %q", buf.String())
	}
}

func TestPrintVersionAndError(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintVersion(&buf, "1.2.3")
	cli.PrintError(&buf, "boom")
	out := buf.String()
	if !strings.Contains(out, "1.2.3") || !strings.Contains(out, "boom") {
		t.Errorf("output: %q", out)
	}
}

func TestFormatMillis(t *testing.T) {
	if got := cli.FormatMillis(1500 * time.Microsecond); got != "1.500 ms" {
		t.Errorf("FormatMillis: got %q, want %q", got, "1.500 ms")
	}
}

func TestPrintModels(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintModels(&buf, model.Presets(), []cli.EngineInfo{
		{Name: "gate"},
		{Name: "rnnoise", Err: errors.New("not compiled in")},
	})
	out := buf.String()
	for _, want := range []string{"embedded", "--model=/path/to/model.bin", "gate", "available", "unavailable", "not compiled in"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
