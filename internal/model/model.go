// Package model resolves model references given on the command line or in
// configuration to a path the noise-suppression engine can load.
//
// A reference is either a preset name (case-insensitive) or a file path.
// Paths may start with "~" for the user's home directory and must name a
// readable, non-empty regular file.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Preset identifies a model source.
type Preset int

const (
	// PresetEmbedded is the engine's built-in model.
	PresetEmbedded Preset = iota

	// PresetCustom is a user-supplied model file.
	PresetCustom
)

func (p Preset) String() string {
	switch p {
	case PresetEmbedded:
		return "embedded"
	case PresetCustom:
		return "custom"
	default:
		return fmt.Sprintf("Preset(%d)", int(p))
	}
}

// Info describes a preset for listings.
type Info struct {
	Preset      Preset
	Name        string
	Description string
	Usage       string
}

var presets = []Info{
	{
		Preset:      PresetEmbedded,
		Name:        "embedded",
		Description: "Built-in model of the selected engine (default)",
		Usage:       "--model=embedded",
	},
	{
		Preset:      PresetCustom,
		Name:        "custom",
		Description: "Model file for the selected engine (rnnoise weights blob or gate YAML)",
		Usage:       "--model=/path/to/model.bin",
	},
}

// Presets returns every known preset in display order.
func Presets() []Info {
	out := make([]Info, len(presets))
	copy(out, presets)
	return out
}

// PresetFromName maps a reference to its preset. Empty and "embedded" (in any
// case) select PresetEmbedded; everything else is a custom path.
func PresetFromName(name string) Preset {
	if name == "" || strings.EqualFold(name, "embedded") {
		return PresetEmbedded
	}
	return PresetCustom
}

var (
	// ErrNotFound is returned when a model file does not exist or cannot be
	// read.
	ErrNotFound = errors.New("model file not found")

	// ErrNotRegular is returned when the path is a directory or device.
	ErrNotRegular = errors.New("model path is not a regular file")

	// ErrEmpty is returned for zero-length model files.
	ErrEmpty = errors.New("model file is empty")

	// ErrNoHome is returned when a "~" path cannot be expanded.
	ErrNoHome = errors.New("cannot expand ~: HOME not set")
)

// ExpandHome replaces a leading "~" with $HOME.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", ErrNoHome
	}
	return home + path[1:], nil
}

// Validate checks that path (after "~" expansion) is a readable, non-empty
// regular file.
func Validate(path string) error {
	p, err := ExpandHome(path)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, p, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, p, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, p)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmpty, p)
	}
	return nil
}

// Resolve maps a reference to the path passed to the engine. The embedded
// preset resolves to "". Custom paths are expanded, validated and made
// absolute.
func Resolve(ref string) (string, error) {
	if PresetFromName(ref) == PresetEmbedded {
		return "", nil
	}
	if err := Validate(ref); err != nil {
		return "", err
	}
	p, _ := ExpandHome(ref)
	abs, err := filepath.Abs(p)
	if err != nil {
		return p, nil
	}
	return abs, nil
}
