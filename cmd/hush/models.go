package main

import (
	"os"

	"github.com/MrWong99/hush/internal/cli"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/model"
)

// ModelsCmd lists the model presets and the engines of this build.
type ModelsCmd struct{}

// Run prints the listing. An engine counts as available when its factory
// succeeds with the built-in model.
func (c *ModelsCmd) Run(rt *runtime) error {
	names := rt.registry.Engines()
	engines := make([]cli.EngineInfo, 0, len(names))
	for _, name := range names {
		_, err := rt.registry.CreateEngine(config.PipelineConfig{Engine: name})
		engines = append(engines, cli.EngineInfo{Name: name, Err: err})
	}
	cli.PrintModels(os.Stdout, model.Presets(), engines)
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the version.
func (c *VersionCmd) Run() error {
	cli.PrintVersion(os.Stdout, version)
	return nil
}
