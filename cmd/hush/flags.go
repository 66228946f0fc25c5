package main

import (
	"errors"

	"github.com/MrWong99/hush/internal/config"
)

// PipelineFlags override the pipeline section of the config file. Zero values
// and negative sentinels leave the file value in place.
type PipelineFlags struct {
	Engine     string   `short:"e" help:"Noise suppression engine: gate, rnnoise or passthrough." placeholder:"name"`
	Fallback   []string `help:"Fallback engines tried in order when the engine cannot load its model." placeholder:"name"`
	Model      string   `short:"m" help:"Model preset or file path." placeholder:"ref"`
	Channels   int      `short:"n" help:"Interleaved channel count (1 or 2)."`
	SampleRate int      `short:"r" help:"Ingest sample rate in Hz (8000-192000)." placeholder:"hz"`
	Quality    int      `short:"q" help:"Resampler quality 0-10 when the rate is not 48000." default:"-1"`
	Threshold  float64  `short:"t" help:"VAD speech threshold 0-1." default:"-1"`
}

// apply writes every set flag into p.
func (f PipelineFlags) apply(p *config.PipelineConfig) {
	if f.Engine != "" {
		p.Engine = f.Engine
	}
	if len(f.Fallback) > 0 {
		p.FallbackEngines = f.Fallback
	}
	if f.Model != "" {
		p.Model = f.Model
	}
	if f.Channels != 0 {
		p.Channels = f.Channels
	}
	if f.SampleRate != 0 {
		p.SampleRate = f.SampleRate
	}
	if f.Quality >= 0 {
		q := f.Quality
		p.ResampleQuality = &q
	}
	if f.Threshold >= 0 {
		t := f.Threshold
		p.VADThreshold = &t
	}
}

// pipeline returns a copy of base with the flags applied, validated.
func (f PipelineFlags) pipeline(base config.PipelineConfig) (config.PipelineConfig, error) {
	p := base.Clone()
	f.apply(&p)
	return p, errors.Join(config.ValidatePipeline(p)...)
}
