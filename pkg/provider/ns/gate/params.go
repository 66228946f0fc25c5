package gate

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Params is the parameter set of the gate engine. A YAML file holding these
// fields is the engine's model file.
//
//	floor_rise: 0.02
//	floor_fall: 0.5
//	initial_floor_db: 40
//	silence_db: 20
//	snr_midpoint_db: 9
//	snr_slope: 0.6
//	min_gain: 0.1
//	gain_smoothing: 0.6
type Params struct {
	// FloorRise is the per-frame smoothing factor applied when the frame level
	// is above the current noise floor. Small values make the floor ignore
	// speech.
	FloorRise float64 `yaml:"floor_rise"`

	// FloorFall is the smoothing factor applied when the level drops below
	// the floor.
	FloorFall float64 `yaml:"floor_fall"`

	// InitialFloorDB is the noise floor a new session starts from, in dB
	// relative to one int16 step.
	InitialFloorDB float64 `yaml:"initial_floor_db"`

	// SilenceDB is the level below which a frame scores zero regardless of
	// the floor.
	SilenceDB float64 `yaml:"silence_db"`

	// SNRMidpointDB is the signal-to-floor ratio that scores 0.5.
	SNRMidpointDB float64 `yaml:"snr_midpoint_db"`

	// SNRSlope is the steepness of the logistic score curve per dB.
	SNRSlope float64 `yaml:"snr_slope"`

	// MinGain is the gain applied to frames scoring 0.
	MinGain float64 `yaml:"min_gain"`

	// GainSmoothing is the fraction of the previous frame's gain kept in the
	// next frame's target gain.
	GainSmoothing float64 `yaml:"gain_smoothing"`
}

// DefaultParams returns the built-in parameter set.
func DefaultParams() *Params {
	return &Params{
		FloorRise:      0.02,
		FloorFall:      0.5,
		InitialFloorDB: 40,
		SilenceDB:      20,
		SNRMidpointDB:  9,
		SNRSlope:       0.6,
		MinGain:        0.1,
		GainSmoothing:  0.6,
	}
}

// Validate reports every out-of-range field.
func (p *Params) Validate() error {
	var errs []error
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %v outside [0, 1]", name, v))
		}
	}
	unit("floor_rise", p.FloorRise)
	unit("floor_fall", p.FloorFall)
	unit("min_gain", p.MinGain)
	unit("gain_smoothing", p.GainSmoothing)
	if p.SNRSlope <= 0 {
		errs = append(errs, fmt.Errorf("snr_slope %v must be positive", p.SNRSlope))
	}
	if p.InitialFloorDB < 0 {
		errs = append(errs, fmt.Errorf("initial_floor_db %v must not be negative", p.InitialFloorDB))
	}
	return errors.Join(errs...)
}

// Close implements ns.Model. Params hold no resources.
func (p *Params) Close() error { return nil }

// LoadParams reads a YAML parameter file. Fields missing from the file keep
// their default values; unknown fields are rejected.
func LoadParams(path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gate: open params %q: %w", path, err)
	}
	defer f.Close()
	p, err := DecodeParams(f)
	if err != nil {
		return nil, fmt.Errorf("gate: params %q: %w", path, err)
	}
	return p, nil
}

// DecodeParams decodes and validates a YAML parameter set from r.
func DecodeParams(r io.Reader) (*Params, error) {
	p := DefaultParams()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
