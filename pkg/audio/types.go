package audio

import (
	"fmt"
	"time"
)

// Quantum is the duration of audio covered by one processing frame.
const Quantum = 10 * time.Millisecond

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameSamples returns the number of samples per channel in one [Quantum]
// at the format's sample rate (e.g. 480 at 48 kHz).
func (f Format) FrameSamples() int {
	return FrameSamples(f.SampleRate)
}

// FrameLen returns the number of interleaved samples in one frame.
func (f Format) FrameLen() int {
	return f.FrameSamples() * f.Channels
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FrameSamples returns the number of samples per channel in 10 ms of audio
// at rate Hz.
func FrameSamples(rate int) int {
	return rate * 10 / 1000
}
