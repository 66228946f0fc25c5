// Package resample provides streaming sample-rate converters for interleaved
// 16-bit PCM.
//
// Every [Resampler] keeps its filter history across calls, so a stream must
// be fed through a single instance in order. Output that does not fit the
// caller's buffer is retained and returned first on the next call.
//
// Two engines are available:
//   - [Linear]: stateful linear interpolation with exact integer phase
//     tracking. No look-ahead, lowest CPU. Selected by quality 0.
//   - [Soxr]: polyphase FIR resampling via the pure Go port of libsoxr.
//     Selected by quality 1..10.
//
// Example:
//
//	r, err := resample.New(1, 24000, 48000, resample.DefaultQuality)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	consumed, produced, err := r.Process(in, out)
package resample
