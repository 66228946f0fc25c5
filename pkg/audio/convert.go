package audio

import (
	"encoding/binary"
	"math"
)

// Saturation bounds for float → int16 narrowing. Floats carry samples in the
// native int16 range; there is no scaling to [-1, 1].
const (
	MaxSample float32 = 32767
	MinSample float32 = -32768
)

// batchWidth is the number of samples converted per unrolled step. The tail
// of every buffer (len mod batchWidth) goes through the scalar path.
const batchWidth = 8

// ToFloat converts int16 PCM samples in src to float32 values in dst without
// rescaling. It converts min(len(dst), len(src)) samples and returns that count.
func ToFloat(dst []float32, src []int16) int {
	n := min(len(dst), len(src))
	i := 0
	for ; i+batchWidth <= n; i += batchWidth {
		s := (*[batchWidth]int16)(src[i:])
		d := (*[batchWidth]float32)(dst[i:])
		d[0] = float32(s[0])
		d[1] = float32(s[1])
		d[2] = float32(s[2])
		d[3] = float32(s[3])
		d[4] = float32(s[4])
		d[5] = float32(s[5])
		d[6] = float32(s[6])
		d[7] = float32(s[7])
	}
	toFloatScalar(dst[i:n], src[i:n])
	return n
}

// ToInt16 converts float32 samples in src to int16 PCM in dst, saturating
// values outside [MinSample, MaxSample] instead of wrapping. Fractions are
// truncated toward zero and NaN becomes silence. It converts
// min(len(dst), len(src)) samples and returns that count.
func ToInt16(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	i := 0
	for ; i+batchWidth <= n; i += batchWidth {
		s := (*[batchWidth]float32)(src[i:])
		d := (*[batchWidth]int16)(dst[i:])
		d[0] = clamp16(s[0])
		d[1] = clamp16(s[1])
		d[2] = clamp16(s[2])
		d[3] = clamp16(s[3])
		d[4] = clamp16(s[4])
		d[5] = clamp16(s[5])
		d[6] = clamp16(s[6])
		d[7] = clamp16(s[7])
	}
	toInt16Scalar(dst[i:n], src[i:n])
	return n
}

func toFloatScalar(dst []float32, src []int16) {
	for i := range min(len(dst), len(src)) {
		dst[i] = float32(src[i])
	}
}

func toInt16Scalar(dst []int16, src []float32) {
	for i := range min(len(dst), len(src)) {
		dst[i] = clamp16(src[i])
	}
}

// clamp16 is the single saturating cast shared by the batch and scalar paths.
func clamp16(v float32) int16 {
	switch {
	case v >= MaxSample:
		return 32767
	case v <= MinSample:
		return -32768
	case math.IsNaN(float64(v)):
		return 0
	}
	return int16(v)
}

// Deinterleave splits interleaved int16 PCM into one float32 buffer per
// channel. The channel count is len(dst); each dst[c] must hold at least
// len(src)/len(dst) samples.
func Deinterleave(src []int16, dst ...[]float32) {
	channels := len(dst)
	switch channels {
	case 0:
		return
	case 1:
		ToFloat(dst[0], src)
		return
	}
	frames := len(src) / channels
	for c, ch := range dst {
		ch = ch[:frames]
		for i := range ch {
			ch[i] = float32(src[i*channels+c])
		}
	}
}

// Interleave merges one float32 buffer per channel into interleaved int16
// PCM with saturation. dst must hold len(src[0])*len(src) samples.
func Interleave(dst []int16, src ...[]float32) {
	channels := len(src)
	switch channels {
	case 0:
		return
	case 1:
		ToInt16(dst, src[0])
		return
	}
	frames := len(dst) / channels
	for c, ch := range src {
		ch = ch[:frames]
		for i, v := range ch {
			dst[i*channels+c] = clamp16(v)
		}
	}
}

// DecodeS16LE decodes little-endian int16 PCM bytes into dst and returns the
// number of samples written. A trailing odd byte is ignored.
func DecodeS16LE(dst []int16, b []byte) int {
	n := min(len(dst), len(b)/2)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return n
}

// EncodeS16LE encodes samples as little-endian int16 PCM bytes into dst and
// returns the number of bytes written.
func EncodeS16LE(dst []byte, samples []int16) int {
	n := min(len(dst)/2, len(samples))
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(samples[i]))
	}
	return n * 2
}
