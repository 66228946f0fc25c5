package denoise

import "time"

// Stats is a point-in-time view of a [Denoiser]'s running statistics.
type Stats struct {
	// FramesProcessed counts completed Process calls.
	FramesProcessed int

	// SpeechFrames counts frames whose score reached the VAD threshold.
	SpeechFrames int

	// SpeechPercent is 100 * SpeechFrames / FramesProcessed.
	SpeechPercent float64

	// VADAvg, VADMin and VADMax summarise the combined per-frame scores.
	VADAvg float64
	VADMin float32
	VADMax float32

	// ProcessingTotal is the summed wall time spent inside Process.
	ProcessingTotal time.Duration

	// ProcessingAvg is ProcessingTotal / FramesProcessed.
	ProcessingAvg time.Duration

	// ProcessingLast is the wall time of the most recent frame.
	ProcessingLast time.Duration
}

// accumulator is mutated only by the goroutine driving Process, after a
// frame has fully completed.
type accumulator struct {
	frames int
	speech int
	sum    float64
	min    float32
	max    float32
	total  time.Duration
	last   time.Duration
}

func newAccumulator() accumulator {
	return accumulator{min: 1, max: 0}
}

func (a *accumulator) add(score float32, speech bool, elapsed time.Duration) {
	a.frames++
	a.sum += float64(score)
	if speech {
		a.speech++
	}
	if score < a.min {
		a.min = score
	}
	if score > a.max {
		a.max = score
	}
	a.total += elapsed
	a.last = elapsed
}

// snapshot derives averages. With no frames every field is zero.
func (a *accumulator) snapshot() Stats {
	if a.frames == 0 {
		return Stats{}
	}
	n := float64(a.frames)
	return Stats{
		FramesProcessed: a.frames,
		SpeechFrames:    a.speech,
		SpeechPercent:   100 * float64(a.speech) / n,
		VADAvg:          a.sum / n,
		VADMin:          a.min,
		VADMax:          a.max,
		ProcessingTotal: a.total,
		ProcessingAvg:   a.total / time.Duration(a.frames),
		ProcessingLast:  a.last,
	}
}
