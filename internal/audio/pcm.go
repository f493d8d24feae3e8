package audio

import (
	"math"
	"time"
)

// Clip is a contiguous run of mono PCM samples cut out of a session's
// inbound audio, with offsets relative to the session start.
type Clip struct {
	Samples    []int16
	SampleRate int
	Start      time.Duration
	End        time.Duration
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// RMS returns the root-mean-square level of the samples normalized to 0..1.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) / math.MaxInt16
}

// EncodePCM16 converts samples to little-endian 16-bit PCM bytes, the wire
// format expected by the transcription provider.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
