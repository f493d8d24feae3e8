package transcriber

import (
	"context"
	"time"

	"github.com/fluentcare/parley/internal/audio"
)

// SegmentTiming is a per-segment timestamp pair inside one recognized clip.
type SegmentTiming struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type Transcription struct {
	Text       string
	Confidence float64
	Segments   []SegmentTiming
}

// Transcriber converts one utterance clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, language string) (Transcription, error)
}
