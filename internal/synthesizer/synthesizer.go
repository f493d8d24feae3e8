package synthesizer

import "context"

// Synthesizer converts reply text to an encoded audio clip ready for
// playback on the transport.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
