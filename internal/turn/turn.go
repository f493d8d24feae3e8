package turn

import "github.com/fluentcare/parley/internal/audio"

type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusGenerating   Status = "generating"
	StatusSynthesizing Status = "synthesizing"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// Turn is one segmented utterance plus its processing lifecycle. Sequence
// numbers are gapless and strictly increasing per session.
type Turn struct {
	SessionID string
	Seq       uint64
	Clip      audio.Clip
	Status    Status
}
