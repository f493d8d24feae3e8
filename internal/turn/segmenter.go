package turn

import (
	"log/slog"
	"time"

	"github.com/fluentcare/parley/internal/audio"
)

type SegmenterConfig struct {
	SessionID  string
	SampleRate int

	// An utterance boundary is declared after the RMS level stays below
	// Threshold for HoldTime, or at MaxTurnDuration regardless of level.
	Threshold       float64
	HoldTime        time.Duration
	MinTurnDuration time.Duration
	MaxTurnDuration time.Duration
}

// Segmenter buffers inbound PCM frames and cuts them into Turns at detected
// utterance boundaries. It is not safe for concurrent use: callers must
// serialize Push and Flush.
type Segmenter struct {
	cfg SegmenterConfig

	buf        []int16
	inSpeech   bool
	silence    time.Duration
	consumed   time.Duration
	turnStart  time.Duration
	nextSeq    uint64
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// NextSeq returns the sequence number the next emitted Turn will carry.
func (s *Segmenter) NextSeq() uint64 {
	return s.nextSeq
}

// Push consumes one PCM frame and returns a completed Turn when the frame
// closes an utterance, or nil otherwise.
func (s *Segmenter) Push(frame []int16) *Turn {
	if len(frame) == 0 {
		return nil
	}
	frameDur := time.Duration(len(frame)) * time.Second / time.Duration(s.cfg.SampleRate)
	level := audio.RMS(frame)
	s.consumed += frameDur

	if !s.inSpeech {
		if level < s.cfg.Threshold {
			return nil
		}
		s.inSpeech = true
		s.silence = 0
		s.turnStart = s.consumed - frameDur
		s.buf = append(s.buf[:0], frame...)
		return nil
	}

	s.buf = append(s.buf, frame...)
	if level < s.cfg.Threshold {
		s.silence += frameDur
	} else {
		s.silence = 0
	}

	buffered := time.Duration(len(s.buf)) * time.Second / time.Duration(s.cfg.SampleRate)
	if s.silence >= s.cfg.HoldTime {
		return s.closeTurn(buffered - s.silence)
	}
	if buffered >= s.cfg.MaxTurnDuration {
		// Forced boundary to bound pipeline latency and buffer growth.
		return s.closeTurn(buffered)
	}
	return nil
}

// Flush force-closes any open utterance, used on explicit session end.
func (s *Segmenter) Flush() *Turn {
	if !s.inSpeech {
		return nil
	}
	buffered := time.Duration(len(s.buf)) * time.Second / time.Duration(s.cfg.SampleRate)
	return s.closeTurn(buffered - s.silence)
}

func (s *Segmenter) closeTurn(voiced time.Duration) *Turn {
	defer s.reset()

	if voiced < s.cfg.MinTurnDuration {
		// Noise burst. Discarded without consuming a sequence number.
		slog.Debug("segmenter discarded degenerate turn",
			"session_id", s.cfg.SessionID, "voiced_ms", voiced.Milliseconds())
		return nil
	}

	samples := make([]int16, len(s.buf))
	copy(samples, s.buf)
	t := &Turn{
		SessionID: s.cfg.SessionID,
		Seq:       s.nextSeq,
		Status:    StatusPending,
		Clip: audio.Clip{
			Samples:    samples,
			SampleRate: s.cfg.SampleRate,
			Start:      s.turnStart,
			End:        s.consumed,
		},
	}
	s.nextSeq++
	return t
}

func (s *Segmenter) reset() {
	s.buf = s.buf[:0]
	s.inSpeech = false
	s.silence = 0
}
