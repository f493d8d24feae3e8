package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fluentcare/parley/internal/admission"
	"github.com/fluentcare/parley/internal/history"
	"github.com/fluentcare/parley/internal/responder"
	"github.com/fluentcare/parley/internal/synthesizer"
	"github.com/fluentcare/parley/internal/transcriber"
	"github.com/fluentcare/parley/internal/turn"
	"github.com/sethvargo/go-retry"
)

const (
	// Appended in a failed turn's sequence slot so the conversation
	// record never has a gap.
	unintelligibleAudioText = "could not understand audio"

	// Substituted when response generation fails twice; a silent
	// counterpart breaks the conversation illusion.
	fallbackReplyText = "I'm sorry, I didn't quite catch that. Could you say it again?"

	stageRetryBackoff = 250 * time.Millisecond
)

// ErrDraining rejects turn submissions after the session began shutting
// down.
var ErrDraining = errors.New("turn pipeline is draining")

type Config struct {
	SessionID      string
	Language       string
	Voice          string
	ScenarioPrompt string

	ContextWindow int
	MaxInFlight   int

	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
}

// Delivery is the in-order output of one turn, handed to the session layer
// for transport send once the sequencing gate opens.
type Delivery struct {
	Seq           uint64
	Status        turn.Status
	UserMessage   *history.Message
	ReplyMessage  *history.Message
	SystemMessage *history.Message
	ReplyAudio    []byte
}

// Recorder receives pipeline telemetry. Satisfied by internal/metrics.
type Recorder interface {
	TurnCompleted(status string)
	StageFailure(stage string)
	StageDuration(stage string, d time.Duration)
}

// Orchestrator drives each turn through transcription, response generation
// and synthesis. Stages of overlapping turns may finish in any order, but
// messages are appended to the history log strictly in turn-sequence order.
type Orchestrator struct {
	cfg      Config
	stt      transcriber.Transcriber
	resp     responder.Responder
	tts      synthesizer.Synthesizer
	log      *history.Log
	admit    *admission.Controller
	gate     *Gate
	deliver  func(Delivery)
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	slots chan struct{}
	sttMu sync.Mutex

	statusMu sync.Mutex
	statuses map[uint64]turn.Status

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

func NewOrchestrator(
	cfg Config,
	stt transcriber.Transcriber,
	resp responder.Responder,
	tts synthesizer.Synthesizer,
	log *history.Log,
	admit *admission.Controller,
	deliver func(Delivery),
	recorder Recorder,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		stt:      stt,
		resp:     resp,
		tts:      tts,
		log:      log,
		admit:    admit,
		gate:     NewGate(),
		deliver:  deliver,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, cfg.MaxInFlight),
		statuses: make(map[uint64]turn.Status),
	}
}

// Submit admits one turn into the pipeline. Beyond the global concurrency
// cap and queue it fails with admission.ErrOverloaded; the turn's sequence
// slot is still filled with a system message so sequencing stays gapless.
func (o *Orchestrator) Submit(ctx context.Context, t turn.Turn) error {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return ErrDraining
	}
	o.wg.Add(1)
	o.mu.Unlock()
	o.setStatus(t.Seq, turn.StatusPending)

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		o.clearStatus(t.Seq)
		o.wg.Done()
		return ctx.Err()
	}

	release, err := o.admit.AdmitTurn(ctx)
	if err != nil {
		if errors.Is(err, admission.ErrOverloaded) {
			// The slot was already numbered by the segmenter; fill it
			// so later turns are not stalled at the gate.
			go o.fillRejectedSlot(t)
			return err
		}
		<-o.slots
		o.clearStatus(t.Seq)
		o.wg.Done()
		return err
	}

	go o.process(t, release)
	return nil
}

// Drain refuses new turns and waits for in-flight ones to deliver.
func (o *Orchestrator) Drain() {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()
	o.wg.Wait()
	o.cancel()
}

// TurnStatus reports the processing stage of an in-flight turn. A turn that
// reached done or failed has been reduced to its messages and discarded, so
// it is no longer reported here.
func (o *Orchestrator) TurnStatus(seq uint64) (turn.Status, bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	st, ok := o.statuses[seq]
	return st, ok
}

func (o *Orchestrator) setStatus(seq uint64, st turn.Status) {
	o.statusMu.Lock()
	o.statuses[seq] = st
	o.statusMu.Unlock()
}

func (o *Orchestrator) clearStatus(seq uint64) {
	o.statusMu.Lock()
	delete(o.statuses, seq)
	o.statusMu.Unlock()
}

func (o *Orchestrator) fillRejectedSlot(t turn.Turn) {
	defer o.wg.Done()
	defer func() { <-o.slots }()
	defer o.clearStatus(t.Seq)

	if err := o.gate.Wait(o.ctx, t.Seq); err != nil {
		return
	}
	defer o.gate.Advance(t.Seq)

	msg := o.appendSystemMessage("the server is busy, please repeat your last sentence")
	o.recorder.TurnCompleted(string(turn.StatusFailed))
	o.deliver(Delivery{Seq: t.Seq, Status: turn.StatusFailed, SystemMessage: msg})
}

func (o *Orchestrator) process(t turn.Turn, release func()) {
	defer o.wg.Done()
	defer release()
	defer func() { <-o.slots }()
	defer o.clearStatus(t.Seq)

	o.setStatus(t.Seq, turn.StatusTranscribing)
	tx, err := o.runTranscribe(t)
	if err != nil {
		slog.Warn("turn transcription failed after retry",
			"session_id", o.cfg.SessionID, "turn_seq", t.Seq, "error", err)
		o.deliverFailed(t)
		return
	}
	if strings.TrimSpace(tx.Text) == "" {
		// Noise the recognizer produced nothing for. Same handling as a
		// transcription failure: the slot gets a system message.
		slog.Warn("turn transcribed to empty text",
			"session_id", o.cfg.SessionID, "turn_seq", t.Seq)
		o.deliverFailed(t)
		return
	}

	o.setStatus(t.Seq, turn.StatusGenerating)
	reply := o.runRespond(tx.Text)
	o.setStatus(t.Seq, turn.StatusSynthesizing)
	replyAudio := o.runSynthesize(reply.Text)

	if err := o.gate.Wait(o.ctx, t.Seq); err != nil {
		return
	}
	defer o.gate.Advance(t.Seq)

	now := time.Now()
	userMsg := history.Message{
		Seq:        o.log.NextSeq(),
		Speaker:    history.SpeakerUser,
		Text:       tx.Text,
		Confidence: tx.Confidence,
		SpokenAt:   now,
	}
	if err := o.log.Append(userMsg); err != nil {
		slog.Error("failed to append user message",
			"session_id", o.cfg.SessionID, "turn_seq", t.Seq, "error", err)
		return
	}
	replyMsg := history.Message{
		Seq:      o.log.NextSeq(),
		Speaker:  history.SpeakerCounterpart,
		Text:     reply.Text,
		SpokenAt: time.Now(),
	}
	if err := o.log.Append(replyMsg); err != nil {
		slog.Error("failed to append counterpart message",
			"session_id", o.cfg.SessionID, "turn_seq", t.Seq, "error", err)
		return
	}

	o.recorder.TurnCompleted(string(turn.StatusDone))
	o.deliver(Delivery{
		Seq:          t.Seq,
		Status:       turn.StatusDone,
		UserMessage:  &userMsg,
		ReplyMessage: &replyMsg,
		ReplyAudio:   replyAudio,
	})
}

func (o *Orchestrator) deliverFailed(t turn.Turn) {
	if err := o.gate.Wait(o.ctx, t.Seq); err != nil {
		return
	}
	defer o.gate.Advance(t.Seq)

	msg := o.appendSystemMessage(unintelligibleAudioText)
	o.recorder.TurnCompleted(string(turn.StatusFailed))
	o.deliver(Delivery{Seq: t.Seq, Status: turn.StatusFailed, SystemMessage: msg})
}

func (o *Orchestrator) appendSystemMessage(text string) *history.Message {
	msg := history.Message{
		Seq:      o.log.NextSeq(),
		Speaker:  history.SpeakerSystem,
		Text:     text,
		SpokenAt: time.Now(),
	}
	if err := o.log.Append(msg); err != nil {
		slog.Error("failed to append system message", "session_id", o.cfg.SessionID, "error", err)
		return nil
	}
	return &msg
}

// runTranscribe is stage 1. A session never runs two transcriptions
// concurrently; overlapping turns only interleave in stages 2 and 3.
func (o *Orchestrator) runTranscribe(t turn.Turn) (transcriber.Transcription, error) {
	o.sttMu.Lock()
	defer o.sttMu.Unlock()

	started := time.Now()
	defer func() { o.recorder.StageDuration("transcribe", time.Since(started)) }()

	var tx transcriber.Transcription
	backoff := retry.WithMaxRetries(1, retry.NewExponential(stageRetryBackoff))
	err := retry.Do(o.ctx, backoff, func(ctx context.Context) error {
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.TranscribeTimeout)
		defer cancel()
		result, err := o.stt.Transcribe(stageCtx, t.Clip, o.cfg.Language)
		if err != nil {
			o.recorder.StageFailure("transcribe")
			return retry.RetryableError(err)
		}
		tx = result
		return nil
	})
	return tx, err
}

// runRespond is stage 2. On failure after one retry it substitutes the
// fallback reply instead of aborting the turn.
func (o *Orchestrator) runRespond(userText string) responder.Reply {
	started := time.Now()
	defer func() { o.recorder.StageDuration("generate", time.Since(started)) }()

	req := responder.Request{
		ScenarioPrompt: o.cfg.ScenarioPrompt,
		UserText:       userText,
		Context:        o.log.LastN(o.cfg.ContextWindow),
	}

	var reply responder.Reply
	backoff := retry.WithMaxRetries(1, retry.NewExponential(stageRetryBackoff))
	err := retry.Do(o.ctx, backoff, func(ctx context.Context) error {
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
		defer cancel()
		result, err := o.resp.Respond(stageCtx, req)
		if err != nil {
			o.recorder.StageFailure("generate")
			return retry.RetryableError(err)
		}
		reply = result
		return nil
	})
	if err != nil {
		slog.Warn("response generation failed; substituting fallback",
			"session_id", o.cfg.SessionID, "error", err)
		return responder.Reply{Text: fallbackReplyText}
	}
	return reply
}

// runSynthesize is stage 3. Failure degrades the turn to text-only
// delivery; it is never fatal.
func (o *Orchestrator) runSynthesize(text string) []byte {
	started := time.Now()
	defer func() { o.recorder.StageDuration("synthesize", time.Since(started)) }()

	stageCtx, cancel := context.WithTimeout(o.ctx, o.cfg.SynthesizeTimeout)
	defer cancel()
	data, err := o.tts.Synthesize(stageCtx, text, o.cfg.Voice)
	if err != nil {
		o.recorder.StageFailure("synthesize")
		slog.Warn("synthesis failed; delivering text only",
			"session_id", o.cfg.SessionID, "error", err)
		return nil
	}
	return data
}
