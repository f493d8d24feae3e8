package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluentcare/parley/internal/admission"
	"github.com/fluentcare/parley/internal/analysis"
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/history"
	"github.com/fluentcare/parley/internal/pipeline"
	"github.com/fluentcare/parley/internal/repository"
	"github.com/fluentcare/parley/internal/responder"
	"github.com/fluentcare/parley/internal/synthesizer"
	"github.com/fluentcare/parley/internal/transcriber"
	"github.com/fluentcare/parley/internal/transport"
	"github.com/fluentcare/parley/internal/turn"
	"github.com/fluentcare/parley/internal/webhook"
	"github.com/google/uuid"
)

// activityTouchInterval throttles last-activity writes so a steady audio
// stream does not hammer the database.
const activityTouchInterval = 10 * time.Second

// tombstoneTTL is how long an ended session's end reason is remembered so a
// late reconnect gets a specific rejection instead of "not found".
const tombstoneTTL = 10 * time.Minute

const (
	EndReasonUser          = "user_ended"
	EndReasonResumeExpired = "resume_window_expired"
	EndReasonOrphaned      = "orphaned"
	EndReasonShutdown      = "server_shutdown"
)

// Recorder receives session and pipeline telemetry. Satisfied by
// internal/metrics; it covers pipeline.Recorder so one instance serves both.
type Recorder interface {
	pipeline.Recorder
	RecordTransition(Transition)
	RecordRejectedEvent(Event)
	SessionStarted()
	SessionEnded(reason string)
	TurnRejected()
	AnalysisRun(outcome string)
}

type StartResult struct {
	SessionID string
	State     State
}

type userScenarioKey struct {
	userID     string
	scenarioID string
}

type liveSession struct {
	id         string
	userID     string
	scenarioID string
	weights    analysis.Weights

	machine *Machine
	log     *history.Log
	orch    *pipeline.Orchestrator

	// The segmenter is not safe for concurrent use; segMu serializes the
	// transport read loop's pushes against end-of-session flushes.
	segMu     sync.Mutex
	segmenter *turn.Segmenter

	mu          sync.Mutex
	channel     transport.Channel
	resumeTimer *time.Timer
	lastTouch   time.Time
	ended       bool

	analysisMu     sync.Mutex
	analysisStatus analysis.Status
	analysisResult *analysis.Result
}

func (s *liveSession) attachChannel(ch transport.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	s.channel = ch
}

func (s *liveSession) detachChannel() transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel
	s.channel = nil
	return ch
}

func (s *liveSession) currentChannel() transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *liveSession) pushFrame(pcm []int16) *turn.Turn {
	s.segMu.Lock()
	defer s.segMu.Unlock()
	return s.segmenter.Push(pcm)
}

func (s *liveSession) flushSegmenter() *turn.Turn {
	s.segMu.Lock()
	defer s.segMu.Unlock()
	return s.segmenter.Flush()
}

// Manager owns every live session: start, connect, audio intake, control
// commands, end, and the post-session analysis handoff. It implements
// transport.SessionHooks.
type Manager struct {
	cfg      *config.Config
	repo     repository.Repository
	admit    *admission.Controller
	stt      transcriber.Transcriber
	resp     responder.Responder
	tts      synthesizer.Synthesizer
	analyzer *analysis.Analyzer
	hook     webhook.Sender
	recorder Recorder

	mu             sync.Mutex
	sessions       map[string]*liveSession
	byUserScenario map[userScenarioKey]string
	tombstones     map[string]string
}

func NewManager(
	cfg *config.Config,
	repo repository.Repository,
	admit *admission.Controller,
	stt transcriber.Transcriber,
	resp responder.Responder,
	tts synthesizer.Synthesizer,
	analyzer *analysis.Analyzer,
	hook webhook.Sender,
	recorder Recorder,
) *Manager {
	return &Manager{
		cfg:            cfg,
		repo:           repo,
		admit:          admit,
		stt:            stt,
		resp:           resp,
		tts:            tts,
		analyzer:       analyzer,
		hook:           hook,
		recorder:       recorder,
		sessions:       make(map[string]*liveSession),
		byUserScenario: make(map[userScenarioKey]string),
		tombstones:     make(map[string]string),
	}
}

// StartSession creates one session for the (user, scenario) pair. A running
// database row for the same pair with no live counterpart is a leftover from
// a previous process and is closed as orphaned before the new session starts.
func (m *Manager) StartSession(ctx context.Context, userID, scenarioID string) (*StartResult, error) {
	scenario, err := m.repo.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %s: %w", scenarioID, err)
	}

	key := userScenarioKey{userID: userID, scenarioID: scenarioID}
	m.mu.Lock()
	if _, exists := m.byUserScenario[key]; exists {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.mu.Unlock()

	if err := m.recoverOrphan(ctx, userID, scenarioID); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := m.admit.AdmitSession(userID, sessionID); err != nil {
		return nil, err
	}

	if _, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		SessionID:  sessionID,
		UserID:     userID,
		ScenarioID: scenarioID,
		StartedAt:  time.Now(),
	}); err != nil {
		m.admit.ReleaseSession(userID, sessionID)
		return nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	sess := m.buildLiveSession(sessionID, userID, scenario)
	if _, err := sess.machine.Apply(EventStart); err != nil {
		m.admit.ReleaseSession(userID, sessionID)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.byUserScenario[key] = sessionID
	m.mu.Unlock()

	m.recorder.SessionStarted()
	slog.Info("session started",
		"session_id", sessionID, "user_id", userID, "scenario_id", scenarioID)
	return &StartResult{SessionID: sessionID, State: sess.machine.State()}, nil
}

func (m *Manager) recoverOrphan(ctx context.Context, userID, scenarioID string) error {
	orphan, err := m.repo.GetRunningSessionByUserScenario(ctx, userID, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to check for orphaned session: %w", err)
	}
	if orphan == nil {
		return nil
	}
	if err := m.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID: orphan.ID,
		EndedAt:   time.Now(),
		EndReason: EndReasonOrphaned,
	}); err != nil {
		return fmt.Errorf("failed to close orphaned session %s: %w", orphan.ID, err)
	}
	slog.Warn("closed orphaned session from previous run",
		"session_id", orphan.ID, "user_id", userID, "scenario_id", scenarioID)
	return nil
}

func (m *Manager) buildLiveSession(sessionID, userID string, scenario *repository.Scenario) *liveSession {
	sess := &liveSession{
		id:             sessionID,
		userID:         userID,
		scenarioID:     scenario.ID,
		weights:        scenarioWeights(scenario),
		log:            history.NewLog(sessionID),
		analysisStatus: analysis.StatusPending,
	}
	sess.machine = NewMachine(sessionID, m.recorder.RecordTransition, logTransition)
	sess.segmenter = turn.NewSegmenter(turn.SegmenterConfig{
		SessionID:       sessionID,
		SampleRate:      m.cfg.SampleRate,
		Threshold:       m.cfg.VADThreshold,
		HoldTime:        m.cfg.VADHold(),
		MinTurnDuration: m.cfg.MinTurnDuration(),
		MaxTurnDuration: m.cfg.MaxTurnDuration(),
	})

	language := scenario.Language
	if language == "" {
		language = m.cfg.DefaultLanguage
	}
	voice := scenario.Voice
	if voice == "" {
		voice = m.cfg.GeminiTTSVoice
	}
	sess.orch = pipeline.NewOrchestrator(
		pipeline.Config{
			SessionID:         sessionID,
			Language:          language,
			Voice:             voice,
			ScenarioPrompt:    scenario.PersonaPrompt,
			ContextWindow:     m.cfg.ContextWindowSize,
			MaxInFlight:       m.cfg.MaxTurnsInFlight,
			TranscribeTimeout: m.cfg.TranscribeTimeout(),
			GenerateTimeout:   m.cfg.GenerateTimeout(),
			SynthesizeTimeout: m.cfg.SynthesizeTimeout(),
		},
		m.stt, m.resp, m.tts,
		sess.log, m.admit,
		func(d pipeline.Delivery) { m.deliverTurn(sess, d) },
		m.recorder,
	)
	return sess
}

func scenarioWeights(s *repository.Scenario) analysis.Weights {
	w := analysis.Weights{
		Fluency:       s.WeightFluency,
		Pronunciation: s.WeightPronunciation,
		Vocabulary:    s.WeightVocabulary,
		Grammar:       s.WeightGrammar,
	}
	if w == (analysis.Weights{}) {
		return analysis.DefaultWeights()
	}
	return w
}

func logTransition(tr Transition) {
	slog.Debug("session state transition",
		"session_id", tr.SessionID,
		"event", string(tr.Event),
		"session_state", string(tr.Next.Session),
		"connection_state", string(tr.Next.Connection),
		"audio_state", string(tr.Next.Audio))
}

func (m *Manager) lookup(sessionID string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// endedReason reports the end reason of a recently ended session.
func (m *Manager) endedReason(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason, ok := m.tombstones[sessionID]
	return reason, ok
}

// OnConnect attaches a live channel for the verified user. A fresh
// connection walks through connecting; a connection arriving while the
// session is in reconnecting resumes it inside the resume window. A
// reconnect after the window elapsed gets ErrResumeWindowExceeded.
func (m *Manager) OnConnect(ctx context.Context, sessionID, userID string, ch transport.Channel) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		if reason, ended := m.endedReason(sessionID); ended {
			if reason == EndReasonResumeExpired {
				return ErrResumeWindowExceeded
			}
			return ErrSessionTerminated
		}
		return err
	}
	if sess.userID != userID {
		return ErrAccessDenied
	}

	state := sess.machine.State()
	if state.Connection == ConnDisconnected {
		if _, err := m.apply(sess, EventConnectBegin); err != nil {
			return err
		}
	}
	if _, err := m.apply(sess, EventConnected); err != nil {
		return err
	}

	sess.attachChannel(ch)
	m.sendStateEvent(sess)
	slog.Info("channel attached", "session_id", sessionID,
		"resumed", state.Connection == ConnReconnecting)
	return nil
}

// OnAudioFrame consumes one PCM frame from the connection read loop. Frames
// arriving while audio is not in recording are dropped.
func (m *Manager) OnAudioFrame(sessionID string, pcm []int16) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return
	}
	if sess.machine.State().Audio != AudioRecording {
		return
	}

	m.touchActivity(sess)
	if t := sess.pushFrame(pcm); t != nil {
		m.submitTurn(sess, *t)
	}
}

func (m *Manager) submitTurn(sess *liveSession, t turn.Turn) {
	err := sess.orch.Submit(context.Background(), t)
	switch {
	case err == nil:
	case errors.Is(err, admission.ErrOverloaded):
		// The pipeline fills the rejected slot with a system message; the
		// immediate event tells the client before that message delivers.
		m.recorder.TurnRejected()
		m.sendEvent(sess, transport.Event{
			Type: transport.EventTurnFailed,
			Seq:  t.Seq,
			Text: "server overloaded",
		})
	default:
		slog.Error("failed to submit turn",
			"session_id", sess.id, "turn_seq", t.Seq, "error", err)
	}
}

func (m *Manager) touchActivity(sess *liveSession) {
	sess.mu.Lock()
	now := time.Now()
	if now.Sub(sess.lastTouch) < activityTouchInterval {
		sess.mu.Unlock()
		return
	}
	sess.lastTouch = now
	sess.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.repo.TouchSessionActivity(ctx, sess.id, now); err != nil {
			slog.Warn("failed to touch session activity", "session_id", sess.id, "error", err)
		}
	}()
}

// OnControl applies one client command. Rejected commands return the
// taxonomy error unchanged so the transport can report it.
func (m *Manager) OnControl(ctx context.Context, sessionID string, cmd transport.Control) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	switch cmd {
	case transport.ControlEnd:
		// The channel was bound to the owner at connect time.
		return m.endSession(ctx, sessionID, EndReasonUser)
	case transport.ControlRecordStop:
		if _, err := m.apply(sess, EventRecordStop); err != nil {
			return err
		}
		// A stop is an explicit utterance boundary.
		if t := sess.flushSegmenter(); t != nil {
			m.submitTurn(sess, *t)
		}
		m.sendStateEvent(sess)
		return nil
	}

	ev, ok := controlEvent(cmd)
	if !ok {
		return fmt.Errorf("unknown control command %q", cmd)
	}
	if _, err := m.apply(sess, ev); err != nil {
		return err
	}
	m.sendStateEvent(sess)
	return nil
}

func controlEvent(cmd transport.Control) (Event, bool) {
	switch cmd {
	case transport.ControlRecordStart:
		return EventRecordStart, true
	case transport.ControlRecordPause:
		return EventRecordPause, true
	case transport.ControlRecordResume:
		return EventRecordResume, true
	case transport.ControlPause:
		return EventPause, true
	case transport.ControlResume:
		return EventResume, true
	default:
		return "", false
	}
}

func (m *Manager) apply(sess *liveSession, ev Event) (Transition, error) {
	tr, err := sess.machine.Apply(ev)
	if err != nil {
		m.recorder.RecordRejectedEvent(ev)
		slog.Debug("rejected state event",
			"session_id", sess.id, "event", string(ev), "error", err)
	}
	return tr, err
}

// OnDisconnect starts the resume window. If no reconnect arrives before it
// closes, the session is force-completed so its resources are not leaked.
func (m *Manager) OnDisconnect(sessionID string, cause error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return
	}

	sess.mu.Lock()
	if sess.ended {
		sess.mu.Unlock()
		return
	}
	sess.channel = nil
	sess.mu.Unlock()

	if _, err := m.apply(sess, EventTransportLost); err != nil {
		return
	}
	slog.Info("transport lost, resume window open",
		"session_id", sessionID, "window", m.cfg.ResumeWindow(), "cause", cause)

	sess.mu.Lock()
	sess.resumeTimer = time.AfterFunc(m.cfg.ResumeWindow(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.endSession(ctx, sessionID, EndReasonResumeExpired); err != nil &&
			!errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionTerminated) {
			slog.Error("failed to end expired session", "session_id", sessionID, "error", err)
		}
	})
	sess.mu.Unlock()
}

// EndSession completes the caller's session. The verified userID must match
// the session owner; anyone else gets ErrAccessDenied.
func (m *Manager) EndSession(ctx context.Context, sessionID, userID, reason string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		if _, ended := m.endedReason(sessionID); ended {
			return ErrSessionTerminated
		}
		return err
	}
	if sess.userID != userID {
		return ErrAccessDenied
	}
	return m.endSession(ctx, sessionID, reason)
}

// endSession completes the session: in-flight turns drain and deliver, the
// log seals, the transcript persists, and analysis runs. Idempotent; a
// second call returns ErrSessionTerminated.
func (m *Manager) endSession(ctx context.Context, sessionID, reason string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.ended {
		sess.mu.Unlock()
		return ErrSessionTerminated
	}
	sess.ended = true
	if sess.resumeTimer != nil {
		sess.resumeTimer.Stop()
		sess.resumeTimer = nil
	}
	sess.mu.Unlock()

	// A final partial utterance still becomes a turn before the drain.
	if t := sess.flushSegmenter(); t != nil {
		m.submitTurn(sess, *t)
	}
	sess.orch.Drain()
	sess.log.Seal()

	if _, err := sess.machine.Apply(EventComplete); err != nil &&
		!errors.Is(err, ErrSessionTerminated) {
		slog.Warn("complete event rejected", "session_id", sessionID, "error", err)
	}

	if err := m.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID: sessionID,
		EndedAt:   time.Now(),
		EndReason: reason,
	}); err != nil {
		slog.Error("failed to mark session completed", "session_id", sessionID, "error", err)
	}
	m.persistTranscript(ctx, sess)
	m.runAnalysis(ctx, sess)

	m.sendStateEvent(sess)
	if ch := sess.detachChannel(); ch != nil {
		if err := ch.Close(); err != nil {
			slog.Debug("channel close", "session_id", sessionID, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	delete(m.byUserScenario, userScenarioKey{userID: sess.userID, scenarioID: sess.scenarioID})
	m.tombstones[sessionID] = reason
	m.mu.Unlock()
	time.AfterFunc(tombstoneTTL, func() {
		m.mu.Lock()
		delete(m.tombstones, sessionID)
		m.mu.Unlock()
	})
	m.admit.ReleaseSession(sess.userID, sessionID)

	m.recorder.SessionEnded(reason)
	slog.Info("session ended",
		"session_id", sessionID, "reason", reason, "messages", sess.log.Len())
	return nil
}

func (m *Manager) persistTranscript(ctx context.Context, sess *liveSession) {
	snapshot := sess.log.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	messages := make([]repository.TranscriptMessage, len(snapshot))
	for i, msg := range snapshot {
		messages[i] = repository.TranscriptMessage{
			SessionID:  msg.SessionID,
			Seq:        msg.Seq,
			Speaker:    string(msg.Speaker),
			Text:       msg.Text,
			AudioRef:   msg.AudioRef,
			Confidence: msg.Confidence,
			SpokenAt:   msg.SpokenAt,
		}
	}
	if err := m.repo.SaveTranscript(ctx, sess.id, messages); err != nil {
		slog.Error("failed to persist transcript", "session_id", sess.id, "error", err)
	}
}

func (m *Manager) runAnalysis(ctx context.Context, sess *liveSession) {
	result, err := m.analyzer.Analyze(sess.id, sess.log.Snapshot(), sess.weights)
	if err != nil {
		slog.Error("session analysis failed", "session_id", sess.id, "error", err)
		m.recorder.AnalysisRun(string(analysis.StatusFailed))
		sess.analysisMu.Lock()
		sess.analysisStatus = analysis.StatusFailed
		sess.analysisMu.Unlock()
		m.saveAnalysisRecord(ctx, sess, nil)
		return
	}

	sess.analysisMu.Lock()
	sess.analysisStatus = analysis.StatusComplete
	sess.analysisResult = &result
	sess.analysisMu.Unlock()

	m.recorder.AnalysisRun(string(analysis.StatusComplete))
	m.saveAnalysisRecord(ctx, sess, &result)
	m.sendEvent(sess, transport.Event{Type: transport.EventAnalysisReady})
	m.sendWebhook(ctx, sess, result)
}

func (m *Manager) saveAnalysisRecord(ctx context.Context, sess *liveSession, result *analysis.Result) {
	record := repository.AnalysisRecord{
		SessionID:   sess.id,
		Status:      string(analysis.StatusFailed),
		GeneratedAt: time.Now(),
	}
	if result != nil {
		mistakesJSON, err := json.Marshal(result.Mistakes)
		if err != nil {
			slog.Error("failed to encode mistakes", "session_id", sess.id, "error", err)
		}
		record = repository.AnalysisRecord{
			SessionID:     sess.id,
			Status:        string(result.Status),
			Fluency:       result.Scores.Fluency,
			Pronunciation: result.Scores.Pronunciation,
			Vocabulary:    result.Scores.Vocabulary,
			Grammar:       result.Scores.Grammar,
			Overall:       result.Scores.Overall,
			Strengths:     result.Feedback.Strengths,
			Improvements:  result.Feedback.Improvements,
			Suggestions:   result.Feedback.Suggestions,
			MistakesJSON:  mistakesJSON,
			GeneratedAt:   result.GeneratedAt,
		}
	}
	if err := m.repo.SaveAnalysis(ctx, record); err != nil {
		slog.Error("failed to persist analysis", "session_id", sess.id, "error", err)
	}
}

func (m *Manager) sendWebhook(ctx context.Context, sess *liveSession, result analysis.Result) {
	if m.hook == nil {
		return
	}
	payload := webhook.AnalysisPayload{
		SessionID:     sess.id,
		UserID:        sess.userID,
		ScenarioID:    sess.scenarioID,
		Overall:       result.Scores.Overall,
		Fluency:       result.Scores.Fluency,
		Pronunciation: result.Scores.Pronunciation,
		Vocabulary:    result.Scores.Vocabulary,
		Grammar:       result.Scores.Grammar,
		Strengths:     result.Feedback.Strengths,
		Improvements:  result.Feedback.Improvements,
		Suggestions:   result.Feedback.Suggestions,
	}
	if err := m.hook.SendAnalysis(ctx, payload); err != nil {
		slog.Error("failed to deliver analysis webhook", "session_id", sess.id, "error", err)
	}
}

// GetAnalysis serves the analysis for the caller's own session, falling back
// to the database once the session is no longer live.
func (m *Manager) GetAnalysis(ctx context.Context, sessionID, userID string) (*repository.AnalysisRecord, error) {
	sess, err := m.lookup(sessionID)
	if err == nil {
		if sess.userID != userID {
			return nil, ErrAccessDenied
		}
		sess.analysisMu.Lock()
		defer sess.analysisMu.Unlock()
		record := &repository.AnalysisRecord{
			SessionID: sessionID,
			Status:    string(sess.analysisStatus),
		}
		if sess.analysisResult != nil {
			r := sess.analysisResult
			record.Fluency = r.Scores.Fluency
			record.Pronunciation = r.Scores.Pronunciation
			record.Vocabulary = r.Scores.Vocabulary
			record.Grammar = r.Scores.Grammar
			record.Overall = r.Scores.Overall
			record.Strengths = r.Feedback.Strengths
			record.Improvements = r.Feedback.Improvements
			record.Suggestions = r.Feedback.Suggestions
			record.GeneratedAt = r.GeneratedAt
		}
		return record, nil
	}

	row, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}
	if row.UserID != userID {
		return nil, ErrAccessDenied
	}

	record, err := m.repo.GetAnalysis(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// State reports the current state triple for a live session.
func (m *Manager) State(sessionID string) (State, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return State{}, err
	}
	return sess.machine.State(), nil
}

// Shutdown ends every live session, draining each pipeline.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.endSession(ctx, id, EndReasonShutdown); err != nil &&
			!errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionTerminated) {
			slog.Error("failed to end session during shutdown", "session_id", id, "error", err)
		}
	}
}

func (m *Manager) deliverTurn(sess *liveSession, d pipeline.Delivery) {
	ch := sess.currentChannel()
	if ch == nil {
		// Disconnected or reconnecting. Messages live in the log; nothing
		// is re-sent on resume, the client refetches the transcript.
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.SystemMessage != nil {
		m.sendEventOn(ctx, ch, sess.id, transport.Event{
			Type:    transport.EventTurnFailed,
			Seq:     d.SystemMessage.Seq,
			Speaker: string(d.SystemMessage.Speaker),
			Text:    d.SystemMessage.Text,
		})
		return
	}
	if d.UserMessage != nil {
		m.sendEventOn(ctx, ch, sess.id, transport.Event{
			Type:    transport.EventMessage,
			Seq:     d.UserMessage.Seq,
			Speaker: string(d.UserMessage.Speaker),
			Text:    d.UserMessage.Text,
		})
	}
	if d.ReplyMessage != nil {
		m.sendEventOn(ctx, ch, sess.id, transport.Event{
			Type:    transport.EventMessage,
			Seq:     d.ReplyMessage.Seq,
			Speaker: string(d.ReplyMessage.Speaker),
			Text:    d.ReplyMessage.Text,
		})
	}
	if len(d.ReplyAudio) > 0 {
		if err := ch.SendAudio(ctx, d.ReplyAudio); err != nil {
			slog.Warn("failed to send reply audio", "session_id", sess.id, "error", err)
		}
	}
}

func (m *Manager) sendStateEvent(sess *liveSession) {
	state := sess.machine.State()
	m.sendEvent(sess, transport.Event{
		Type:  transport.EventSessionState,
		State: string(state.Session) + "/" + string(state.Connection) + "/" + string(state.Audio),
	})
}

func (m *Manager) sendEvent(sess *liveSession, ev transport.Event) {
	ch := sess.currentChannel()
	if ch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.sendEventOn(ctx, ch, sess.id, ev)
}

func (m *Manager) sendEventOn(ctx context.Context, ch transport.Channel, sessionID string, ev transport.Event) {
	if err := ch.SendEvent(ctx, ev); err != nil {
		slog.Warn("failed to send event",
			"session_id", sessionID, "event_type", string(ev.Type), "error", err)
	}
}
