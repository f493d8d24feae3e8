package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fluentcare/parley/internal/admission"
	"github.com/fluentcare/parley/internal/analysis"
	"github.com/fluentcare/parley/internal/audio"
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/repository"
	"github.com/fluentcare/parley/internal/responder"
	"github.com/fluentcare/parley/internal/transcriber"
	"github.com/fluentcare/parley/internal/transport"
	"github.com/fluentcare/parley/internal/webhook"
)

type mockRepository struct {
	mu             sync.Mutex
	scenario       *repository.Scenario
	runningSession *repository.Session
	sessions       map[string]*repository.Session

	createInputs   []repository.CreateSessionInput
	completeInputs []repository.CompleteSessionInput
	transcripts    map[string][]repository.TranscriptMessage
	analyses       map[string]repository.AnalysisRecord
	touchCount     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		scenario: &repository.Scenario{
			ID:            "scenario-1",
			Title:         "at the pharmacy",
			PersonaPrompt: "you are a pharmacist",
			Language:      "en-US",
			Voice:         "Kore",
		},
		sessions:    make(map[string]*repository.Session),
		transcripts: make(map[string][]repository.TranscriptMessage),
		analyses:    make(map[string]repository.AnalysisRecord),
	}
}

func (m *mockRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createInputs = append(m.createInputs, input)
	s := &repository.Session{
		ID:         input.SessionID,
		UserID:     input.UserID,
		ScenarioID: input.ScenarioID,
		Status:     repository.SessionStatusRunning,
		StartedAt:  input.StartedAt,
	}
	m.sessions[input.SessionID] = s
	return s, nil
}

func (m *mockRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeInputs = append(m.completeInputs, input)
	if s, ok := m.sessions[input.SessionID]; ok {
		s.Status = repository.SessionStatusCompleted
		s.EndReason = input.EndReason
	}
	return nil
}

func (m *mockRepository) GetSession(_ context.Context, sessionID string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

func (m *mockRepository) TouchSessionActivity(_ context.Context, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchCount++
	return nil
}

func (m *mockRepository) GetRunningSessionByUserScenario(_ context.Context, _, _ string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningSession, nil
}

func (m *mockRepository) GetScenario(_ context.Context, _ string) (*repository.Scenario, error) {
	return m.scenario, nil
}

func (m *mockRepository) SaveTranscript(_ context.Context, sessionID string, messages []repository.TranscriptMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[sessionID] = messages
	return nil
}

func (m *mockRepository) ListTranscriptBySessionID(_ context.Context, sessionID string) ([]repository.TranscriptMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcripts[sessionID], nil
}

func (m *mockRepository) SaveAnalysis(_ context.Context, record repository.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[record.SessionID] = record
	return nil
}

func (m *mockRepository) GetAnalysis(_ context.Context, sessionID string) (*repository.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.analyses[sessionID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *mockRepository) savedTranscript(sessionID string) []repository.TranscriptMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcripts[sessionID]
}

func (m *mockRepository) completions() []repository.CompleteSessionInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.CompleteSessionInput, len(m.completeInputs))
	copy(out, m.completeInputs)
	return out
}

type mockChannel struct {
	mu     sync.Mutex
	events []transport.Event
	audio  [][]byte
	closed bool
}

func (c *mockChannel) SendAudio(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, data)
	return nil
}

func (c *mockChannel) SendEvent(_ context.Context, ev transport.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *mockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockChannel) audioSends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio)
}

func (c *mockChannel) messageEvents() []transport.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []transport.Event
	for _, ev := range c.events {
		if ev.Type == transport.EventMessage {
			out = append(out, ev)
		}
	}
	return out
}

type mockTranscriber struct{}

func (mockTranscriber) Transcribe(_ context.Context, _ audio.Clip, _ string) (transcriber.Transcription, error) {
	return transcriber.Transcription{Text: "hello there", Confidence: 0.9}, nil
}

type mockResponder struct{}

func (mockResponder) Respond(_ context.Context, req responder.Request) (responder.Reply, error) {
	return responder.Reply{Text: "and how can I help you today"}, nil
}

type mockSynthesizer struct{}

func (mockSynthesizer) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	return []byte("pcm:" + text), nil
}

type mockWebhookSender struct {
	mu       sync.Mutex
	payloads []webhook.AnalysisPayload
}

func (s *mockWebhookSender) SendAnalysis(_ context.Context, payload webhook.AnalysisPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

type mockRecorder struct {
	mu       sync.Mutex
	started  int
	ended    map[string]int
	rejected int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{ended: make(map[string]int)}
}

func (r *mockRecorder) RecordTransition(Transition)           {}
func (r *mockRecorder) RecordRejectedEvent(Event)             {}
func (r *mockRecorder) TurnCompleted(string)                  {}
func (r *mockRecorder) StageFailure(string)                   {}
func (r *mockRecorder) StageDuration(string, time.Duration)   {}
func (r *mockRecorder) AnalysisRun(string)                    {}

func (r *mockRecorder) SessionStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *mockRecorder) SessionEnded(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[reason]++
}

func (r *mockRecorder) TurnRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

const (
	managerSampleRate = 16000
	managerFrameSize  = managerSampleRate / 50 // 20ms
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                      "development",
		DefaultLanguage:          "en-US",
		GeminiTTSVoice:           "Kore",
		SampleRate:               managerSampleRate,
		ResumeWindowSeconds:      1,
		MaxSessionsPerUser:       1,
		MaxGlobalPipelines:       8,
		AdmissionQueueLength:     8,
		MaxTurnsInFlight:         2,
		ContextWindowSize:        12,
		VADThreshold:             0.01,
		VADHoldMs:                60,
		MinTurnMs:                40,
		MaxTurnSeconds:           5,
		TranscribeTimeoutSeconds: 2,
		GenerateTimeoutSeconds:   2,
		SynthesizeTimeoutSeconds: 2,
	}
}

type managerFixture struct {
	manager  *Manager
	repo     *mockRepository
	hook     *mockWebhookSender
	recorder *mockRecorder
}

func newManagerFixture(cfg *config.Config) *managerFixture {
	repo := newMockRepository()
	hook := &mockWebhookSender{}
	recorder := newMockRecorder()
	manager := NewManager(
		cfg, repo,
		admission.NewController(cfg.MaxGlobalPipelines, cfg.AdmissionQueueLength, cfg.MaxSessionsPerUser),
		mockTranscriber{}, mockResponder{}, mockSynthesizer{},
		analysis.NewAnalyzer(), hook, recorder,
	)
	return &managerFixture{manager: manager, repo: repo, hook: hook, recorder: recorder}
}

func speakUtterance(m *Manager, sessionID string) {
	loud := make([]int16, managerFrameSize)
	for i := range loud {
		loud[i] = 8000
	}
	silent := make([]int16, managerFrameSize)
	for i := 0; i < 5; i++ {
		m.OnAudioFrame(sessionID, loud)
	}
	for i := 0; i < 3; i++ {
		m.OnAudioFrame(sessionID, silent)
	}
}

func TestManager_FullConversationFlow(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if result.State.Session != SessionActive {
		t.Fatalf("expected active session, got %s", result.State.Session)
	}

	ch := &mockChannel{}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", ch); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := f.manager.OnControl(ctx, result.SessionID, transport.ControlRecordStart); err != nil {
		t.Fatalf("record start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		speakUtterance(f.manager, result.SessionID)
	}

	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end session failed: %v", err)
	}

	// Three turns produce six transcript messages with gapless sequence
	// numbers, alternating speakers.
	transcript := f.repo.savedTranscript(result.SessionID)
	if len(transcript) != 6 {
		t.Fatalf("expected 6 transcript messages, got %d", len(transcript))
	}
	for i, msg := range transcript {
		if msg.Seq != uint64(i) {
			t.Fatalf("message %d has seq %d", i, msg.Seq)
		}
		wantSpeaker := "user"
		if i%2 == 1 {
			wantSpeaker = "counterpart"
		}
		if msg.Speaker != wantSpeaker {
			t.Fatalf("message %d: expected speaker %s, got %s", i, wantSpeaker, msg.Speaker)
		}
	}

	messages := ch.messageEvents()
	if len(messages) != 6 {
		t.Fatalf("expected 6 message events, got %d", len(messages))
	}
	for i, ev := range messages {
		if ev.Seq != uint64(i) {
			t.Fatalf("event %d carries seq %d", i, ev.Seq)
		}
	}
	if got := ch.audioSends(); got != 3 {
		t.Fatalf("expected 3 reply audio sends, got %d", got)
	}

	record, err := f.manager.GetAnalysis(ctx, result.SessionID, "user-1")
	if err != nil {
		t.Fatalf("get analysis failed: %v", err)
	}
	if record.Status != string(analysis.StatusComplete) {
		t.Fatalf("expected complete analysis, got %s", record.Status)
	}

	f.hook.mu.Lock()
	payloads := len(f.hook.payloads)
	f.hook.mu.Unlock()
	if payloads != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", payloads)
	}

	completions := f.repo.completions()
	if len(completions) != 1 || completions[0].EndReason != EndReasonUser {
		t.Fatalf("unexpected completions: %+v", completions)
	}

	// The session is gone from the registry.
	if _, err := f.manager.State(result.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after end, got %v", err)
	}
}

func TestManager_AudioDroppedWhileNotRecording(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	ch := &mockChannel{}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", ch); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	// Recording never started, so frames must be ignored.
	speakUtterance(f.manager, result.SessionID)

	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if got := f.repo.savedTranscript(result.SessionID); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(got))
	}
}

func TestManager_RecordStartRequiresConnection(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	err = f.manager.OnControl(ctx, result.SessionID, transport.ControlRecordStart)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestManager_DuplicateScenarioSessionRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionsPerUser = 5
	f := newManagerFixture(cfg)
	ctx := context.Background()

	if _, err := f.manager.StartSession(ctx, "user-1", "scenario-1"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := f.manager.StartSession(ctx, "user-1", "scenario-1"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestManager_PerUserSessionCap(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	first, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	f.repo.scenario = &repository.Scenario{ID: "scenario-2", PersonaPrompt: "another persona"}
	_, err = f.manager.StartSession(ctx, "user-1", "scenario-2")
	var tooMany *admission.TooManySessionsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManySessionsError, got %v", err)
	}
	if len(tooMany.ActiveSessionIDs) != 1 || tooMany.ActiveSessionIDs[0] != first.SessionID {
		t.Fatalf("expected active session %s, got %v", first.SessionID, tooMany.ActiveSessionIDs)
	}
}

func TestManager_OrphanSessionClosedOnStart(t *testing.T) {
	f := newManagerFixture(testConfig())
	f.repo.runningSession = &repository.Session{
		ID:         "stale-session",
		UserID:     "user-1",
		ScenarioID: "scenario-1",
		Status:     repository.SessionStatusRunning,
	}

	if _, err := f.manager.StartSession(context.Background(), "user-1", "scenario-1"); err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	completions := f.repo.completions()
	if len(completions) != 1 || completions[0].SessionID != "stale-session" || completions[0].EndReason != EndReasonOrphaned {
		t.Fatalf("expected orphan completion, got %+v", completions)
	}
}

func TestManager_ReconnectWithinResumeWindow(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	f.manager.OnDisconnect(result.SessionID, errors.New("network blip"))
	state, err := f.manager.State(result.SessionID)
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if state.Connection != ConnReconnecting {
		t.Fatalf("expected reconnecting, got %s", state.Connection)
	}

	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{}); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	state, _ = f.manager.State(result.SessionID)
	if state.Connection != ConnConnected {
		t.Fatalf("expected connected after resume, got %s", state.Connection)
	}
}

func TestManager_ResumeWindowExpiryEndsSession(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	f.manager.OnDisconnect(result.SessionID, errors.New("gone"))

	deadline := time.After(3 * time.Second)
	for {
		if _, err := f.manager.State(result.SessionID); errors.Is(err, ErrSessionNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session was not ended after the resume window")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	completions := f.repo.completions()
	if len(completions) != 1 || completions[0].EndReason != EndReasonResumeExpired {
		t.Fatalf("expected resume expiry completion, got %+v", completions)
	}
}

func TestManager_EndSessionIdempotent(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	err = f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser)
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected terminated or not found, got %v", err)
	}
}

func TestManager_GetAnalysisFallsBackToRepository(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	// Live and not ended: analysis is pending.
	record, err := f.manager.GetAnalysis(ctx, result.SessionID, "user-1")
	if err != nil {
		t.Fatalf("get analysis failed: %v", err)
	}
	if record.Status != string(analysis.StatusPending) {
		t.Fatalf("expected pending, got %s", record.Status)
	}

	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	record, err = f.manager.GetAnalysis(ctx, result.SessionID, "user-1")
	if err != nil {
		t.Fatalf("get analysis after end failed: %v", err)
	}
	if record.Status != string(analysis.StatusComplete) {
		t.Fatalf("expected complete from repository, got %s", record.Status)
	}

	if _, err := f.manager.GetAnalysis(ctx, "unknown-session", "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown session, got %v", err)
	}
}

func TestManager_ShutdownEndsAllSessions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionsPerUser = 5
	f := newManagerFixture(cfg)
	ctx := context.Background()

	first, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.repo.scenario = &repository.Scenario{ID: "scenario-2", PersonaPrompt: "p"}
	second, err := f.manager.StartSession(ctx, "user-2", "scenario-2")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	f.manager.Shutdown(ctx)

	for _, id := range []string{first.SessionID, second.SessionID} {
		if _, err := f.manager.State(id); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected session %s gone after shutdown, got %v", id, err)
		}
	}
	if got := f.recorder.ended[EndReasonShutdown]; got != 2 {
		t.Fatalf("expected 2 shutdown ends, got %d", got)
	}
}

func TestManager_OwnershipEnforced(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	if err := f.manager.OnConnect(ctx, result.SessionID, "user-2", &mockChannel{}); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on foreign connect, got %v", err)
	}
	if err := f.manager.EndSession(ctx, result.SessionID, "user-2", EndReasonUser); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on foreign end, got %v", err)
	}
	if _, err := f.manager.GetAnalysis(ctx, result.SessionID, "user-2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on foreign analysis read, got %v", err)
	}

	// The owner is unaffected by the rejected attempts.
	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("owner end failed: %v", err)
	}

	// The persisted analysis stays owner-only after the session is gone.
	if _, err := f.manager.GetAnalysis(ctx, result.SessionID, "user-2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied on persisted analysis, got %v", err)
	}
	if _, err := f.manager.GetAnalysis(ctx, result.SessionID, "user-1"); err != nil {
		t.Fatalf("owner analysis read failed: %v", err)
	}
}

func TestManager_LateReconnectGetsDistinctErrors(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	f.manager.OnDisconnect(result.SessionID, errors.New("gone"))

	deadline := time.After(3 * time.Second)
	for {
		if _, err := f.manager.State(result.SessionID); errors.Is(err, ErrSessionNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session was not ended after the resume window")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	// A reconnect after expiry is distinguishable from a bogus session ID.
	err = f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{})
	if !errors.Is(err, ErrResumeWindowExceeded) {
		t.Fatalf("expected ErrResumeWindowExceeded, got %v", err)
	}
	err = f.manager.OnConnect(ctx, "no-such-session", "user-1", &mockChannel{})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}

	// A session the user ended reports terminated instead.
	second, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if err := f.manager.EndSession(ctx, second.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	err = f.manager.OnConnect(ctx, second.SessionID, "user-1", &mockChannel{})
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
}

func TestManager_ConcurrentFramesDuringEnd(t *testing.T) {
	f := newManagerFixture(testConfig())
	ctx := context.Background()

	result, err := f.manager.StartSession(ctx, "user-1", "scenario-1")
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if err := f.manager.OnConnect(ctx, result.SessionID, "user-1", &mockChannel{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := f.manager.OnControl(ctx, result.SessionID, transport.ControlRecordStart); err != nil {
		t.Fatalf("record start failed: %v", err)
	}

	// A read loop keeps pushing frames while the session is torn down; the
	// segmenter must never see a push and the end-of-session flush at once.
	loud := make([]int16, managerFrameSize)
	for i := range loud {
		loud[i] = 8000
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				f.manager.OnAudioFrame(result.SessionID, loud)
			}
		}
	}()

	if err := f.manager.EndSession(ctx, result.SessionID, "user-1", EndReasonUser); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	close(stop)
	<-done

	if _, err := f.manager.State(result.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session gone after end, got %v", err)
	}
}
