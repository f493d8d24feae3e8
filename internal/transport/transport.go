package transport

import "context"

// EventType enumerates the JSON events delivered to the client alongside
// binary audio.
type EventType string

const (
	EventMessage       EventType = "message"
	EventTurnFailed    EventType = "turn_failed"
	EventSessionState  EventType = "session_state"
	EventAnalysisReady EventType = "analysis_ready"
)

// Event is one outbound control/text event on the realtime channel.
type Event struct {
	Type    EventType `json:"type"`
	Seq     uint64    `json:"seq,omitempty"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text,omitempty"`
	State   string    `json:"state,omitempty"`
}

// Channel is one live bidirectional connection for a session.
type Channel interface {
	SendAudio(ctx context.Context, data []byte) error
	SendEvent(ctx context.Context, ev Event) error
	Close() error
}

// Control identifies a client-initiated session command arriving over the
// channel.
type Control string

const (
	ControlRecordStart  Control = "record_start"
	ControlRecordPause  Control = "record_pause"
	ControlRecordResume Control = "record_resume"
	ControlRecordStop   Control = "record_stop"
	ControlPause        Control = "pause"
	ControlResume       Control = "resume"
	ControlEnd          Control = "end"
)

// SessionHooks is implemented by the session engine; the transport adapter
// calls into it as connections and frames arrive.
type SessionHooks interface {
	// OnConnect attaches a live channel to the session for the verified
	// user. It fails with the engine's taxonomy errors (unknown session,
	// terminated session, resume window exceeded, access denied).
	OnConnect(ctx context.Context, sessionID, userID string, ch Channel) error

	// OnAudioFrame delivers one decoded PCM frame. Called from the
	// connection's single read loop.
	OnAudioFrame(sessionID string, pcm []int16)

	// OnControl applies a client command.
	OnControl(ctx context.Context, sessionID string, cmd Control) error

	// OnDisconnect reports transport loss (err != nil) or clean close.
	OnDisconnect(sessionID string, err error)
}
