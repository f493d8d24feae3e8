package session

import (
	"sync"
	"time"
)

type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionActive    SessionState = "active"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
)

type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
)

type AudioState string

const (
	AudioInactive  AudioState = "inactive"
	AudioRecording AudioState = "recording"
	AudioPaused    AudioState = "paused"
)

// State is the full session state triple. It is only ever mutated through
// Machine.Apply, so an invalid combination is never observable.
type State struct {
	Session    SessionState
	Connection ConnectionState
	Audio      AudioState
}

type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventComplete Event = "complete"

	EventConnectBegin  Event = "connect_begin"
	EventConnected     Event = "connected"
	EventTransportLost Event = "transport_lost"
	EventDisconnected  Event = "disconnected"

	EventRecordStart  Event = "record_start"
	EventRecordPause  Event = "record_pause"
	EventRecordResume Event = "record_resume"
	EventRecordStop   Event = "record_stop"
)

// Transition carries the prior and new state of an accepted event. Sinks
// receive it synchronously and must not block.
type Transition struct {
	SessionID string
	Event     Event
	Prior     State
	Next      State
	At        time.Time
}

type TransitionSink func(Transition)

// Machine validates session, connection and audio transitions for one
// session. Every accepted transition is published to the registered sinks.
type Machine struct {
	mu        sync.Mutex
	sessionID string
	state     State
	sinks     []TransitionSink
}

func NewMachine(sessionID string, sinks ...TransitionSink) *Machine {
	return &Machine{
		sessionID: sessionID,
		state: State{
			Session:    SessionIdle,
			Connection: ConnDisconnected,
			Audio:      AudioInactive,
		},
		sinks: sinks,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply validates ev against the current state triple and either commits
// the transition atomically or leaves state unchanged and returns an error.
func (m *Machine) Apply(ev Event) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := nextState(m.state, ev)
	if err != nil {
		return Transition{}, err
	}
	tr := Transition{
		SessionID: m.sessionID,
		Event:     ev,
		Prior:     m.state,
		Next:      next,
		At:        time.Now(),
	}
	m.state = next
	for _, sink := range m.sinks {
		sink(tr)
	}
	return tr, nil
}

// nextState is the single (state, event) -> state table. A returned error
// means the event is rejected with no partial mutation.
func nextState(s State, ev Event) (State, error) {
	if s.Session == SessionCompleted {
		return s, ErrSessionTerminated
	}

	switch ev {
	case EventStart:
		if s.Session != SessionIdle {
			return s, ErrInvalidTransition
		}
		s.Session = SessionActive
		return s, nil

	case EventPause:
		if s.Session != SessionActive {
			return s, ErrInvalidTransition
		}
		s.Session = SessionPaused
		// Audio may not keep recording while the session is paused.
		if s.Audio == AudioRecording {
			s.Audio = AudioPaused
		}
		return s, nil

	case EventResume:
		if s.Session != SessionPaused {
			return s, ErrInvalidTransition
		}
		s.Session = SessionActive
		return s, nil

	case EventComplete:
		if s.Session != SessionActive && s.Session != SessionPaused {
			return s, ErrInvalidTransition
		}
		s.Session = SessionCompleted
		s.Audio = AudioInactive
		return s, nil

	case EventConnectBegin:
		if s.Connection != ConnDisconnected {
			return s, ErrInvalidTransition
		}
		s.Connection = ConnConnecting
		return s, nil

	case EventConnected:
		if s.Connection != ConnConnecting && s.Connection != ConnReconnecting {
			return s, ErrInvalidTransition
		}
		s.Connection = ConnConnected
		return s, nil

	case EventTransportLost:
		if s.Connection != ConnConnected {
			return s, ErrInvalidTransition
		}
		s.Connection = ConnReconnecting
		if s.Audio == AudioRecording {
			s.Audio = AudioPaused
		}
		return s, nil

	case EventDisconnected:
		if s.Connection == ConnDisconnected {
			return s, ErrInvalidTransition
		}
		s.Connection = ConnDisconnected
		s.Audio = AudioInactive
		return s, nil

	case EventRecordStart, EventRecordPause, EventRecordResume, EventRecordStop:
		return nextAudioState(s, ev)

	default:
		return s, ErrInvalidTransition
	}
}

func nextAudioState(s State, ev Event) (State, error) {
	if s.Connection != ConnConnected {
		return s, ErrNotConnected
	}

	switch ev {
	case EventRecordStart:
		if s.Session != SessionActive || s.Audio != AudioInactive {
			return s, ErrInvalidTransition
		}
		s.Audio = AudioRecording
	case EventRecordPause:
		if s.Audio != AudioRecording {
			return s, ErrInvalidTransition
		}
		s.Audio = AudioPaused
	case EventRecordResume:
		if s.Session != SessionActive || s.Audio != AudioPaused {
			return s, ErrInvalidTransition
		}
		s.Audio = AudioRecording
	case EventRecordStop:
		if s.Audio == AudioInactive {
			return s, ErrInvalidTransition
		}
		s.Audio = AudioInactive
	}
	return s, nil
}
