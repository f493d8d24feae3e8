package history

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Speaker string

const (
	SpeakerUser        Speaker = "user"
	SpeakerCounterpart Speaker = "counterpart"
	SpeakerSystem      Speaker = "system"
)

// Message is one entry in a session's conversation record. Immutable once
// appended.
type Message struct {
	SessionID  string
	Seq        uint64
	Speaker    Speaker
	Text       string
	AudioRef   string
	Confidence float64
	SpokenAt   time.Time
}

// ErrSealed is returned for appends after the session completed.
var ErrSealed = errors.New("history log is sealed")

// OutOfOrderError is returned when an append skips ahead of the next
// expected sequence number.
type OutOfOrderError struct {
	SessionID string
	Expected  uint64
	Got       uint64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order append for session %s: expected seq %d, got %d", e.SessionID, e.Expected, e.Got)
}

// Log is the append-only ordered record of one session's messages. Appends
// are idempotent on sequence number so retried deliveries are no-ops.
type Log struct {
	mu        sync.Mutex
	sessionID string
	messages  []Message
	sealed    bool
}

func NewLog(sessionID string) *Log {
	return &Log{sessionID: sessionID}
}

// Append accepts msg only at exactly the next sequence number. A duplicate
// of an already-appended sequence number is accepted and ignored.
func (l *Log) Append(msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := uint64(len(l.messages))
	switch {
	case msg.Seq < next:
		return nil
	case msg.Seq > next:
		return &OutOfOrderError{SessionID: l.sessionID, Expected: next, Got: msg.Seq}
	}
	if l.sealed {
		return ErrSealed
	}
	msg.SessionID = l.sessionID
	l.messages = append(l.messages, msg)
	return nil
}

// NextSeq returns the sequence number the next append must carry.
func (l *Log) NextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.messages))
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// LastN returns up to n most recent messages in conversation order, used
// for bounded context construction.
func (l *Log) LastN(n int) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || len(l.messages) == 0 {
		return nil
	}
	start := len(l.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(l.messages)-start)
	copy(out, l.messages[start:])
	return out
}

// Snapshot returns the full ordered transcript.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Seal stops further appends. Called once the session reaches completed.
func (l *Log) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

func (l *Log) Sealed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealed
}
