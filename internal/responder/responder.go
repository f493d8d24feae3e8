package responder

import (
	"context"

	"github.com/fluentcare/parley/internal/history"
)

// Request carries one transcribed user utterance plus the bounded
// conversation context it should be answered against.
type Request struct {
	ScenarioPrompt string
	UserText       string
	Context        []history.Message
}

type Reply struct {
	Text       string
	TokensUsed int
}

// Responder generates the counterpart's reply for one turn.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}
