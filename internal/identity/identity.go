package identity

import "context"

// Verifier checks an opaque, time-bounded token and extracts the user
// identifier. The engine trusts a verified token and nothing else in it.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
