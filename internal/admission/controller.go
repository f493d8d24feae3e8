package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrOverloaded is returned when the global pipeline cap is reached and the
// bounded wait queue is also full.
var ErrOverloaded = errors.New("pipeline admission queue is full")

// TooManySessionsError rejects a session start beyond the per-user cap. It
// names the live sessions so the caller can terminate one.
type TooManySessionsError struct {
	UserID           string
	Limit            int
	ActiveSessionIDs []string
}

func (e *TooManySessionsError) Error() string {
	return fmt.Sprintf("user %s already has %d live sessions (limit %d): %s",
		e.UserID, len(e.ActiveSessionIDs), e.Limit, strings.Join(e.ActiveSessionIDs, ", "))
}

// Controller enforces the global in-flight pipeline cap with a bounded FIFO
// wait queue, and the per-user simultaneous session cap. Its counters are
// the only state shared across sessions.
type Controller struct {
	global     *semaphore.Weighted
	queueSlots chan struct{}
	maxPerUser int

	mu             sync.Mutex
	sessionsByUser map[string]map[string]struct{}
}

func NewController(globalCap int, queueLength int, maxSessionsPerUser int) *Controller {
	return &Controller{
		global:         semaphore.NewWeighted(int64(globalCap)),
		queueSlots:     make(chan struct{}, queueLength),
		maxPerUser:     maxSessionsPerUser,
		sessionsByUser: make(map[string]map[string]struct{}),
	}
}

// AdmitSession registers a live session for the user or fails with
// TooManySessionsError. Existing sessions are untouched on rejection.
func (c *Controller) AdmitSession(userID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.sessionsByUser[userID]
	if len(live) >= c.maxPerUser {
		ids := make([]string, 0, len(live))
		for id := range live {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return &TooManySessionsError{UserID: userID, Limit: c.maxPerUser, ActiveSessionIDs: ids}
	}
	if live == nil {
		live = make(map[string]struct{})
		c.sessionsByUser[userID] = live
	}
	live[sessionID] = struct{}{}
	return nil
}

// ReleaseSession removes a session from the user's live set. Idempotent.
func (c *Controller) ReleaseSession(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.sessionsByUser[userID]
	delete(live, sessionID)
	if len(live) == 0 {
		delete(c.sessionsByUser, userID)
	}
}

// AdmitTurn acquires one global pipeline slot. If the cap is reached the
// caller waits in a bounded FIFO queue; a full queue rejects immediately
// with ErrOverloaded rather than buffering without bound. The returned
// release function decrements exactly once no matter how often it is called.
func (c *Controller) AdmitTurn(ctx context.Context) (func(), error) {
	if !c.global.TryAcquire(1) {
		select {
		case c.queueSlots <- struct{}{}:
		default:
			return nil, ErrOverloaded
		}
		err := c.global.Acquire(ctx, 1)
		<-c.queueSlots
		if err != nil {
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.global.Release(1) })
	}, nil
}

// LiveSessionCount reports the number of live sessions for a user.
func (c *Controller) LiveSessionCount(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessionsByUser[userID])
}
