package pipeline

import (
	"context"
	"sync"
)

// Gate serializes delivery by turn sequence number. Overlapping turns may
// finish their stages in any order, but each must wait here until every
// earlier-sequenced turn has delivered.
type Gate struct {
	mu      sync.Mutex
	next    uint64
	waiters map[uint64]chan struct{}
}

func NewGate() *Gate {
	return &Gate{waiters: make(map[uint64]chan struct{})}
}

// Wait blocks until seq is the next sequence number to deliver.
func (g *Gate) Wait(ctx context.Context, seq uint64) error {
	g.mu.Lock()
	if seq <= g.next {
		g.mu.Unlock()
		return nil
	}
	ch, ok := g.waiters[seq]
	if !ok {
		ch = make(chan struct{})
		g.waiters[seq] = ch
	}
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance marks seq delivered and wakes the waiter for seq+1, if any. Every
// admitted turn must advance its slot exactly once, success or failure, or
// all later turns stall.
func (g *Gate) Advance(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq != g.next {
		return
	}
	g.next = seq + 1
	if ch, ok := g.waiters[g.next]; ok {
		delete(g.waiters, g.next)
		close(ch)
	}
}

// Next reports the sequence number the gate is waiting to deliver.
func (g *Gate) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}
