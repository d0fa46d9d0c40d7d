// Package orchestrator throttles how many units of work run at once.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Gate admits at most a fixed number of holders at a time. Holders are
// admitted in the order they reserved their place, not the order their
// goroutines happen to reach Wait.
type Gate struct {
	limit int64
	sem   *semaphore.Weighted
	log   *zap.Logger

	mu     sync.Mutex
	queue  []*Ticket
	active int
	peak   int
}

// Ticket is a place in the gate's queue.
type Ticket struct {
	g    *Gate
	who  string
	turn chan struct{} // closed once the ticket heads the queue
}

// NewGate returns a gate with room for limit holders. A limit below one
// means unlimited.
func NewGate(limit int, l *zap.Logger) *Gate {
	if l == nil {
		l = zap.NewNop()
	}
	g := &Gate{limit: int64(limit), log: l}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
	}
	return g
}

// Reserve queues who behind every earlier reservation and returns at once.
// The ticket must be passed to Wait or Cancel.
func (g *Gate) Reserve(who string) *Ticket {
	t := &Ticket{g: g, who: who, turn: make(chan struct{})}
	g.mu.Lock()
	g.queue = append(g.queue, t)
	if len(g.queue) == 1 {
		close(t.turn)
	}
	g.mu.Unlock()
	return t
}

// Acquire reserves a place and waits for it.
func (g *Gate) Acquire(ctx context.Context, who string) error {
	return g.Reserve(who).Wait(ctx)
}

// Wait blocks until every earlier ticket was admitted or cancelled and a
// slot is free, or until ctx is done. Either way the ticket leaves the
// queue.
func (t *Ticket) Wait(ctx context.Context) error {
	g := t.g
	defer g.leave(t)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("acquire slot for %s: %w", t.who, err)
	}
	select {
	case <-t.turn:
	case <-ctx.Done():
		return fmt.Errorf("acquire slot for %s: %w", t.who, ctx.Err())
	}
	if g.sem != nil && !g.sem.TryAcquire(1) {
		g.log.Debug("waiting for slot", zap.String("holder", t.who), zap.Int64("limit", g.limit))
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire slot for %s: %w", t.who, err)
		}
	}

	g.mu.Lock()
	g.active++
	if g.active > g.peak {
		g.peak = g.active
	}
	g.mu.Unlock()
	return nil
}

// Cancel gives up the place without taking a slot.
func (t *Ticket) Cancel() {
	t.g.leave(t)
}

// leave drops t from the queue and hands the turn to the new head.
func (g *Gate) leave(t *Ticket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, q := range g.queue {
		if q != t {
			continue
		}
		g.queue = append(g.queue[:i], g.queue[i+1:]...)
		if i == 0 && len(g.queue) > 0 {
			close(g.queue[0].turn)
		}
		return
	}
}

// Queued is the number of reservations not yet admitted.
func (g *Gate) Queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()

	if g.sem != nil {
		g.sem.Release(1)
	}
}

// Active is the number of current holders.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Peak is the highest number of simultaneous holders seen.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// Limit returns the configured limit, zero when unlimited.
func (g *Gate) Limit() int {
	if g.sem == nil {
		return 0
	}
	return int(g.limit)
}
