package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLimit(t *testing.T) {
	g := NewGate(2, nil)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(context.Background(), "worker"))
			time.Sleep(10 * time.Millisecond)
			g.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, g.Peak(), 2)
	assert.Equal(t, 0, g.Active())
	assert.Equal(t, 2, g.Limit())
}

func TestGateFIFO(t *testing.T) {
	g := NewGate(1, nil)
	require.NoError(t, g.Acquire(context.Background(), "first"))

	tickets := make([]*Ticket, 4)
	for i := range tickets {
		tickets[i] = g.Reserve("waiter")
	}
	assert.Equal(t, 4, g.Queued())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	// start the waiters in reverse so goroutine scheduling cannot help
	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, tickets[n].Wait(context.Background()))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			g.Release()
		}(i)
	}

	g.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, 0, g.Queued())
}

func TestGateCancelledTicketPassesTurn(t *testing.T) {
	g := NewGate(1, nil)
	require.NoError(t, g.Acquire(context.Background(), "holder"))

	dropped := g.Reserve("dropped")
	next := g.Reserve("next")
	dropped.Cancel()

	acquired := make(chan error, 1)
	go func() { acquired <- next.Wait(context.Background()) }()
	g.Release()

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("next ticket was not admitted")
	}
	assert.Equal(t, 1, g.Active())
	assert.Equal(t, 0, g.Queued())
}

func TestGateCancelled(t *testing.T) {
	g := NewGate(1, nil)
	require.NoError(t, g.Acquire(context.Background(), "holder"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, "late")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.Active())
}

func TestGateUnlimited(t *testing.T) {
	g := NewGate(0, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Acquire(context.Background(), "any"))
	}
	assert.Equal(t, 10, g.Active())
	assert.Equal(t, 0, g.Limit())
}
