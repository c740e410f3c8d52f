package api

import (
	"context"
	"sync"
)

// refreshGate guarantees at most one refresh call is in flight for the
// whole client. The first caller becomes the leader and executes fn;
// everyone arriving while it runs queues up and receives the leader's
// result. Waiters are signaled in enqueue order after the refresh settles.
type refreshGate struct {
	mu       sync.Mutex
	inflight bool
	waiters  []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// run executes fn single-flight and returns the new access token.
func (g *refreshGate) run(ctx context.Context, fn func() (string, error)) (string, error) {
	g.mu.Lock()
	if g.inflight {
		ch := make(chan refreshResult, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()
		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.inflight = true
	g.mu.Unlock()

	token, err := fn()

	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.inflight = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	return token, err
}
