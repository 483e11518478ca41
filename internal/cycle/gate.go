package cycle

import (
	"context"
	"sync"
)

// Gate is the operator's pause token. Any goroutine may request a pause or a
// resume; the controller only honours it at its checkpoint before each entity,
// so an entity in flight always finishes first. A nil *Gate never pauses.
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewGate() *Gate { return &Gate{} }

// Pause asks the controller to stop at its next checkpoint.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

// Resume releases a pending or active pause.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

// Paused reports whether a pause is pending or active.
func (g *Gate) Paused() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Checkpoint returns at once when no pause is requested. Otherwise it calls
// onSuspend (if set) and blocks until Resume or until ctx is done.
func (g *Gate) Checkpoint(ctx context.Context, onSuspend func()) error {
	if g == nil {
		return ctx.Err()
	}
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return ctx.Err()
	}
	ch := g.resume
	g.mu.Unlock()

	if onSuspend != nil {
		onSuspend()
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
