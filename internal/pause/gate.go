// Package pause provides the shared pause signal between the controlling
// context and the batch worker.
package pause

import (
	"context"
	"sync"
)

// Gate is a binary signal with two observable operations (Raise, Clear)
// and one blocking operation (Wait). The worker waits on it once per row
// and once per chunk write, so a pause takes effect at the next chunk or
// row boundary. Raise and Clear are idempotent.
type Gate struct {
	mu     sync.Mutex
	resume chan struct{} // closed while the gate is clear
	raised bool
}

func NewGate() *Gate {
	resume := make(chan struct{})
	close(resume)

	return &Gate{resume: resume}
}

// Raise sets the signal. Subsequent Wait calls block until Clear.
func (g *Gate) Raise() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.raised {
		return
	}

	g.raised = true
	g.resume = make(chan struct{})
}

// Clear clears the signal and releases every waiter.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.raised {
		return
	}

	g.raised = false
	close(g.resume)
}

// Raised reports whether the gate is currently set.
func (g *Gate) Raised() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.raised
}

// Wait blocks while the gate is raised and returns immediately when it is
// clear. Safe to call concurrently from the row loop and the chunk loop.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
