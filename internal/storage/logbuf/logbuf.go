// Package logbuf keeps a bounded in-memory tail of run log events for
// observers that subscribe after a run started.
package logbuf

import (
	"sync"

	"github.com/aymanshehab/imgfetch/internal/entity"
)

type Buffer struct {
	mu     sync.Mutex
	events []entity.LogEvent
	max    int
}

func NewBuffer(max int) *Buffer {
	if max < 1 {
		max = 1
	}

	return &Buffer{max: max}
}

// Emit appends an event, dropping the oldest once the buffer is full.
// Implements the runner's EventSink.
func (b *Buffer) Emit(event entity.LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// Tail returns up to n most recent events, oldest first.
func (b *Buffer) Tail(n int) []entity.LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 1 || n > len(b.events) {
		n = len(b.events)
	}

	tail := make([]entity.LogEvent, n)
	copy(tail, b.events[len(b.events)-n:])

	return tail
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.events)
}
