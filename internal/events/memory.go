package events

import (
	"context"
	"fmt"
	"sync"
)

// MemorySink captures events in memory for tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
	closed bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("sink closed")
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of everything published so far.
func (m *MemorySink) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset clears captured events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
