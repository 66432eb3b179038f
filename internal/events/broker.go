package events

import (
	"context"
	"sync"
)

type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // requestID -> set of channels
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(requestID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[requestID] == nil {
		b.subs[requestID] = map[chan Event]struct{}{}
	}
	b.subs[requestID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(requestID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[requestID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, requestID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *MemoryBroker) Publish(_ context.Context, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[evt.RequestID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
