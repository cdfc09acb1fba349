// Package events fans solve progress out to SSE and WebSocket subscribers.
package events

import (
	"sync"

	"carevrp/internal/model"
)

// Broker delivers events published for a solve id to its subscribers.
// Publish never blocks; slow subscribers miss events.
type Broker interface {
	Subscribe(solveID string) chan model.Event
	Unsubscribe(solveID string, ch chan model.Event)
	Publish(solveID string, evt model.Event)
}

// Memory is the in-process broker used when REDIS_URL is unset.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{} // solveId -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan model.Event]struct{}{}}
}

func (b *Memory) Subscribe(solveID string) chan model.Event {
	ch := make(chan model.Event, 16)
	b.mu.Lock()
	if b.subs[solveID] == nil {
		b.subs[solveID] = map[chan model.Event]struct{}{}
	}
	b.subs[solveID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(solveID string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[solveID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, solveID)
	}
	close(ch)
}

func (b *Memory) Publish(solveID string, evt model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[solveID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
