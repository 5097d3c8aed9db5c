// Package bus fans companion events out to front-ends. Slow subscribers
// drop events rather than stall the publisher.
package bus

import (
	"sync"
	"time"
)

// Event kinds published by the core.
const (
	KindMessage     = "message"
	KindMood        = "mood"
	KindLevelUp     = "level_up"
	KindThought     = "thought"
	KindBattery     = "battery"
	KindScreensaver = "screensaver"
)

// Event is one observable moment in the companion's life.
type Event struct {
	Kind string         `json:"kind"`
	Face string         `json:"face,omitempty"`
	Text string         `json:"text,omitempty"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

const subscriberBuffer = 16

// Bus is a fan-out publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers an event to every subscriber without blocking; a full
// subscriber misses it.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns an event channel and its cancel function. Cancel is
// idempotent.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
