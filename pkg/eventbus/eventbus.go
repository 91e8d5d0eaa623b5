// Package eventbus distributes incident lifecycle events to in-process
// subscribers, feeding the live operator stream without coupling the
// aggregation core to any transport.
package eventbus

import (
	"sync"
	"time"
)

// Event types published by the aggregation core.
const (
	TypeIncidentCreated  = "incident.created"
	TypeIncidentRecurred = "incident.recurred"
	TypeDetailServed     = "detail.served"
)

// Event is one incident lifecycle notification.
type Event struct {
	Type  string    `json:"type"`
	Ref   string    `json:"ref"`
	Title string    `json:"title,omitempty"`
	Count int64     `json:"count,omitempty"`
	Time  time.Time `json:"time"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// that falls behind loses events rather than stalling a report call.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
}

// New creates an event bus. bufferSize is the per-subscriber channel depth;
// values below 1 get a sane default.
func New(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &Bus{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if ch, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(ch)
			}
		})
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Bus) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; drop rather than block the reporter.
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
