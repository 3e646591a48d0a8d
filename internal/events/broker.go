// Package events fans session state changes out to subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/observability"
)

// Bus is a publisher that clients can also subscribe to.
type Bus interface {
	domain.Publisher
	// Subscribe returns a channel of events and a function that ends the subscription.
	Subscribe(ctx context.Context) (<-chan domain.StreamEvent, func(), error)
	Close() error
}

// Stamp fills in the ID and timestamp of an event if they are unset.
func Stamp(event domain.StreamEvent) domain.StreamEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// Broker is an in-process Bus. Publish never blocks; events for a subscriber
// whose buffer is full are dropped.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.StreamEvent
	nextID int
	buffer int
	closed bool
	logger *observability.Logger
}

// NewBroker creates a broker with the given per-subscriber buffer.
func NewBroker(buffer int, logger *observability.Logger) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Broker{
		subs:   make(map[int]chan domain.StreamEvent),
		buffer: buffer,
		logger: logger.WithOperation("events"),
	}
}

// Publish delivers the event to every current subscriber.
func (b *Broker) Publish(ctx context.Context, event domain.StreamEvent) error {
	event = Stamp(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return domain.StateError("broker is closed", nil)
	}

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Msg("subscriber channel full, event dropped")
		}
	}
	return nil
}

// Subscribe registers a subscriber. The subscription also ends when ctx is done.
func (b *Broker) Subscribe(ctx context.Context) (<-chan domain.StreamEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, domain.StateError("broker is closed", nil)
	}

	id := b.nextID
	b.nextID++
	ch := make(chan domain.StreamEvent, b.buffer)
	b.subs[id] = ch

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return ch, cancel, nil
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
