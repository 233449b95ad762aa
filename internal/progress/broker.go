package progress

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity. Sends never
// block: a subscriber that falls this far behind starts losing messages.
const subscriberBuffer = 256

// Subscriber receives broadcast messages over a buffered channel
type Subscriber struct {
	ID string
	ch chan Message
}

// Events returns the subscriber's receive channel
func (s *Subscriber) Events() <-chan Message {
	return s.ch
}

// Broker fans progress messages out to subscribers. It is the only
// channel between the reconciliation core and any UI layer: the core
// publishes here and never calls consumer code directly.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// NewBroker creates a broker with no subscribers
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a new subscriber under the given id, replacing any
// previous subscriber with the same id.
func (b *Broker) Subscribe(id string) *Subscriber {
	sub := &Subscriber{
		ID: id,
		ch: make(chan Message, subscriberBuffer),
	}

	b.mu.Lock()
	if prev, ok := b.subscribers[id]; ok {
		close(prev.ch)
	}
	if b.closed {
		close(sub.ch)
	} else {
		b.subscribers[id] = sub
	}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for id, sub := range b.subscribers {
			delete(b.subscribers, id)
			close(sub.ch)
		}
	}
	b.mu.Unlock()
}

// SubscriberCount returns the number of registered subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish broadcasts a message to all subscribers without blocking.
// Messages to full subscriber channels are dropped.
func (b *Broker) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// PublishProgress broadcasts the entry currently being reconciled
func (b *Broker) PublishProgress(currentItem, playlist, song string, current, total int) {
	b.Publish(Message{
		Type: TypeProgress,
		Payload: ProgressEvent{
			CurrentItem: currentItem,
			Playlist:    playlist,
			Song:        song,
			Current:     current,
			Total:       total,
			Timestamp:   time.Now().UTC(),
		},
	})
}

// PublishStatus broadcasts a run-state change
func (b *Broker) PublishStatus(isRunning bool) {
	b.Publish(Message{
		Type: TypeStatus,
		Payload: StatusEvent{
			IsRunning: isRunning,
			Timestamp: time.Now().UTC(),
		},
	})
}

// PublishComplete broadcasts the outcome of a finished run
func (b *Broker) PublishComplete(success, cancelled bool, errMsg string) {
	b.Publish(Message{
		Type: TypeComplete,
		Payload: CompleteEvent{
			Success:   success,
			Cancelled: cancelled,
			Error:     errMsg,
			Timestamp: time.Now().UTC(),
		},
	})
}
