// Package events allows for the registering and receiving of events.
package events

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// messageBuffer is the number of events a subscriber can fall behind before
// events are dropped for it. A websocket write can take a while.
const messageBuffer = 100

// Subscription represents a registered receiver of events.
type Subscription struct {
	ID string
	C  <-chan string
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	mu      sync.RWMutex
	m       map[string]chan string
	prefix  string
	dropped uint64
}

// New constructs an events for registering and receiving events. Only
// events that start with the prefix are delivered, an empty prefix
// delivers everything. The prefix is removed before delivery.
func New(prefix string) *Events {
	return &Events{
		m:      make(map[string]chan string),
		prefix: prefix,
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Subscribe.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Subscribe registers a new receiver under a unique id.
func (evt *Events) Subscribe() Subscription {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan string, messageBuffer)
	evt.m[id] = ch

	return Subscription{ID: id, C: ch}
}

// Unsubscribe closes and removes the channel that was provided by
// the call to Subscribe.
func (evt *Events) Unsubscribe(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	if evt.prefix != "" {
		var found bool
		if s, found = strings.CutPrefix(s, evt.prefix); !found {
			return
		}
		s = strings.TrimSpace(s)
	}

	evt.mu.Lock()
	defer evt.mu.Unlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
			evt.dropped++
		}
	}
}

// Len returns the number of subscribers.
func (evt *Events) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Dropped returns the number of events that could not be delivered because
// a subscriber fell behind.
func (evt *Events) Dropped() uint64 {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return evt.dropped
}
