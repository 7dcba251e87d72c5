package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace
// filtering. Delivery to a listener is non-blocking: a listener whose
// channel is full misses the event rather than stalling the publisher,
// so a slow web client can never back up protocol processing.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]*listener
	next      int
}

type listener struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		listeners: make(map[int]*listener),
	}
}

// Publish sends an event to every listener whose namespace is a prefix
// of event.Kind. For a single listener, events arrive in publish order.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if strings.HasPrefix(evt.Kind, l.namespace) {
			select {
			case l.ch <- evt:
			default:
				// Listener buffer full; drop rather than block.
			}
		}
	}
}

// Subscribe attaches a listener for events matching the namespace
// prefix. bufSize controls the channel buffer. The returned function
// detaches the listener and closes the channel; it is safe to call
// more than once.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = &listener{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if l, ok := b.listeners[id]; ok {
			delete(b.listeners, id)
			// Publishers send while holding the read lock, so no
			// send can be in flight here.
			close(l.ch)
		}
		b.mu.Unlock()
	}
}
