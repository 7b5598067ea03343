// Package bus is the in-process domain-event bus. Services queue events
// while a transaction is open and publish them only after commit, so a
// subscriber that queries the database after observing an event always
// sees the committed state.
package bus

import (
	"sync"

	"github.com/hydronet-io/hydrogate/internal/logger"
)

// EventKind tags a domain event.
type EventKind string

const (
	EventLinkCreated   EventKind = "link.created"
	EventLinkUpdated   EventKind = "link.updated"
	EventLinkDeleted   EventKind = "link.deleted"
	EventDeviceUpdated EventKind = "device.updated"
)

// Event is one domain event. The meaningful fields depend on the kind;
// unused fields stay zero.
type Event struct {
	Kind EventKind

	LinkID   string
	DeviceID string

	// NeedReload is set on link updates that changed connection-relevant
	// fields (mode, address, port, enabled).
	NeedReload bool

	// RegistrationChanged is set on device updates that moved the device
	// to another link or changed its remote code.
	RegistrationChanged bool
}

// Event constructors, one per kind.

func LinkCreated(linkID string) Event {
	return Event{Kind: EventLinkCreated, LinkID: linkID}
}

func LinkUpdated(linkID string, needReload bool) Event {
	return Event{Kind: EventLinkUpdated, LinkID: linkID, NeedReload: needReload}
}

func LinkDeleted(linkID string) Event {
	return Event{Kind: EventLinkDeleted, LinkID: linkID}
}

func DeviceUpdated(deviceID, linkID string, registrationChanged bool) Event {
	return Event{Kind: EventDeviceUpdated, DeviceID: deviceID, LinkID: linkID, RegistrationChanged: registrationChanged}
}

// Handler consumes one published event. Handlers run on the publishing
// goroutine; long work belongs on the subscriber's own goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	kind    EventKind
	handler Handler
}

// Subscription is the handle returned by Subscribe. Unsubscribe is
// idempotent.
type Subscription struct {
	bus  *Bus
	id   uint64
	kind EventKind

	once sync.Once
}

// Unsubscribe removes the handler. It does not wait for in-flight
// dispatches on other goroutines.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.kind, s.id)
	})
}

// Bus dispatches events to subscribers of the matching kind, in
// registration order. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]*subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[EventKind][]*subscription),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, kind: kind, handler: h}
	b.subs[kind] = append(b.subs[kind], sub)

	return &Subscription{bus: b, id: sub.id, kind: kind}
}

// Publish dispatches the event to every subscriber of its kind, in
// registration order, on the calling goroutine. A panicking handler is
// logged and does not stop dispatch to later handlers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[ev.Kind]))
	copy(subs, b.subs[ev.Kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, ev)
	}
}

func (b *Bus) dispatch(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				logger.KeyEvent, string(ev.Kind),
				"panic", r)
		}
	}()
	sub.handler(ev)
}

func (b *Bus) remove(kind EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			b.subs[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
