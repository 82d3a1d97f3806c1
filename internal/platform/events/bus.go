// Package events carries payment-status change notifications from the
// credit ledger to interested listeners, such as the WebSocket hub.
// Delivery is best effort: a slow or absent listener never blocks the
// operation that produced the event.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// PaymentStatusEvent announces that a credit pack's paid flag changed.
// Listeners use it to refresh cached views; it carries no ledger state
// beyond the new flag.
type PaymentStatusEvent struct {
	PackID    uuid.UUID `json:"packId"`
	Paid      bool      `json:"paid"`
	PatientID uuid.UUID `json:"patientId"`
}

// Handler receives payment-status events for a tenant.
type Handler func(tenant string, evt PaymentStatusEvent)

// Bus is an in-process publish/subscribe channel for payment-status
// events. Handlers run on their own goroutines so Publish returns
// immediately.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the event to every subscriber without waiting for
// any of them. Publishing with no subscribers is a no-op.
func (b *Bus) Publish(tenant string, evt PaymentStatusEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(tenant, evt)
	}
}

// SubscriberCount reports how many handlers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
