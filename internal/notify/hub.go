// Package notify fans session-count changes out to in-process observers
// (SSE streams, UI listeners). It is deliberately decoupled from any single
// request's lifecycle: observers come and go, the hub outlives them all.
package notify

import (
	"sync"
)

// CountUpdate carries the recomputed number of active sessions.
type CountUpdate struct {
	ActiveSessions int `json:"active_sessions"`
}

// Hub broadcasts count updates to registered observers. A slow observer is
// skipped rather than blocking the broadcast; it will catch up on the next
// update since every update carries the full count.
type Hub struct {
	mu        sync.Mutex
	observers map[int]chan CountUpdate
	nextID    int
	last      CountUpdate
	hasLast   bool
}

func NewHub() *Hub {
	return &Hub{observers: make(map[int]chan CountUpdate)}
}

// Observer is a cancellable subscription handle.
type Observer struct {
	C      <-chan CountUpdate
	cancel func()
}

// Cancel deregisters the observer and closes its channel.
func (o *Observer) Cancel() { o.cancel() }

// Register adds an observer. The most recent update, if any, is delivered
// immediately so new observers don't wait for the next session change.
func (h *Hub) Register() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan CountUpdate, 8)
	h.observers[id] = ch

	if h.hasLast {
		ch <- h.last
	}

	return &Observer{
		C: ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.observers[id]; ok {
				delete(h.observers, id)
				close(c)
			}
		},
	}
}

// Broadcast delivers the update to every registered observer.
func (h *Hub) Broadcast(update CountUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = update
	h.hasLast = true

	for _, ch := range h.observers {
		select {
		case ch <- update:
		default:
			// Observer buffer full; it will see the next update.
		}
	}
}

// ObserverCount reports how many observers are registered.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}
