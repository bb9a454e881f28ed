package hub

import (
	"log"
	"sync"
	"time"

	"engage/internal/registry"
	"engage/pkg/types"
)

// Hub delivers aggregate updates and membership events to the faculty
// observers of a session. Delivery is best effort per observer: a slow or
// disconnected observer is logged and skipped, it never blocks delivery to
// the others and never fails the publish as a whole.
type Hub struct {
	registry *registry.Registry

	// Per-session publish locks define the delivery order guarantee: two
	// publishes for one session are enqueued to every observer in the order
	// they pass this lock. Enqueueing is a channel push on the observer's
	// bounded queue, never network I/O, so the lock is held only briefly.
	// There is no cross-session ordering and no global lock.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewHub creates a hub that resolves room membership through the registry.
func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		registry: reg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Publish delivers an aggregate snapshot to every current faculty observer
// of the session.
func (h *Hub) Publish(sessionID string, snapshot *types.Snapshot) {
	h.deliver(sessionID, &types.Envelope{
		Type:      types.EventLiveAnalyticsUpdate,
		Payload:   snapshot,
		Timestamp: time.Now(),
	})
}

// NotifyMembershipChange delivers a join/leave event to the session's
// faculty observers only.
func (h *Hub) NotifyMembershipChange(sessionID string, event types.MembershipEvent) {
	h.deliver(sessionID, &types.Envelope{
		Type:      types.EventMembershipChanged,
		Payload:   event,
		Timestamp: time.Now(),
	})
}

// Drop releases the session's publish lock after the session is reaped.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	delete(h.locks, sessionID)
	h.mu.Unlock()
}

func (h *Hub) deliver(sessionID string, envelope *types.Envelope) {
	lock := h.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	observers := h.registry.Members(sessionID, types.RoleFaculty)
	for _, obs := range observers {
		if err := obs.Deliver(envelope); err != nil {
			// Delivery failures are isolated per observer. A disconnected
			// observer's pending messages are already discarded by its own
			// close path.
			log.Printf("Delivery failed: session=%s observer=%s type=%s err=%v",
				sessionID, obs.ID(), envelope.Type, err)
		}
	}
}

func (h *Hub) sessionLock(sessionID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	lock, exists := h.locks[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		h.locks[sessionID] = lock
	}
	return lock
}
