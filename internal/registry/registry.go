package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"engage/pkg/interfaces"
	"engage/pkg/types"
)

// Session is one lecture's live monitoring context. Membership sets are
// owned here and mutated only through the Registry; the per-session mutex is
// the unit of mutual exclusion, so operations on different sessions never
// contend.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	students     map[string]interfaces.Observer // connection ID -> handle
	faculty      map[string]interfaces.Observer
	lastActivity time.Time
}

// membership records where a connection currently lives, for O(1) removal.
type membership struct {
	sessionID string
	role      string
}

// Registry tracks active sessions and their membership. Sessions are created
// implicitly on first reference (idempotent) and destroyed by the reaper
// after the configured idle period with no members and no samples.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]membership // connection ID -> location

	idleTTL      time.Duration
	reapInterval time.Duration
	onExpire     []func(sessionID string)

	shutdown chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry. The reaper does not run until Start.
func NewRegistry(idleTTL, reapInterval time.Duration) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		byConn:       make(map[string]membership),
		idleTTL:      idleTTL,
		reapInterval: reapInterval,
		shutdown:     make(chan struct{}),
	}
}

// OnExpire registers a hook invoked with the session ID whenever the reaper
// destroys a session. Used to drop the session's aggregate window. Must be
// called before Start.
func (r *Registry) OnExpire(hook func(sessionID string)) {
	r.onExpire = append(r.onExpire, hook)
}

// GetOrCreate returns the session for the given ID, creating it if needed.
// Repeated calls for the same ID return the same session.
func (r *Registry) GetOrCreate(sessionID string) *Session {
	r.mu.RLock()
	if s, exists := r.sessions[sessionID]; exists {
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: another goroutine may have created it.
	if s, exists := r.sessions[sessionID]; exists {
		return s
	}

	now := time.Now()
	s := &Session{
		ID:           sessionID,
		CreatedAt:    now,
		students:     make(map[string]interfaces.Observer),
		faculty:      make(map[string]interfaces.Observer),
		lastActivity: now,
	}
	r.sessions[sessionID] = s
	log.Printf("Session created: id=%s", sessionID)
	return s
}

// Get returns the session without creating it.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sessions[sessionID]
	return s, exists
}

// AddMember registers a connection as a member of the session under the
// given role, creating the session if it does not exist. A connection holds
// at most one membership: re-adding moves it from its previous session/role.
func (r *Registry) AddMember(sessionID string, conn interfaces.Observer, role string) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !types.IsValidRole(role) {
		return types.ErrInvalidRole
	}

	// Drop any previous membership first so a rejoin never leaves a stale
	// handle behind.
	r.RemoveMember(conn)

	s := r.GetOrCreate(sessionID)

	r.mu.Lock()
	r.byConn[conn.ID()] = membership{sessionID: sessionID, role: role}
	r.mu.Unlock()

	s.mu.Lock()
	switch role {
	case types.RoleStudent:
		s.students[conn.ID()] = conn
	case types.RoleFaculty:
		s.faculty[conn.ID()] = conn
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	return nil
}

// RemoveMember removes a connection from whatever session it belongs to.
// Safe to call for unknown or already-removed connections: that is a no-op,
// not an error. Returns the vacated session and role when a removal actually
// happened, so the caller can emit a membership-change notification.
func (r *Registry) RemoveMember(conn interfaces.Observer) (sessionID, role string, removed bool) {
	if conn == nil {
		return "", "", false
	}

	r.mu.Lock()
	loc, exists := r.byConn[conn.ID()]
	if !exists {
		r.mu.Unlock()
		return "", "", false
	}
	delete(r.byConn, conn.ID())
	s := r.sessions[loc.sessionID]
	r.mu.Unlock()

	if s != nil {
		s.mu.Lock()
		switch loc.role {
		case types.RoleStudent:
			delete(s.students, conn.ID())
		case types.RoleFaculty:
			delete(s.faculty, conn.ID())
		}
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}

	return loc.sessionID, loc.role, true
}

// Members returns the current connection handles for a session and role.
// Unknown sessions yield an empty slice.
func (r *Registry) Members(sessionID, role string) []interfaces.Observer {
	s, exists := r.Get(sessionID)
	if !exists {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var src map[string]interfaces.Observer
	switch role {
	case types.RoleStudent:
		src = s.students
	case types.RoleFaculty:
		src = s.faculty
	default:
		return nil
	}

	members := make([]interfaces.Observer, 0, len(src))
	for _, conn := range src {
		members = append(members, conn)
	}
	return members
}

// Touch marks sample activity on a session so the reaper keeps it alive.
func (r *Registry) Touch(sessionID string) {
	if s, exists := r.Get(sessionID); exists {
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}
}

// MemberCount returns the number of connections in a session for one role.
func (r *Registry) MemberCount(sessionID, role string) int {
	return len(r.Members(sessionID, role))
}

// SessionIDs returns the IDs of all live sessions.
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// GetStats returns registry counters for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students, faculty := 0, 0
	for _, s := range r.sessions {
		s.mu.RLock()
		students += len(s.students)
		faculty += len(s.faculty)
		s.mu.RUnlock()
	}

	return map[string]int{
		"active_sessions":     len(r.sessions),
		"student_connections": students,
		"faculty_connections": faculty,
	}
}

// Start launches the idle-session reaper. Stops when the context is
// cancelled or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	go r.reapLoop(ctx)
}

// Stop terminates the reaper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.shutdown)
	})
}

func (r *Registry) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapIdle()
		case <-r.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reapIdle destroys sessions that have had no members and no samples for the
// idle TTL, then fires expiry hooks outside the registry lock.
func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.idleTTL)

	var expired []string
	r.mu.Lock()
	for id, s := range r.sessions {
		s.mu.RLock()
		idle := len(s.students) == 0 && len(s.faculty) == 0 && s.lastActivity.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		log.Printf("Session expired after idle period: id=%s", id)
		for _, hook := range r.onExpire {
			hook(id)
		}
	}
}
