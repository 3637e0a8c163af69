// Package session tracks the shared post-delivery video sessions.
//
// Sessions live only in memory: they are transient coordination state, not
// business records, so a restart simply drops them. One session exists per
// order at most, keyed by the order's ID.
package session

import (
	"errors"
	"sync"
	"time"
)

// State of a session within its lifecycle.
type State string

const (
	// StateIdle means the session exists but nobody has joined yet.
	StateIdle State = "idle"
	// StateActive means at least one member is present.
	StateActive State = "active"
	// StateEnded means the session finished, either because the last member
	// left or because it was force-ended.
	StateEnded State = "ended"
)

var (
	ErrNoSession    = errors.New("no session for order")
	ErrSessionEnded = errors.New("session already ended")
)

// Session is a point-in-time snapshot of one session.
type Session struct {
	OrderID   string
	State     State
	Members   []string
	StartedAt time.Time
	EndedAt   time.Time
}

type session struct {
	state     State
	members   map[string]struct{}
	startedAt time.Time
	endedAt   time.Time
}

// Registry holds all live sessions. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Start creates an idle session for the order. Starting an order that already
// has a live session is a no-op; a previously ended session is replaced.
func (r *Registry) Start(orderID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[orderID]; ok && s.state != StateEnded {
		return snapshot(orderID, s)
	}

	s := &session{
		state:     StateIdle,
		members:   make(map[string]struct{}),
		startedAt: r.now(),
	}
	r.sessions[orderID] = s
	return snapshot(orderID, s)
}

// Join adds a member to the order's session, activating it on first join.
// Joining twice is a no-op.
func (r *Registry) Join(orderID, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[orderID]
	if !ok {
		return nil, ErrNoSession
	}
	if s.state == StateEnded {
		return nil, ErrSessionEnded
	}

	s.members[userID] = struct{}{}
	s.state = StateActive
	return snapshot(orderID, s), nil
}

// Leave removes a member. When the last member leaves an active session it
// ends. Leaving a session the user is not in, or one that already ended, is
// a no-op.
func (r *Registry) Leave(orderID, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[orderID]
	if !ok {
		return nil, ErrNoSession
	}
	if s.state == StateEnded {
		return snapshot(orderID, s), nil
	}

	delete(s.members, userID)
	if s.state == StateActive && len(s.members) == 0 {
		s.state = StateEnded
		s.endedAt = r.now()
	}
	return snapshot(orderID, s), nil
}

// ForceEnd terminates the session regardless of remaining members.
func (r *Registry) ForceEnd(orderID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[orderID]
	if !ok {
		return nil, ErrNoSession
	}
	if s.state != StateEnded {
		s.state = StateEnded
		s.endedAt = r.now()
		s.members = make(map[string]struct{})
	}
	return snapshot(orderID, s), nil
}

// Get returns a snapshot of the order's session.
func (r *Registry) Get(orderID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[orderID]
	if !ok {
		return nil, ErrNoSession
	}
	return snapshot(orderID, s), nil
}

// Remove drops the session from the registry entirely.
func (r *Registry) Remove(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, orderID)
}

func snapshot(orderID string, s *session) *Session {
	members := make([]string, 0, len(s.members))
	for id := range s.members {
		members = append(members, id)
	}
	return &Session{
		OrderID:   orderID,
		State:     s.state,
		Members:   members,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}
