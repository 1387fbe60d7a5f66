// Package session defines the chat session aggregate and its state machine.
package session

import (
	"fmt"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain"
)

// State is the session lifecycle state.
type State string

const (
	// StateCreated is a session before its first message.
	StateCreated State = "created"
	// StateActive is a session within rate limits and before expiry.
	StateActive State = "active"
	// StateExpired is a session past its inactivity timeout or expiry.
	StateExpired State = "expired"
	// StateClosed is an explicitly terminated session.
	StateClosed State = "closed"
)

// Role labels a conversation turn.
type Role string

const (
	// RoleUser is a visitor message.
	RoleUser Role = "user"
	// RoleAssistant is a generated answer.
	RoleAssistant Role = "assistant"
)

// Turn is one conversation message.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Session is the per-conversation aggregate. It pins the profile version the
// conversation is grounded on, so re-indexing mid-conversation never mixes
// corpus versions for an open session.
type Session struct {
	id             string
	subjectID      string
	visitor        string
	profileVersion int
	state          State
	history        []Turn
	windowStart    time.Time
	windowCount    int
	lastActivity   time.Time
	createdAt      time.Time
	expiresAt      time.Time
}

// New validates and creates a Session pinned to a profile version.
func New(id, subjectID, visitor string, profileVersion int, ttl time.Duration) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session ID is required")
	}
	if subjectID == "" {
		return Session{}, fmt.Errorf("subject ID is required")
	}
	if profileVersion <= 0 {
		return Session{}, fmt.Errorf("profile version must be positive")
	}
	if ttl <= 0 {
		return Session{}, fmt.Errorf("ttl must be positive")
	}
	now := time.Now().UTC()
	return Session{
		id:             id,
		subjectID:      subjectID,
		visitor:        visitor,
		profileVersion: profileVersion,
		state:          StateCreated,
		lastActivity:   now,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
	}, nil
}

// Reconstruct creates a Session without validation (storage hydration).
func Reconstruct(
	id, subjectID, visitor string, profileVersion int, state State,
	history []Turn, windowStart time.Time, windowCount int,
	lastActivity, createdAt, expiresAt time.Time,
) Session {
	return Session{
		id:             id,
		subjectID:      subjectID,
		visitor:        visitor,
		profileVersion: profileVersion,
		state:          state,
		history:        history,
		windowStart:    windowStart,
		windowCount:    windowCount,
		lastActivity:   lastActivity,
		createdAt:      createdAt,
		expiresAt:      expiresAt,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SubjectID returns the profile owner this session talks about.
func (s *Session) SubjectID() string { return s.subjectID }

// Visitor returns the anonymous token or authenticated user ID.
func (s *Session) Visitor() string { return s.visitor }

// ProfileVersion returns the pinned corpus version.
func (s *Session) ProfileVersion() int { return s.profileVersion }

// CurrentState returns the lifecycle state.
func (s *Session) CurrentState() State { return s.state }

// History returns the bounded conversation history, oldest first.
func (s *Session) History() []Turn { return s.history }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ExpiresAt returns the hard expiry time.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// LastActivity returns the time of the last accepted message.
func (s *Session) LastActivity() time.Time { return s.lastActivity }

// WindowStart returns the start of the current rate window.
func (s *Session) WindowStart() time.Time { return s.windowStart }

// WindowCount returns the messages accepted in the current rate window.
func (s *Session) WindowCount() int { return s.windowCount }

// Admit checks the state machine and rate window for an incoming message at
// time now, and on success transitions Created -> Active and counts the
// message against the window. It mutates the session only when the message
// is admitted.
func (s *Session) Admit(now time.Time, maxPerWindow int, window, idleTimeout time.Duration) error {
	switch s.state {
	case StateClosed:
		return domain.ErrSessionClosed
	case StateExpired:
		return domain.ErrSessionExpired
	}

	if now.After(s.expiresAt) || (idleTimeout > 0 && now.Sub(s.lastActivity) > idleTimeout) {
		s.state = StateExpired
		return domain.ErrSessionExpired
	}

	if now.Sub(s.windowStart) >= window {
		s.windowStart = now
		s.windowCount = 0
	}
	if maxPerWindow > 0 && s.windowCount >= maxPerWindow {
		return domain.ErrTooManyRequests
	}

	s.windowCount++
	s.lastActivity = now
	s.state = StateActive
	return nil
}

// Append records a turn, evicting the oldest turns beyond maxHistory.
func (s *Session) Append(t Turn, maxHistory int) {
	s.history = append(s.history, t)
	if maxHistory > 0 && len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

// Close transitions the session to Closed. Closing is terminal.
func (s *Session) Close() {
	s.state = StateClosed
}
