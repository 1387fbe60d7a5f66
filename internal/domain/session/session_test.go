package session

import (
	"errors"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain"
)

func makeSession(t *testing.T) Session {
	t.Helper()
	s, err := New("sess-1", "subject-1", "visitor-1", 3, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name      string
		id        string
		subjectID string
		version   int
		ttl       time.Duration
	}{
		{"empty id", "", "subject-1", 1, time.Hour},
		{"empty subject", "sess-1", "", 1, time.Hour},
		{"zero version", "sess-1", "subject-1", 0, time.Hour},
		{"zero ttl", "sess-1", "subject-1", 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.subjectID, "v", tc.version, tc.ttl); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNew_StartsCreated(t *testing.T) {
	s := makeSession(t)
	if s.CurrentState() != StateCreated {
		t.Errorf("expected created, got %s", s.CurrentState())
	}
	if s.ProfileVersion() != 3 {
		t.Errorf("expected pinned version 3, got %d", s.ProfileVersion())
	}
}

func TestAdmit_TransitionsToActive(t *testing.T) {
	s := makeSession(t)
	if err := s.Admit(time.Now(), 10, time.Minute, 30*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrentState() != StateActive {
		t.Errorf("expected active, got %s", s.CurrentState())
	}
	if s.WindowCount() != 1 {
		t.Errorf("expected window count 1, got %d", s.WindowCount())
	}
}

func TestAdmit_Closed(t *testing.T) {
	s := makeSession(t)
	s.Close()
	err := s.Admit(time.Now(), 10, time.Minute, 30*time.Minute)
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestAdmit_HardExpiry(t *testing.T) {
	s := makeSession(t)
	err := s.Admit(time.Now().Add(2*time.Hour), 10, time.Minute, 0)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	if s.CurrentState() != StateExpired {
		t.Errorf("expected expired state persisted, got %s", s.CurrentState())
	}
	// Expired is terminal.
	err = s.Admit(time.Now(), 10, time.Minute, 0)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired on second admit, got %v", err)
	}
}

func TestAdmit_IdleTimeout(t *testing.T) {
	s := makeSession(t)
	now := time.Now()
	if err := s.Admit(now, 10, time.Minute, 30*time.Minute); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	err := s.Admit(now.Add(31*time.Minute), 10, time.Minute, 30*time.Minute)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after idle timeout, got %v", err)
	}
}

func TestAdmit_RateWindow(t *testing.T) {
	s := makeSession(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Admit(now, 3, time.Minute, 0); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	err := s.Admit(now, 3, time.Minute, 0)
	if !errors.Is(err, domain.ErrTooManyRequests) {
		t.Errorf("expected ErrTooManyRequests, got %v", err)
	}
	// A new window resets the counter.
	if err := s.Admit(now.Add(time.Minute), 3, time.Minute, 0); err != nil {
		t.Fatalf("admit after window reset: %v", err)
	}
	if s.WindowCount() != 1 {
		t.Errorf("expected window count 1 after reset, got %d", s.WindowCount())
	}
}

func TestAdmit_RejectionDoesNotCount(t *testing.T) {
	s := makeSession(t)
	now := time.Now()
	if err := s.Admit(now, 1, time.Minute, 0); err != nil {
		t.Fatalf("admit: %v", err)
	}
	before := s.WindowCount()
	_ = s.Admit(now, 1, time.Minute, 0)
	if s.WindowCount() != before {
		t.Errorf("rejected message counted: %d -> %d", before, s.WindowCount())
	}
}

func TestAppend_EvictsOldest(t *testing.T) {
	s := makeSession(t)
	for i := 0; i < 5; i++ {
		s.Append(Turn{Role: RoleUser, Text: string(rune('a' + i)), At: time.Now()}, 3)
	}
	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(h))
	}
	if h[0].Text != "c" || h[2].Text != "e" {
		t.Errorf("expected oldest evicted, got %q..%q", h[0].Text, h[2].Text)
	}
}

func TestClose_Terminal(t *testing.T) {
	s := makeSession(t)
	s.Close()
	if s.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", s.CurrentState())
	}
}
