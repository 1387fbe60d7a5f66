package source

import "time"

// Authorization is a per-source consent grant supplied by the authorization
// collaborator. Handle is the subject's identifier at the source (login,
// profile URL, site address).
type Authorization struct {
	Token     string
	Handle    string
	Scopes    []string
	ExpiresAt time.Time
}

// Valid reports whether the grant can be used at time now.
func (a Authorization) Valid(now time.Time) bool {
	if a.Handle == "" {
		return false
	}
	if !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt) {
		return false
	}
	return true
}
