package models

import "time"

// SessionStatus represents the lifecycle state of an authentication session
type SessionStatus string

const (
	SessionPending       SessionStatus = "PENDING"
	SessionAuthenticated SessionStatus = "AUTHENTICATED"
	SessionFailed        SessionStatus = "ERROR"
	SessionExpired       SessionStatus = "EXPIRED"
)

// Session represents one authentication attempt/outcome. The same record is
// held in the in-memory cache, in a durable JSON file keyed by ID, and in the
// sessions table; live provider client handles are never embedded here.
type Session struct {
	ID           string            `json:"id"`
	Token        string            `json:"token"`
	RefreshToken string            `json:"refreshToken"`
	OwnerID      string            `json:"ownerId,omitempty"`
	Status       SessionStatus     `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Terminal reports whether the session is in a state that must never be
// returned as valid again.
func (s *Session) Terminal() bool {
	return s.Status == SessionExpired || s.Status == SessionFailed
}

// StalePending reports whether the session has been waiting for owner
// attachment longer than the allowed threshold.
func (s *Session) StalePending(before time.Time) bool {
	return s.Status == SessionPending && s.CreatedAt.Before(before)
}

// Clone returns a copy safe to hand to callers without exposing cache state.
func (s *Session) Clone() *Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
