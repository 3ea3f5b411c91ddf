package schemas

import "time"

// CreateSessionRequest opens a new session. Both fields are optional; a
// session created without an owner starts PENDING until the login completes.
type CreateSessionRequest struct {
	OwnerID  string            `json:"owner_id"`
	Metadata map[string]string `json:"metadata"`
}

// CreateSessionResponse is returned when a new (pending) session is opened.
type CreateSessionResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStatusResponse reports the current state of the caller's session.
type SessionStatusResponse struct {
	Status       string    `json:"status"`
	OwnerID      string    `json:"owner_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

// AttachOwnerRequest completes a pending login by binding the provider
// identity to the session.
type AttachOwnerRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshResponse carries the re-issued access token.
type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
