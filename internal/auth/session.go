package auth

import (
	"context"
	"time"
)

// Session binds a user to one portal with its own expiry. The same human may
// hold independent sessions in all three portals at once.
//
// Generation increments on every refresh. A refresh token carrying a stale
// generation has been rotated out already; presenting one is treated as a
// compromise signal and revokes the session.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SiteMode     SiteMode  `json:"site_mode"`
	Generation   int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Revoked      bool      `json:"revoked"`
}

// Live reports whether the session is usable at the given instant.
func (s *Session) Live(at time.Time) bool {
	return s != nil && !s.Revoked && at.Before(s.ExpiresAt)
}

// SessionRegistry tracks issued sessions. The Postgres implementation backs
// multi-process deployments; the memory one backs tests and single-process
// runs.
type SessionRegistry interface {
	Create(ctx context.Context, sess *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Touch records a successful refresh: new generation, activity stamp
	// and extended expiry.
	Touch(ctx context.Context, id string, generation int, lastActivity, expiresAt time.Time) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
}
