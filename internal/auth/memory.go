package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"filmfest.org/internal/ids"
)

// MemoryDirectory is an in-process Directory for tests and local runs.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
}

var _ Directory = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*User)}
}

func (d *MemoryDirectory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) FindUser(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) CreateUser(ctx context.Context, fields UserFields) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(fields.Email))
	if email == "" || fields.PasswordHash == "" || !fields.Role.Valid() {
		return nil, ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return nil, ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	u := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: fields.PasswordHash,
		Role:         fields.Role,
		Active:       fields.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != nil {
		u.Email = strings.TrimSpace(strings.ToLower(*upd.Email))
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, ErrInvalidInput
		}
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

// MemorySessionRegistry is an in-process SessionRegistry.
type MemorySessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ SessionRegistry = (*MemorySessionRegistry)(nil)

func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{sessions: make(map[string]*Session)}
}

func (r *MemorySessionRegistry) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *sess
	r.sessions[sess.ID] = &cp
	return nil
}

func (r *MemorySessionRegistry) Find(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *MemorySessionRegistry) Touch(ctx context.Context, id string, generation int, lastActivity, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Generation = generation
	sess.LastActivity = lastActivity
	sess.ExpiresAt = expiresAt
	return nil
}

func (r *MemorySessionRegistry) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Revoked = true
	return nil
}

func (r *MemorySessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, sess := range r.sessions {
		if sess.UserID == userID && !sess.Revoked {
			sess.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRegistry) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, sess := range r.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}
