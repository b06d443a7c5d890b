package auth

import (
	"context"
	"time"
)

// User is owned by the external directory; this package reads it and never
// deletes it.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserFields is the shape handed to the directory when creating a user.
type UserFields struct {
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
}

// UserUpdate carries optional field changes. Nil means leave unchanged.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
	Role         *Role
	Active       *bool
}

// Directory is the boundary to the external user store. Implementations must
// return ErrNotFound for unknown users and ErrAlreadyExists on email
// conflicts; any other failure is treated as the directory being down.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, fields UserFields) (*User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
}
