package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines access for user persistence.
type Repository interface {
	// Insert stores a new user. An email conflict is reported as
	// ErrDuplicateEmail.
	Insert(ctx context.Context, user *User) error

	// Update persists the current state of an existing user. Returns
	// ErrUserNotFound when no row matches.
	Update(ctx context.Context, user *User) error

	// FindByID returns the user with the given ID, or ErrUserNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByEmail returns the user with the given email, or ErrUserNotFound.
	FindByEmail(ctx context.Context, email Email) (*User, error)
}
