package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/subtrackhq/subtrack/internal/shared/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDeactivated    = errors.New("user account is deactivated")
	ErrEmptyPasswordHash  = errors.New("password hash cannot be empty")
)

// User represents an account that can hold subscriptions.
type User struct {
	sharedDomain.BaseAggregateRoot
	email        Email
	passwordHash string
	firstName    Name
	lastName     Name
	isActive     bool
	lastLoginAt  *time.Time
}

// NewUser creates an active user account. The password hash is produced by
// the application layer; the domain never sees plaintext.
func NewUser(email Email, passwordHash string, firstName, lastName Name) (*User, error) {
	if passwordHash == "" {
		return nil, ErrEmptyPasswordHash
	}

	u := &User{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		email:             email,
		passwordHash:      passwordHash,
		firstName:         firstName,
		lastName:          lastName,
		isActive:          true,
	}

	u.AddDomainEvent(NewUserRegistered(u.ID(), email.String()))

	return u, nil
}

// RehydrateUser recreates a user from persisted state.
func RehydrateUser(
	id uuid.UUID,
	email Email,
	passwordHash string,
	firstName, lastName Name,
	isActive bool,
	lastLoginAt *time.Time,
	createdAt, updatedAt time.Time,
) *User {
	return &User{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		email:             email,
		passwordHash:      passwordHash,
		firstName:         firstName,
		lastName:          lastName,
		isActive:          isActive,
		lastLoginAt:       lastLoginAt,
	}
}

func (u *User) Email() Email            { return u.email }
func (u *User) PasswordHash() string    { return u.passwordHash }
func (u *User) FirstName() Name         { return u.firstName }
func (u *User) LastName() Name          { return u.lastName }
func (u *User) IsActive() bool          { return u.isActive }
func (u *User) LastLoginAt() *time.Time { return u.lastLoginAt }

// FullName returns the display name.
func (u *User) FullName() string {
	return u.firstName.String() + " " + u.lastName.String()
}

// RecordLogin stamps a successful authentication.
func (u *User) RecordLogin(now time.Time) {
	at := now
	u.lastLoginAt = &at
	u.Touch()
}

// UpdateName changes the user's name.
func (u *User) UpdateName(firstName, lastName Name) {
	if u.firstName.Equals(firstName) && u.lastName.Equals(lastName) {
		return
	}
	u.firstName = firstName
	u.lastName = lastName
	u.Touch()
}

// ChangePasswordHash replaces the stored credential hash.
func (u *User) ChangePasswordHash(hash string) error {
	if hash == "" {
		return ErrEmptyPasswordHash
	}
	u.passwordHash = hash
	u.Touch()
	return nil
}

// Deactivate disables the account. Deactivated users keep their data but
// cannot authenticate or start subscriptions.
func (u *User) Deactivate() {
	if !u.isActive {
		return
	}
	u.isActive = false
	u.Touch()
}

// Activate re-enables a deactivated account.
func (u *User) Activate() {
	if u.isActive {
		return
	}
	u.isActive = true
	u.Touch()
}
