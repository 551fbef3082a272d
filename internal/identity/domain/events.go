package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/subtrackhq/subtrack/internal/shared/domain"
)

const aggregateType = "user"

// RoutingKeyRegistered routes user registration events.
const RoutingKeyRegistered = "user.registered"

// UserRegistered is raised when a new account is created.
type UserRegistered struct {
	sharedDomain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// NewUserRegistered creates a UserRegistered event.
func NewUserRegistered(userID uuid.UUID, email string) *UserRegistered {
	return &UserRegistered{
		BaseEvent: sharedDomain.NewBaseEvent(userID, aggregateType, RoutingKeyRegistered),
		UserID:    userID,
		Email:     email,
	}
}
