package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/subtrackhq/subtrack/internal/shared/domain"
)

const aggregateType = "subscription"

// Routing keys for subscription lifecycle events.
const (
	RoutingKeyCreated     = "subscription.created"
	RoutingKeyPlanChanged = "subscription.plan_changed"
	RoutingKeyCancelled   = "subscription.cancelled"
	RoutingKeyExpired     = "subscription.expired"
)

// SubscriptionCreated is raised when a subscription is created.
type SubscriptionCreated struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PlanID         uuid.UUID `json:"plan_id"`
	EndDate        time.Time `json:"end_date"`
}

// NewSubscriptionCreated creates a SubscriptionCreated event.
func NewSubscriptionCreated(subscriptionID, userID, planID uuid.UUID, endDate time.Time) *SubscriptionCreated {
	return &SubscriptionCreated{
		BaseEvent:      sharedDomain.NewBaseEvent(subscriptionID, aggregateType, RoutingKeyCreated),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		PlanID:         planID,
		EndDate:        endDate,
	}
}

// SubscriptionPlanChanged is raised when an active subscription moves to a
// different plan.
type SubscriptionPlanChanged struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	OldPlanID      uuid.UUID `json:"old_plan_id"`
	NewPlanID      uuid.UUID `json:"new_plan_id"`
	EndDate        time.Time `json:"end_date"`
}

// NewSubscriptionPlanChanged creates a SubscriptionPlanChanged event.
func NewSubscriptionPlanChanged(subscriptionID, userID, oldPlanID, newPlanID uuid.UUID, endDate time.Time) *SubscriptionPlanChanged {
	return &SubscriptionPlanChanged{
		BaseEvent:      sharedDomain.NewBaseEvent(subscriptionID, aggregateType, RoutingKeyPlanChanged),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		OldPlanID:      oldPlanID,
		NewPlanID:      newPlanID,
		EndDate:        endDate,
	}
}

// SubscriptionCancelled is raised when a subscription is cancelled.
type SubscriptionCancelled struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	Reason         string    `json:"reason,omitempty"`
}

// NewSubscriptionCancelled creates a SubscriptionCancelled event.
func NewSubscriptionCancelled(subscriptionID, userID uuid.UUID, reason string) *SubscriptionCancelled {
	return &SubscriptionCancelled{
		BaseEvent:      sharedDomain.NewBaseEvent(subscriptionID, aggregateType, RoutingKeyCancelled),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		Reason:         reason,
	}
}

// SubscriptionExpired is raised when the sweeper reconciles an active
// subscription whose end date has passed.
type SubscriptionExpired struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	EndDate        time.Time `json:"end_date"`
}

// NewSubscriptionExpired creates a SubscriptionExpired event.
func NewSubscriptionExpired(subscriptionID, userID uuid.UUID, endDate time.Time) *SubscriptionExpired {
	return &SubscriptionExpired{
		BaseEvent:      sharedDomain.NewBaseEvent(subscriptionID, aggregateType, RoutingKeyExpired),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		EndDate:        endDate,
	}
}
