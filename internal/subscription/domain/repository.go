package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines access for subscription persistence. Implementations
// take part in whatever transaction the caller's unit of work placed in
// the context.
type Repository interface {
	// Insert stores a new subscription. A violation of the one-active-per-user
	// uniqueness constraint is reported as ErrAlreadySubscribed: under
	// concurrent creation the constraint, not the preceding read, decides
	// which writer wins.
	Insert(ctx context.Context, subscription *Subscription) error

	// Update persists the current state of an existing subscription.
	// Returns ErrSubscriptionNotFound when no row matches.
	Update(ctx context.Context, subscription *Subscription) error

	// FindByID returns the subscription with the given ID, or
	// ErrSubscriptionNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindActiveByUserID returns the user's active subscription, or
	// ErrNoActiveSubscription. At most one exists at any instant.
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// FindLatestByUserID returns the user's most recent subscription in any
	// status, or ErrSubscriptionNotFound. Terminal subscriptions are kept as
	// history, so this answers "current subscription" lookups after
	// cancellation or expiry.
	FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// FindExpiredActive returns active subscriptions whose end date has
	// passed, ordered by end date, bounded by limit to cap transaction size.
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}
