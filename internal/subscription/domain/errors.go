package domain

import "errors"

var (
	// ErrInvalidDuration reports a plan duration that is not a positive
	// number of whole days.
	ErrInvalidDuration = errors.New("plan duration must be a positive number of days")

	// ErrSubscriptionNotActive reports a lifecycle transition attempted on
	// a subscription that is not in the active state. Cancelled and expired
	// are terminal.
	ErrSubscriptionNotActive = errors.New("subscription is not active")

	// ErrNotYetExpired reports an expiration attempt on a subscription whose
	// end date has not passed.
	ErrNotYetExpired = errors.New("subscription end date has not passed")

	// ErrNoActiveSubscription is returned when an operation targets a user
	// with no active subscription.
	ErrNoActiveSubscription = errors.New("no active subscription found for user")

	// ErrSubscriptionNotFound is returned when a subscription lookup by ID
	// matches no record.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAlreadySubscribed is returned when a user already holds an active
	// subscription. The database uniqueness constraint is the source of
	// truth; concurrent creations that lose the race surface this same error.
	ErrAlreadySubscribed = errors.New("user already has an active subscription")
)
