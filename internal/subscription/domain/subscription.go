package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/subtrackhq/subtrack/internal/shared/domain"
)

// Status represents the subscription lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE" // reserved in the schema; no transition produces it
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether no further transition out of the status is
// permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// ComputeWindow derives the end of a subscription window from its start
// and the plan duration in whole days.
func ComputeWindow(start time.Time, durationDays int) (time.Time, error) {
	if durationDays <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	return start.Add(time.Duration(durationDays) * 24 * time.Hour), nil
}

// ComputeBilling derives the next billing date: the end of the current
// window when auto-renew is on, absent otherwise.
func ComputeBilling(autoRenew bool, endDate time.Time) *time.Time {
	if !autoRenew {
		return nil
	}
	end := endDate
	return &end
}

// Subscription is a time-bounded entitlement binding a user to a plan.
// A user holds at most one active subscription at a time; cancelled and
// expired subscriptions are retained as history, never deleted.
type Subscription struct {
	sharedDomain.BaseAggregateRoot
	userID             uuid.UUID
	planID             uuid.UUID
	status             Status
	startDate          time.Time
	endDate            time.Time
	autoRenew          bool
	paymentMethod      string
	lastPaymentDate    time.Time
	nextBillingDate    *time.Time
	cancelledAt        *time.Time
	cancellationReason string
	metadata           map[string]any
}

// NewSubscription creates an active subscription starting at now, with the
// end date derived from the plan duration.
func NewSubscription(userID, planID uuid.UUID, durationDays int, autoRenew bool, paymentMethod string, metadata map[string]any, now time.Time) (*Subscription, error) {
	endDate, err := ComputeWindow(now, durationDays)
	if err != nil {
		return nil, err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	s := &Subscription{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		userID:            userID,
		planID:            planID,
		status:            StatusActive,
		startDate:         now,
		endDate:           endDate,
		autoRenew:         autoRenew,
		paymentMethod:     paymentMethod,
		lastPaymentDate:   now,
		nextBillingDate:   ComputeBilling(autoRenew, endDate),
		metadata:          metadata,
	}

	s.AddDomainEvent(NewSubscriptionCreated(s.ID(), userID, planID, endDate))

	return s, nil
}

// RehydrateSubscription recreates a subscription from persisted state.
func RehydrateSubscription(
	id uuid.UUID,
	userID, planID uuid.UUID,
	status Status,
	startDate, endDate time.Time,
	autoRenew bool,
	paymentMethod string,
	lastPaymentDate time.Time,
	nextBillingDate, cancelledAt *time.Time,
	cancellationReason string,
	metadata map[string]any,
	createdAt, updatedAt time.Time,
) *Subscription {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Subscription{
		BaseAggregateRoot:  sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		userID:             userID,
		planID:             planID,
		status:             status,
		startDate:          startDate,
		endDate:            endDate,
		autoRenew:          autoRenew,
		paymentMethod:      paymentMethod,
		lastPaymentDate:    lastPaymentDate,
		nextBillingDate:    nextBillingDate,
		cancelledAt:        cancelledAt,
		cancellationReason: cancellationReason,
		metadata:           metadata,
	}
}

// Getters

func (s *Subscription) UserID() uuid.UUID          { return s.userID }
func (s *Subscription) PlanID() uuid.UUID          { return s.planID }
func (s *Subscription) Status() Status             { return s.status }
func (s *Subscription) StartDate() time.Time       { return s.startDate }
func (s *Subscription) EndDate() time.Time         { return s.endDate }
func (s *Subscription) AutoRenew() bool            { return s.autoRenew }
func (s *Subscription) PaymentMethod() string      { return s.paymentMethod }
func (s *Subscription) LastPaymentDate() time.Time { return s.lastPaymentDate }
func (s *Subscription) NextBillingDate() *time.Time {
	return s.nextBillingDate
}
func (s *Subscription) CancelledAt() *time.Time    { return s.cancelledAt }
func (s *Subscription) CancellationReason() string { return s.cancellationReason }
func (s *Subscription) Metadata() map[string]any   { return s.metadata }

// IsExpired reports whether the end date has passed, regardless of status.
// Status and temporal validity can momentarily diverge until the sweeper
// reconciles them.
func (s *Subscription) IsExpired(now time.Time) bool {
	return now.After(s.endDate)
}

// IsCurrentlyActive reports active status with an unexpired window.
func (s *Subscription) IsCurrentlyActive(now time.Time) bool {
	return s.status == StatusActive && !s.IsExpired(now)
}

// DaysUntilExpiry returns the number of days until the end date, rounded up.
func (s *Subscription) DaysUntilExpiry(now time.Time) int {
	remaining := s.endDate.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Cancel transitions the subscription to the cancelled terminal state.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}

	cancelledAt := now
	s.status = StatusCancelled
	s.cancelledAt = &cancelledAt
	s.cancellationReason = reason
	s.autoRenew = false
	s.nextBillingDate = nil
	s.Touch()

	s.AddDomainEvent(NewSubscriptionCancelled(s.ID(), s.userID, reason))

	return nil
}

// Expire transitions the subscription to the expired terminal state.
// Only an active subscription whose end date has passed can expire.
func (s *Subscription) Expire(now time.Time) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	if !s.IsExpired(now) {
		return ErrNotYetExpired
	}

	s.status = StatusExpired
	s.Touch()

	s.AddDomainEvent(NewSubscriptionExpired(s.ID(), s.userID, s.endDate))

	return nil
}

// ChangePlan moves the subscription to a new plan. The window restarts
// from now rather than extending the original end date; the start date is
// left untouched.
func (s *Subscription) ChangePlan(newPlanID uuid.UUID, durationDays int, now time.Time) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}

	endDate, err := ComputeWindow(now, durationDays)
	if err != nil {
		return err
	}

	oldPlanID := s.planID
	s.planID = newPlanID
	s.endDate = endDate
	s.nextBillingDate = ComputeBilling(s.autoRenew, endDate)
	s.Touch()

	s.AddDomainEvent(NewSubscriptionPlanChanged(s.ID(), s.userID, oldPlanID, newPlanID, endDate))

	return nil
}

// SetAutoRenew updates the auto-renew flag and keeps the next billing
// date consistent with it.
func (s *Subscription) SetAutoRenew(autoRenew bool) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	s.autoRenew = autoRenew
	s.nextBillingDate = ComputeBilling(autoRenew, s.endDate)
	s.Touch()
	return nil
}

// SetPaymentMethod updates the stored payment method reference.
func (s *Subscription) SetPaymentMethod(paymentMethod string) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	s.paymentMethod = paymentMethod
	s.Touch()
	return nil
}

// SetMetadata replaces the caller-controlled metadata bag. The lifecycle
// logic never interprets its contents.
func (s *Subscription) SetMetadata(metadata map[string]any) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	s.metadata = metadata
	s.Touch()
	return nil
}
