package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Command-level sentinel errors for cross-context lookups.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user account is deactivated")
	ErrPlanNotFound = errors.New("plan not found")
	ErrPlanInactive = errors.New("plan is not available for subscription")
)

// Clock supplies the current time. A nil Clock falls back to time.Now in UTC.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// UserDirectory resolves users from the identity context.
type UserDirectory interface {
	// Exists reports whether the user is registered.
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)

	// IsActive reports whether the user account is active.
	IsActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PlanInfo is the slice of a catalog plan the subscription context needs.
type PlanInfo struct {
	ID           uuid.UUID
	Name         string
	DurationDays int
	IsActive     bool
}

// PlanCatalog resolves plans from the catalog context.
type PlanCatalog interface {
	// Get returns the plan or ErrPlanNotFound.
	Get(ctx context.Context, planID uuid.UUID) (*PlanInfo, error)
}

// resolveActivePlan fetches a plan and rejects retired ones.
func resolveActivePlan(ctx context.Context, catalog PlanCatalog, planID uuid.UUID) (*PlanInfo, error) {
	plan, err := catalog.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	return plan, nil
}

// resolveActiveUser rejects unknown and deactivated users.
func resolveActiveUser(ctx context.Context, users UserDirectory, userID uuid.UUID) error {
	exists, err := users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}
	active, err := users.IsActive(ctx, userID)
	if err != nil {
		return err
	}
	if !active {
		return ErrUserInactive
	}
	return nil
}
