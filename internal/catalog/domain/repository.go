package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines access for plan persistence.
type Repository interface {
	// Insert stores a new plan. A name conflict is reported as
	// ErrDuplicatePlan.
	Insert(ctx context.Context, plan *Plan) error

	// Update persists the current state of an existing plan. Returns
	// ErrPlanNotFound when no row matches.
	Update(ctx context.Context, plan *Plan) error

	// FindByID returns the plan with the given ID, or ErrPlanNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// FindByName returns the plan with the given name, or ErrPlanNotFound.
	FindByName(ctx context.Context, name string) (*Plan, error)

	// List returns plans ordered by price. With activeOnly set, retired
	// plans are excluded.
	List(ctx context.Context, activeOnly bool) ([]*Plan, error)
}
