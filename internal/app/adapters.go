package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	catalogApplication "github.com/subtrackhq/subtrack/internal/catalog/application"
	catalogDomain "github.com/subtrackhq/subtrack/internal/catalog/domain"
	identityApplication "github.com/subtrackhq/subtrack/internal/identity/application"
	identityDomain "github.com/subtrackhq/subtrack/internal/identity/domain"
	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/internal/subscription/application/queries"
)

// userDirectory adapts the identity service to the subscription context's
// view of users.
type userDirectory struct {
	identity *identityApplication.Service
}

var (
	_ commands.UserDirectory = (*userDirectory)(nil)
	_ queries.UserViewer     = (*userDirectory)(nil)
)

func (d *userDirectory) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	return d.identity.Exists(ctx, userID)
}

func (d *userDirectory) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	return d.identity.IsActive(ctx, userID)
}

// UserView builds the public user slice the read model joins in. Missing
// users yield a nil view so stale references degrade instead of failing the
// whole read.
func (d *userDirectory) UserView(ctx context.Context, userID uuid.UUID) (*queries.UserView, error) {
	user, err := d.identity.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identityDomain.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &queries.UserView{
		ID:        user.ID(),
		Email:     user.Email().String(),
		FirstName: user.FirstName().String(),
		LastName:  user.LastName().String(),
	}, nil
}

// planCatalog adapts the catalog service to the subscription context's view
// of plans, translating the catalog's not-found error into the command
// layer's sentinel.
type planCatalog struct {
	catalog *catalogApplication.Service
}

var (
	_ commands.PlanCatalog = (*planCatalog)(nil)
	_ queries.PlanViewer   = (*planCatalog)(nil)
)

func (p *planCatalog) Get(ctx context.Context, planID uuid.UUID) (*commands.PlanInfo, error) {
	plan, err := p.catalog.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, catalogDomain.ErrPlanNotFound) {
			return nil, commands.ErrPlanNotFound
		}
		return nil, err
	}
	return &commands.PlanInfo{
		ID:           plan.ID(),
		Name:         plan.Name(),
		DurationDays: plan.DurationDays(),
		IsActive:     plan.IsActive(),
	}, nil
}

// PlanView builds the plan slice the read model joins in. Missing plans
// yield a nil view.
func (p *planCatalog) PlanView(ctx context.Context, planID uuid.UUID) (*queries.PlanView, error) {
	plan, err := p.catalog.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, catalogDomain.ErrPlanNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &queries.PlanView{
		ID:           plan.ID(),
		Name:         plan.Name(),
		Description:  plan.Description(),
		PriceCents:   plan.PriceCents(),
		Currency:     plan.Currency(),
		DurationDays: plan.DurationDays(),
	}, nil
}
