package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/catalog/domain"
)

// Service provides plan catalog access.
type Service struct {
	plans  domain.Repository
	logger *slog.Logger
}

// NewService creates a new catalog service.
func NewService(plans domain.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{plans: plans, logger: logger}
}

// CreatePlanInput carries the fields for a new plan.
type CreatePlanInput struct {
	Name         string
	Description  string
	PriceCents   int64
	Currency     string
	DurationDays int
	Features     []string
	Limits       domain.Limits
}

// CreatePlan adds a plan to the catalog.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*domain.Plan, error) {
	plan, err := domain.NewPlan(input.Name, input.Description, input.PriceCents, input.Currency, input.DurationDays, input.Features)
	if err != nil {
		return nil, err
	}
	if err := plan.SetLimits(input.Limits); err != nil {
		return nil, err
	}
	if err := s.plans.Insert(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// UpdatePlanInput patches a plan. Nil fields are left untouched.
type UpdatePlanInput struct {
	Name         *string
	Description  *string
	PriceCents   *int64
	Currency     string
	DurationDays *int
	Features     []string
	Limits       *domain.Limits
}

// UpdatePlan applies a partial update to a plan.
func (s *Service) UpdatePlan(ctx context.Context, id uuid.UUID, input UpdatePlanInput) (*domain.Plan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := plan.Rename(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		plan.SetDescription(*input.Description)
	}
	if input.PriceCents != nil {
		if err := plan.SetPrice(*input.PriceCents, input.Currency); err != nil {
			return nil, err
		}
	}
	if input.DurationDays != nil {
		if err := plan.SetDuration(*input.DurationDays); err != nil {
			return nil, err
		}
	}
	if input.Features != nil {
		plan.SetFeatures(input.Features)
	}
	if input.Limits != nil {
		if err := plan.SetLimits(*input.Limits); err != nil {
			return nil, err
		}
	}

	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// DeactivatePlan retires a plan from sale.
func (s *Service) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := plan.Deactivate(); err != nil {
		return err
	}
	return s.plans.Update(ctx, plan)
}

// GetPlan returns a plan by ID.
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return s.plans.FindByID(ctx, id)
}

// ListPlans returns plans ordered by price.
func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	return s.plans.List(ctx, activeOnly)
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// demoPlans are the catalog entries installed by Seed.
var demoPlans = []CreatePlanInput{
	{
		Name:         "Basic",
		Description:  "Perfect for individuals and small teams getting started",
		PriceCents:   999,
		Currency:     "USD",
		DurationDays: 30,
		Features:     []string{"Up to 5 users", "10GB storage", "Basic support", "1,000 API calls/month"},
		Limits: domain.Limits{
			MaxUsers:        intPtr(5),
			MaxStorageBytes: int64Ptr(10 << 30),
			APICallLimit:    intPtr(1000),
		},
	},
	{
		Name:         "Professional",
		Description:  "Ideal for growing businesses and teams",
		PriceCents:   2999,
		Currency:     "USD",
		DurationDays: 30,
		Features:     []string{"Up to 25 users", "100GB storage", "Priority support", "10,000 API calls/month", "Advanced analytics"},
		Limits: domain.Limits{
			MaxUsers:        intPtr(25),
			MaxStorageBytes: int64Ptr(100 << 30),
			APICallLimit:    intPtr(10000),
		},
	},
	{
		Name:         "Enterprise",
		Description:  "For large organizations with advanced needs",
		PriceCents:   9999,
		Currency:     "USD",
		DurationDays: 30,
		Features:     []string{"Unlimited users", "1TB storage", "24/7 dedicated support", "100,000 API calls/month", "SSO integration"},
		Limits: domain.Limits{
			MaxStorageBytes: int64Ptr(1 << 40),
			APICallLimit:    intPtr(100000),
		},
	},
}

// Seed installs the demo plans, skipping any that already exist.
func (s *Service) Seed(ctx context.Context) error {
	for _, input := range demoPlans {
		_, err := s.CreatePlan(ctx, input)
		if errors.Is(err, domain.ErrDuplicatePlan) {
			s.logger.Debug("seed plan already present", "name", input.Name)
			continue
		}
		if err != nil {
			return err
		}
		s.logger.Info("seeded plan", "name", input.Name)
	}
	return nil
}
