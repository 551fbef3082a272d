package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/subtrackhq/subtrack/internal/shared/domain"
)

var (
	ErrPlanNotFound    = errors.New("plan not found")
	ErrDuplicatePlan   = errors.New("a plan with that name already exists")
	ErrEmptyName       = errors.New("plan name cannot be empty")
	ErrInvalidPrice    = errors.New("plan price cannot be negative")
	ErrInvalidDuration = errors.New("plan duration must be at least one day")
	ErrInvalidLimit    = errors.New("plan limits must be positive")
	ErrPlanDeactivated = errors.New("plan is already deactivated")
)

// Limits are the usage quotas sold with a plan. A nil field means the
// plan does not cap that dimension.
type Limits struct {
	MaxUsers        *int
	MaxStorageBytes *int64
	APICallLimit    *int
}

func (l Limits) validate() error {
	if l.MaxUsers != nil && *l.MaxUsers < 1 {
		return ErrInvalidLimit
	}
	if l.MaxStorageBytes != nil && *l.MaxStorageBytes < 1 {
		return ErrInvalidLimit
	}
	if l.APICallLimit != nil && *l.APICallLimit < 1 {
		return ErrInvalidLimit
	}
	return nil
}

// Plan is a catalog entry subscriptions are sold against. Prices are kept
// in cents to avoid floating point money.
type Plan struct {
	sharedDomain.BaseEntity
	name         string
	description  string
	priceCents   int64
	currency     string
	durationDays int
	features     []string
	limits       Limits
	isActive     bool
}

// NewPlan creates an active plan.
func NewPlan(name, description string, priceCents int64, currency string, durationDays int, features []string) (*Plan, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if priceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if durationDays < 1 {
		return nil, ErrInvalidDuration
	}
	if currency == "" {
		currency = "USD"
	}
	if features == nil {
		features = []string{}
	}

	return &Plan{
		BaseEntity:   sharedDomain.NewBaseEntity(),
		name:         name,
		description:  description,
		priceCents:   priceCents,
		currency:     currency,
		durationDays: durationDays,
		features:     features,
		isActive:     true,
	}, nil
}

// RehydratePlan recreates a plan from persisted state.
func RehydratePlan(
	id uuid.UUID,
	name, description string,
	priceCents int64,
	currency string,
	durationDays int,
	features []string,
	limits Limits,
	isActive bool,
	createdAt, updatedAt time.Time,
) *Plan {
	if features == nil {
		features = []string{}
	}
	return &Plan{
		BaseEntity:   sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		name:         name,
		description:  description,
		priceCents:   priceCents,
		currency:     currency,
		durationDays: durationDays,
		features:     features,
		limits:       limits,
		isActive:     isActive,
	}
}

func (p *Plan) Name() string        { return p.name }
func (p *Plan) Description() string { return p.description }
func (p *Plan) PriceCents() int64   { return p.priceCents }
func (p *Plan) Currency() string    { return p.currency }
func (p *Plan) DurationDays() int   { return p.durationDays }
func (p *Plan) Features() []string  { return p.features }
func (p *Plan) Limits() Limits      { return p.limits }
func (p *Plan) IsActive() bool      { return p.isActive }

// Rename changes the plan's display name.
func (p *Plan) Rename(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	p.name = name
	p.Touch()
	return nil
}

// SetDescription updates the plan description.
func (p *Plan) SetDescription(description string) {
	p.description = description
	p.Touch()
}

// SetPrice updates the price. Existing subscriptions are unaffected; the
// price applies to new subscriptions only.
func (p *Plan) SetPrice(priceCents int64, currency string) error {
	if priceCents < 0 {
		return ErrInvalidPrice
	}
	p.priceCents = priceCents
	if currency != "" {
		p.currency = currency
	}
	p.Touch()
	return nil
}

// SetDuration updates the subscription window length for new subscriptions.
func (p *Plan) SetDuration(durationDays int) error {
	if durationDays < 1 {
		return ErrInvalidDuration
	}
	p.durationDays = durationDays
	p.Touch()
	return nil
}

// SetLimits replaces the usage quotas.
func (p *Plan) SetLimits(limits Limits) error {
	if err := limits.validate(); err != nil {
		return err
	}
	p.limits = limits
	p.Touch()
	return nil
}

// SetFeatures replaces the feature list.
func (p *Plan) SetFeatures(features []string) {
	if features == nil {
		features = []string{}
	}
	p.features = features
	p.Touch()
}

// Deactivate retires the plan from sale. Existing subscriptions run out
// their window; only new subscriptions are blocked.
func (p *Plan) Deactivate() error {
	if !p.isActive {
		return ErrPlanDeactivated
	}
	p.isActive = false
	p.Touch()
	return nil
}

// Activate puts a retired plan back on sale.
func (p *Plan) Activate() {
	p.isActive = true
	p.Touch()
}
