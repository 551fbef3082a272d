package queries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// PlanView is the slice of the catalog plan joined into the read model.
type PlanView struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"priceCents"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"durationDays"`
}

// UserView is the public slice of the owning user joined into the read
// model. Credentials never appear here.
type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// PlanViewer resolves plan views from the catalog context. A missing plan
// yields a nil view, not an error.
type PlanViewer interface {
	PlanView(ctx context.Context, planID uuid.UUID) (*PlanView, error)
}

// UserViewer resolves public user views from the identity context. A
// missing user yields a nil view, not an error.
type UserViewer interface {
	UserView(ctx context.Context, userID uuid.UUID) (*UserView, error)
}

// SubscriptionDTO is the read model returned to API callers.
type SubscriptionDTO struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"userId"`
	PlanID             uuid.UUID      `json:"planId"`
	Status             string         `json:"status"`
	StartDate          time.Time      `json:"startDate"`
	EndDate            time.Time      `json:"endDate"`
	AutoRenew          bool           `json:"autoRenew"`
	PaymentMethod      string         `json:"paymentMethod,omitempty"`
	LastPaymentDate    time.Time      `json:"lastPaymentDate"`
	NextBillingDate    *time.Time     `json:"nextBillingDate,omitempty"`
	CancelledAt        *time.Time     `json:"cancelledAt,omitempty"`
	CancellationReason string         `json:"cancellationReason,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`

	// Joined views of the plan and the owning user.
	Plan *PlanView `json:"plan,omitempty"`
	User *UserView `json:"user,omitempty"`

	// Derived fields, computed against the query clock.
	IsCurrentlyActive bool `json:"isCurrentlyActive"`
	DaysRemaining     int  `json:"daysRemaining"`
}

// toDTO maps an aggregate to its read model.
func toDTO(sub *domain.Subscription, now time.Time) *SubscriptionDTO {
	days := sub.DaysUntilExpiry(now)
	if days < 0 {
		// Expired and terminal records read as zero days left, never as a
		// negative countdown.
		days = 0
	}

	return &SubscriptionDTO{
		ID:                 sub.ID(),
		UserID:             sub.UserID(),
		PlanID:             sub.PlanID(),
		Status:             string(sub.Status()),
		StartDate:          sub.StartDate(),
		EndDate:            sub.EndDate(),
		AutoRenew:          sub.AutoRenew(),
		PaymentMethod:      sub.PaymentMethod(),
		LastPaymentDate:    sub.LastPaymentDate(),
		NextBillingDate:    sub.NextBillingDate(),
		CancelledAt:        sub.CancelledAt(),
		CancellationReason: sub.CancellationReason(),
		Metadata:           sub.Metadata(),
		CreatedAt:          sub.CreatedAt(),
		UpdatedAt:          sub.UpdatedAt(),
		IsCurrentlyActive:  sub.IsCurrentlyActive(now),
		DaysRemaining:      days,
	}
}

// joinViews attaches the plan and user views to the read model. Nil viewers
// are skipped so thin callers can opt out of the join.
func joinViews(ctx context.Context, plans PlanViewer, users UserViewer, dto *SubscriptionDTO) error {
	if plans != nil {
		view, err := plans.PlanView(ctx, dto.PlanID)
		if err != nil {
			return err
		}
		dto.Plan = view
	}

	if users != nil {
		view, err := users.UserView(ctx, dto.UserID)
		if err != nil {
			return err
		}
		dto.User = view
	}

	return nil
}
