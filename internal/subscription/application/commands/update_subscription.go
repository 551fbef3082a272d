package commands

import (
	"context"

	"github.com/google/uuid"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// SubscriptionPatch holds the mutable subscription fields. Nil fields are
// left untouched.
type SubscriptionPatch struct {
	PlanID        *uuid.UUID
	AutoRenew     *bool
	PaymentMethod *string
	Metadata      map[string]any
}

// UpdateSubscriptionCommand patches a subscription addressed by its id.
type UpdateSubscriptionCommand struct {
	SubscriptionID uuid.UUID
	PlanID         *uuid.UUID
	AutoRenew      *bool
	PaymentMethod  *string
	Metadata       map[string]any
}

func (cmd UpdateSubscriptionCommand) patch() SubscriptionPatch {
	return SubscriptionPatch{
		PlanID:        cmd.PlanID,
		AutoRenew:     cmd.AutoRenew,
		PaymentMethod: cmd.PaymentMethod,
		Metadata:      cmd.Metadata,
	}
}

// UpdateSubscriptionHandler handles the UpdateSubscriptionCommand.
type UpdateSubscriptionHandler struct {
	subRepo    domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	plans      PlanCatalog
	clock      Clock
}

// NewUpdateSubscriptionHandler creates a new UpdateSubscriptionHandler.
func NewUpdateSubscriptionHandler(
	subRepo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	plans PlanCatalog,
	clock Clock,
) *UpdateSubscriptionHandler {
	return &UpdateSubscriptionHandler{
		subRepo:    subRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		plans:      plans,
		clock:      clock,
	}
}

// Handle executes the UpdateSubscriptionCommand. Switching plans restarts
// the subscription window from now on the new plan's duration.
func (h *UpdateSubscriptionHandler) Handle(ctx context.Context, cmd UpdateSubscriptionCommand) error {
	plan, err := h.resolvePatchPlan(ctx, cmd.PlanID)
	if err != nil {
		return err
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		sub, err := h.subRepo.FindByID(txCtx, cmd.SubscriptionID)
		if err != nil {
			return err
		}
		return h.applyPatch(txCtx, sub, plan, cmd.patch())
	})
}

// UpdateForUser patches the caller's active subscription without requiring
// the subscription id. A user holding only terminal subscriptions gets
// ErrNoActiveSubscription, the same answer as a user with no history.
func (h *UpdateSubscriptionHandler) UpdateForUser(ctx context.Context, userID uuid.UUID, patch SubscriptionPatch) (uuid.UUID, error) {
	plan, err := h.resolvePatchPlan(ctx, patch.PlanID)
	if err != nil {
		return uuid.Nil, err
	}

	var subID uuid.UUID

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		sub, err := h.subRepo.FindActiveByUserID(txCtx, userID)
		if err != nil {
			return err
		}
		if err := h.applyPatch(txCtx, sub, plan, patch); err != nil {
			return err
		}
		subID = sub.ID()
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return subID, nil
}

// resolvePatchPlan resolves the target plan when the patch switches plans.
// A nil plan id leaves the plan untouched.
func (h *UpdateSubscriptionHandler) resolvePatchPlan(ctx context.Context, planID *uuid.UUID) (*PlanInfo, error) {
	if planID == nil {
		return nil, nil
	}
	return resolveActivePlan(ctx, h.plans, *planID)
}

// applyPatch mutates the aggregate, persists it, and stages the resulting
// events on the outbox within the caller's transaction.
func (h *UpdateSubscriptionHandler) applyPatch(txCtx context.Context, sub *domain.Subscription, plan *PlanInfo, patch SubscriptionPatch) error {
	if plan != nil && plan.ID != sub.PlanID() {
		if err := sub.ChangePlan(plan.ID, plan.DurationDays, h.clock.now()); err != nil {
			return err
		}
	}

	if patch.AutoRenew != nil {
		if err := sub.SetAutoRenew(*patch.AutoRenew); err != nil {
			return err
		}
	}

	if patch.PaymentMethod != nil {
		if err := sub.SetPaymentMethod(*patch.PaymentMethod); err != nil {
			return err
		}
	}

	if patch.Metadata != nil {
		if err := sub.SetMetadata(patch.Metadata); err != nil {
			return err
		}
	}

	if err := h.subRepo.Update(txCtx, sub); err != nil {
		return err
	}

	events := sub.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(sub.UserID()))

	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return err
	}
	return h.outboxRepo.SaveBatch(txCtx, msgs)
}
