package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// CreateSubscriptionCommand contains the data needed to start a subscription.
type CreateSubscriptionCommand struct {
	UserID        uuid.UUID
	PlanID        uuid.UUID
	AutoRenew     bool
	PaymentMethod string
	Metadata      map[string]any
}

// CreateSubscriptionResult contains the result of creating a subscription.
type CreateSubscriptionResult struct {
	SubscriptionID uuid.UUID
}

// CreateSubscriptionHandler handles the CreateSubscriptionCommand.
type CreateSubscriptionHandler struct {
	subRepo    domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	users      UserDirectory
	plans      PlanCatalog
	clock      Clock
}

// NewCreateSubscriptionHandler creates a new CreateSubscriptionHandler.
func NewCreateSubscriptionHandler(
	subRepo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	users UserDirectory,
	plans PlanCatalog,
	clock Clock,
) *CreateSubscriptionHandler {
	return &CreateSubscriptionHandler{
		subRepo:    subRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		users:      users,
		plans:      plans,
		clock:      clock,
	}
}

// Handle executes the CreateSubscriptionCommand. An in-transaction read
// rejects users who already hold an active subscription up front; the
// store's uniqueness constraint remains the arbiter for creates that race
// past the read, so concurrent creates for the same user cannot both
// commit.
func (h *CreateSubscriptionHandler) Handle(ctx context.Context, cmd CreateSubscriptionCommand) (*CreateSubscriptionResult, error) {
	if err := resolveActiveUser(ctx, h.users, cmd.UserID); err != nil {
		return nil, err
	}

	plan, err := resolveActivePlan(ctx, h.plans, cmd.PlanID)
	if err != nil {
		return nil, err
	}

	var result *CreateSubscriptionResult

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		_, err := h.subRepo.FindActiveByUserID(txCtx, cmd.UserID)
		if err == nil {
			return domain.ErrAlreadySubscribed
		}
		if !errors.Is(err, domain.ErrNoActiveSubscription) {
			return err
		}

		sub, err := domain.NewSubscription(
			cmd.UserID,
			plan.ID,
			plan.DurationDays,
			cmd.AutoRenew,
			cmd.PaymentMethod,
			cmd.Metadata,
			h.clock.now(),
		)
		if err != nil {
			return err
		}

		if err := h.subRepo.Insert(txCtx, sub); err != nil {
			return err
		}

		events := sub.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(cmd.UserID))

		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		if err := h.outboxRepo.SaveBatch(txCtx, msgs); err != nil {
			return err
		}

		result = &CreateSubscriptionResult{SubscriptionID: sub.ID()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
