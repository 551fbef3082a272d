package commands

import (
	"context"

	"github.com/google/uuid"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// CancelSubscriptionCommand cancels an active subscription.
type CancelSubscriptionCommand struct {
	SubscriptionID uuid.UUID
	Reason         string
}

// CancelSubscriptionHandler handles the CancelSubscriptionCommand.
type CancelSubscriptionHandler struct {
	subRepo    domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      Clock
}

// NewCancelSubscriptionHandler creates a new CancelSubscriptionHandler.
func NewCancelSubscriptionHandler(
	subRepo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock Clock,
) *CancelSubscriptionHandler {
	return &CancelSubscriptionHandler{
		subRepo:    subRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
	}
}

// Handle executes the CancelSubscriptionCommand. Cancellation is terminal:
// the subscription keeps its end date but will never renew.
func (h *CancelSubscriptionHandler) Handle(ctx context.Context, cmd CancelSubscriptionCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		sub, err := h.subRepo.FindByID(txCtx, cmd.SubscriptionID)
		if err != nil {
			return err
		}

		if err := sub.Cancel(cmd.Reason, h.clock.now()); err != nil {
			return err
		}

		if err := h.subRepo.Update(txCtx, sub); err != nil {
			return err
		}

		events := sub.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(sub.UserID()))

		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		return h.outboxRepo.SaveBatch(txCtx, msgs)
	})
}

// CancelForUser cancels the caller's active subscription without requiring
// the subscription id, matching the self-service cancellation flow.
func (h *CancelSubscriptionHandler) CancelForUser(ctx context.Context, userID uuid.UUID, reason string) (uuid.UUID, error) {
	var subID uuid.UUID

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		sub, err := h.subRepo.FindActiveByUserID(txCtx, userID)
		if err != nil {
			return err
		}

		if err := sub.Cancel(reason, h.clock.now()); err != nil {
			return err
		}

		if err := h.subRepo.Update(txCtx, sub); err != nil {
			return err
		}

		events := sub.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(userID))

		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		if err := h.outboxRepo.SaveBatch(txCtx, msgs); err != nil {
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
