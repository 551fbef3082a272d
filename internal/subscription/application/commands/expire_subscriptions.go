package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// ExpireSubscriptionsCommand asks for one bounded sweep over overdue
// subscriptions.
type ExpireSubscriptionsCommand struct {
	// BatchSize caps how many subscriptions a single sweep processes.
	BatchSize int
}

// ExpireSubscriptionsResult reports what a sweep did.
type ExpireSubscriptionsResult struct {
	// Scanned is the number of candidate subscriptions found.
	Scanned int

	// Expired is the number of subscriptions transitioned to expired.
	Expired int

	// Failed is the number of candidates that could not be expired and
	// were left for the next sweep.
	Failed int
}

// ExpireSubscriptionsHandler transitions overdue active subscriptions to
// expired. Each candidate gets its own transaction so one failure cannot
// roll back the rest of the batch.
type ExpireSubscriptionsHandler struct {
	subRepo    domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      Clock
	logger     *slog.Logger
}

// NewExpireSubscriptionsHandler creates a new ExpireSubscriptionsHandler.
func NewExpireSubscriptionsHandler(
	subRepo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock Clock,
	logger *slog.Logger,
) *ExpireSubscriptionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireSubscriptionsHandler{
		subRepo:    subRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		logger:     logger,
	}
}

// Handle executes one sweep. Candidates are read without a transaction and
// each is re-checked inside its own transaction before transitioning, so a
// cancellation that lands between the scan and the write is respected.
func (h *ExpireSubscriptionsHandler) Handle(ctx context.Context, cmd ExpireSubscriptionsCommand) (*ExpireSubscriptionsResult, error) {
	now := h.clock.now()

	candidates, err := h.subRepo.FindExpiredActive(ctx, now, cmd.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &ExpireSubscriptionsResult{Scanned: len(candidates)}

	for _, candidate := range candidates {
		expired, err := h.expireOne(ctx, candidate.ID(), now)
		if err != nil {
			result.Failed++
			h.logger.Error("failed to expire subscription",
				"subscription_id", candidate.ID(),
				"user_id", candidate.UserID(),
				"error", err,
			)
			continue
		}
		if expired {
			result.Expired++
		}
	}

	return result, nil
}

func (h *ExpireSubscriptionsHandler) expireOne(ctx context.Context, subscriptionID uuid.UUID, now time.Time) (bool, error) {
	expired := false

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		sub, err := h.subRepo.FindByID(txCtx, subscriptionID)
		if err != nil {
			return err
		}

		// Re-check under the transaction: the candidate may have been
		// cancelled or already expired since the scan.
		if sub.Status() != domain.StatusActive || !sub.IsExpired(now) {
			return nil
		}

		if err := sub.Expire(now); err != nil {
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
		if err := h.outboxRepo.SaveBatch(txCtx, msgs); err != nil {
			return err
		}

		expired = true
		return nil
	})

	return expired, err
}
