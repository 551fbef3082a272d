package queries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// Clock supplies the current time for the derived read-model fields. A nil
// Clock falls back to time.Now in UTC.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// GetSubscriptionQuery contains the parameters for getting one subscription.
type GetSubscriptionQuery struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID // For authorization check
}

// GetSubscriptionHandler handles the GetSubscriptionQuery.
type GetSubscriptionHandler struct {
	subRepo domain.Repository
	plans   PlanViewer
	users   UserViewer
	clock   Clock
}

// NewGetSubscriptionHandler creates a new GetSubscriptionHandler.
func NewGetSubscriptionHandler(subRepo domain.Repository, plans PlanViewer, users UserViewer, clock Clock) *GetSubscriptionHandler {
	return &GetSubscriptionHandler{subRepo: subRepo, plans: plans, users: users, clock: clock}
}

// Handle executes the GetSubscriptionQuery.
func (h *GetSubscriptionHandler) Handle(ctx context.Context, query GetSubscriptionQuery) (*SubscriptionDTO, error) {
	sub, err := h.subRepo.FindByID(ctx, query.SubscriptionID)
	if err != nil {
		return nil, err
	}

	// A subscription belonging to someone else is indistinguishable from a
	// missing one.
	if sub.UserID() != query.UserID {
		return nil, domain.ErrSubscriptionNotFound
	}

	dto := toDTO(sub, h.clock.now())
	if err := joinViews(ctx, h.plans, h.users, dto); err != nil {
		return nil, err
	}

	return dto, nil
}
