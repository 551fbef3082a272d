package queries

import (
	"context"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// GetCurrentSubscriptionQuery asks for a user's most recent subscription in
// any status. Terminal subscriptions stay visible as history, so this also
// answers "what did I have" after cancellation or expiry.
type GetCurrentSubscriptionQuery struct {
	UserID uuid.UUID
}

// GetCurrentSubscriptionHandler handles the GetCurrentSubscriptionQuery.
type GetCurrentSubscriptionHandler struct {
	subRepo domain.Repository
	plans   PlanViewer
	users   UserViewer
	clock   Clock
}

// NewGetCurrentSubscriptionHandler creates a new GetCurrentSubscriptionHandler.
func NewGetCurrentSubscriptionHandler(subRepo domain.Repository, plans PlanViewer, users UserViewer, clock Clock) *GetCurrentSubscriptionHandler {
	return &GetCurrentSubscriptionHandler{subRepo: subRepo, plans: plans, users: users, clock: clock}
}

// Handle executes the GetCurrentSubscriptionQuery.
func (h *GetCurrentSubscriptionHandler) Handle(ctx context.Context, query GetCurrentSubscriptionQuery) (*SubscriptionDTO, error) {
	sub, err := h.subRepo.FindLatestByUserID(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	dto := toDTO(sub, h.clock.now())
	if err := joinViews(ctx, h.plans, h.users, dto); err != nil {
		return nil, err
	}

	return dto, nil
}
