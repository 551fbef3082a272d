package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/internal/subscription/application/queries"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

type subscriptionCreator interface {
	Handle(ctx context.Context, cmd commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error)
}

type subscriptionUpdater interface {
	Handle(ctx context.Context, cmd commands.UpdateSubscriptionCommand) error
	UpdateForUser(ctx context.Context, userID uuid.UUID, patch commands.SubscriptionPatch) (uuid.UUID, error)
}

type subscriptionCanceler interface {
	Handle(ctx context.Context, cmd commands.CancelSubscriptionCommand) error
	CancelForUser(ctx context.Context, userID uuid.UUID, reason string) (uuid.UUID, error)
}

type subscriptionGetter interface {
	Handle(ctx context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error)
}

type currentSubscriptionGetter interface {
	Handle(ctx context.Context, query queries.GetCurrentSubscriptionQuery) (*queries.SubscriptionDTO, error)
}

// SubscriptionHandler handles subscription API requests.
type SubscriptionHandler struct {
	create     subscriptionCreator
	update     subscriptionUpdater
	cancel     subscriptionCanceler
	get        subscriptionGetter
	getCurrent currentSubscriptionGetter
	logger     *slog.Logger
}

// SubscriptionHandlerConfig holds dependencies for the subscription handler.
type SubscriptionHandlerConfig struct {
	Create     subscriptionCreator
	Update     subscriptionUpdater
	Cancel     subscriptionCanceler
	Get        subscriptionGetter
	GetCurrent currentSubscriptionGetter
	Logger     *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(cfg SubscriptionHandlerConfig) *SubscriptionHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SubscriptionHandler{
		create:     cfg.Create,
		update:     cfg.Update,
		cancel:     cfg.Cancel,
		get:        cfg.Get,
		getCurrent: cfg.GetCurrent,
		logger:     cfg.Logger,
	}
}

// Create handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	var req struct {
		PlanID        uuid.UUID      `json:"planId"`
		AutoRenew     bool           `json:"autoRenew"`
		PaymentMethod string         `json:"paymentMethod"`
		Metadata      map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PlanID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "planId is required")
		return
	}

	result, err := h.create.Handle(r.Context(), commands.CreateSubscriptionCommand{
		UserID:        userID,
		PlanID:        req.PlanID,
		AutoRenew:     req.AutoRenew,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadySubscribed):
			writeError(w, http.StatusConflict, "You already have an active subscription")
		case errors.Is(err, commands.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "Plan not found")
		case errors.Is(err, commands.ErrPlanInactive):
			writeError(w, http.StatusUnprocessableEntity, "Plan is no longer available")
		case errors.Is(err, commands.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, commands.ErrUserInactive):
			writeError(w, http.StatusForbidden, "Account is deactivated")
		case errors.Is(err, domain.ErrInvalidDuration):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to create subscription", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "Failed to create subscription")
		}
		return
	}

	dto, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: result.SubscriptionID,
		UserID:         userID,
	})
	if err != nil {
		h.logger.Error("failed to load created subscription", "error", err, "subscription_id", result.SubscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}

	writeJSON(w, http.StatusCreated, dto)
}

// Get handles GET /api/v1/subscriptions/{subscriptionID}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	subscriptionID, err := pathUUID(r, "subscriptionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription ID")
		return
	}

	dto, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: subscriptionID,
		UserID:         userID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "Subscription not found")
			return
		}
		h.logger.Error("failed to load subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

// GetCurrent handles GET /api/v1/subscriptions/current
func (h *SubscriptionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	dto, err := h.getCurrent.Handle(r.Context(), queries.GetCurrentSubscriptionQuery{UserID: userID})
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "No subscription on record")
			return
		}
		h.logger.Error("failed to load current subscription", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

// Update handles PATCH /api/v1/subscriptions/{subscriptionID}
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	subscriptionID, err := pathUUID(r, "subscriptionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription ID")
		return
	}

	// Ownership check: the subscription must be visible to the caller.
	if _, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: subscriptionID,
		UserID:         userID,
	}); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "Subscription not found")
			return
		}
		h.logger.Error("failed to load subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}

	var req struct {
		PlanID        *uuid.UUID     `json:"planId"`
		AutoRenew     *bool          `json:"autoRenew"`
		PaymentMethod *string        `json:"paymentMethod"`
		Metadata      map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.update.Handle(r.Context(), commands.UpdateSubscriptionCommand{
		SubscriptionID: subscriptionID,
		PlanID:         req.PlanID,
		AutoRenew:      req.AutoRenew,
		PaymentMethod:  req.PaymentMethod,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.writeUpdateError(w, err, subscriptionID)
		return
	}

	dto, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: subscriptionID,
		UserID:         userID,
	})
	if err != nil {
		h.logger.Error("failed to reload subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

// UpdateCurrent handles PATCH /api/v1/subscriptions/current
func (h *SubscriptionHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	var req struct {
		PlanID        *uuid.UUID     `json:"planId"`
		AutoRenew     *bool          `json:"autoRenew"`
		PaymentMethod *string        `json:"paymentMethod"`
		Metadata      map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subscriptionID, err := h.update.UpdateForUser(r.Context(), userID, commands.SubscriptionPatch{
		PlanID:        req.PlanID,
		AutoRenew:     req.AutoRenew,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.writeUpdateError(w, err, subscriptionID)
		return
	}

	dto, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: subscriptionID,
		UserID:         userID,
	})
	if err != nil {
		h.logger.Error("failed to reload subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

func (h *SubscriptionHandler) writeUpdateError(w http.ResponseWriter, err error, subscriptionID uuid.UUID) {
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, domain.ErrNoActiveSubscription):
		writeError(w, http.StatusNotFound, "No active subscription to update")
	case errors.Is(err, domain.ErrSubscriptionNotActive):
		// Terminal records cannot be targeted; answer as if no active
		// subscription exists.
		writeError(w, http.StatusNotFound, "No active subscription to update")
	case errors.Is(err, commands.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "Plan not found")
	case errors.Is(err, commands.ErrPlanInactive):
		writeError(w, http.StatusUnprocessableEntity, "Plan is no longer available")
	default:
		h.logger.Error("failed to update subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to update subscription")
	}
}

// Cancel handles POST /api/v1/subscriptions/{subscriptionID}/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	subscriptionID, err := pathUUID(r, "subscriptionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription ID")
		return
	}

	// Ownership check before mutating.
	if _, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: subscriptionID,
		UserID:         userID,
	}); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "Subscription not found")
			return
		}
		h.logger.Error("failed to load subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
		return
	}

	reason := cancelReason(r)

	err = h.cancel.Handle(r.Context(), commands.CancelSubscriptionCommand{
		SubscriptionID: subscriptionID,
		Reason:         reason,
	})
	if err != nil {
		h.writeCancelError(w, err, subscriptionID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelCurrent handles POST /api/v1/subscriptions/current/cancel
func (h *SubscriptionHandler) CancelCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	reason := cancelReason(r)

	subscriptionID, err := h.cancel.CancelForUser(r.Context(), userID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSubscription) {
			writeError(w, http.StatusNotFound, "No active subscription to cancel")
			return
		}
		h.writeCancelError(w, err, subscriptionID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subscriptionId": subscriptionID.String(),
	})
}

func (h *SubscriptionHandler) writeCancelError(w http.ResponseWriter, err error, subscriptionID uuid.UUID) {
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, domain.ErrSubscriptionNotActive):
		// Cancelling an already-terminal subscription answers the same as
		// having nothing to cancel.
		writeError(w, http.StatusNotFound, "No active subscription to cancel")
	default:
		h.logger.Error("failed to cancel subscription", "error", err, "subscription_id", subscriptionID)
		writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
	}
}

// cancelReason reads the optional cancellation reason. An unreadable or
// empty body is treated as no reason.
func cancelReason(r *http.Request) string {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return ""
	}
	return req.Reason
}
