package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	catalogApp "github.com/subtrackhq/subtrack/internal/catalog/application"
	catalogDomain "github.com/subtrackhq/subtrack/internal/catalog/domain"
)

// PlanCatalogService is the slice of the catalog application the API needs.
type PlanCatalogService interface {
	CreatePlan(ctx context.Context, input catalogApp.CreatePlanInput) (*catalogDomain.Plan, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, input catalogApp.UpdatePlanInput) (*catalogDomain.Plan, error)
	DeactivatePlan(ctx context.Context, id uuid.UUID) error
	GetPlan(ctx context.Context, id uuid.UUID) (*catalogDomain.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*catalogDomain.Plan, error)
}

// PlanHandler handles plan catalog API requests.
type PlanHandler struct {
	catalog PlanCatalogService
	logger  *slog.Logger
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(catalog PlanCatalogService, logger *slog.Logger) *PlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanHandler{catalog: catalog, logger: logger}
}

type planResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"priceCents"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"durationDays"`
	Features     []string  `json:"features,omitempty"`
	MaxUsers     *int      `json:"maxUsers,omitempty"`
	MaxStorage   *int64    `json:"maxStorageBytes,omitempty"`
	APICallLimit *int      `json:"apiCallLimit,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toPlanResponse(plan *catalogDomain.Plan) planResponse {
	return planResponse{
		ID:           plan.ID(),
		Name:         plan.Name(),
		Description:  plan.Description(),
		PriceCents:   plan.PriceCents(),
		Currency:     plan.Currency(),
		DurationDays: plan.DurationDays(),
		Features:     plan.Features(),
		MaxUsers:     plan.Limits().MaxUsers,
		MaxStorage:   plan.Limits().MaxStorageBytes,
		APICallLimit: plan.Limits().APICallLimit,
		IsActive:     plan.IsActive(),
		CreatedAt:    plan.CreatedAt(),
		UpdatedAt:    plan.UpdatedAt(),
	}
}

// List handles GET /api/v1/plans
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	plans, err := h.catalog.ListPlans(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list plans", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list plans")
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, toPlanResponse(plan))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// Get handles GET /api/v1/plans/{planID}
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	planID, err := pathUUID(r, "planID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	plan, err := h.catalog.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, catalogDomain.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "Plan not found")
			return
		}
		h.logger.Error("failed to load plan", "error", err, "plan_id", planID)
		writeError(w, http.StatusInternalServerError, "Failed to load plan")
		return
	}

	writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

// Create handles POST /api/v1/plans
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		PriceCents   int64    `json:"priceCents"`
		Currency     string   `json:"currency"`
		DurationDays int      `json:"durationDays"`
		Features     []string `json:"features"`
		MaxUsers     *int     `json:"maxUsers"`
		MaxStorage   *int64   `json:"maxStorageBytes"`
		APICallLimit *int     `json:"apiCallLimit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := h.catalog.CreatePlan(r.Context(), catalogApp.CreatePlanInput{
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		Features:     req.Features,
		Limits: catalogDomain.Limits{
			MaxUsers:        req.MaxUsers,
			MaxStorageBytes: req.MaxStorage,
			APICallLimit:    req.APICallLimit,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, catalogDomain.ErrDuplicatePlan):
			writeError(w, http.StatusConflict, "A plan with this name already exists")
		case errors.Is(err, catalogDomain.ErrEmptyName),
			errors.Is(err, catalogDomain.ErrInvalidPrice),
			errors.Is(err, catalogDomain.ErrInvalidDuration),
			errors.Is(err, catalogDomain.ErrInvalidLimit):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to create plan", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to create plan")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toPlanResponse(plan))
}

// Update handles PATCH /api/v1/plans/{planID}
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	planID, err := pathUUID(r, "planID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	var req struct {
		Name         *string  `json:"name"`
		Description  *string  `json:"description"`
		PriceCents   *int64   `json:"priceCents"`
		Currency     string   `json:"currency"`
		DurationDays *int     `json:"durationDays"`
		Features     []string `json:"features"`
		MaxUsers     *int     `json:"maxUsers"`
		MaxStorage   *int64   `json:"maxStorageBytes"`
		APICallLimit *int     `json:"apiCallLimit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Sending any limit field replaces the plan's limits with the provided
	// set; omitted limit fields become uncapped.
	var limits *catalogDomain.Limits
	if req.MaxUsers != nil || req.MaxStorage != nil || req.APICallLimit != nil {
		limits = &catalogDomain.Limits{
			MaxUsers:        req.MaxUsers,
			MaxStorageBytes: req.MaxStorage,
			APICallLimit:    req.APICallLimit,
		}
	}

	plan, err := h.catalog.UpdatePlan(r.Context(), planID, catalogApp.UpdatePlanInput{
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		Features:     req.Features,
		Limits:       limits,
	})
	if err != nil {
		switch {
		case errors.Is(err, catalogDomain.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "Plan not found")
		case errors.Is(err, catalogDomain.ErrDuplicatePlan):
			writeError(w, http.StatusConflict, "A plan with this name already exists")
		case errors.Is(err, catalogDomain.ErrEmptyName),
			errors.Is(err, catalogDomain.ErrInvalidPrice),
			errors.Is(err, catalogDomain.ErrInvalidDuration),
			errors.Is(err, catalogDomain.ErrInvalidLimit):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to update plan", "error", err, "plan_id", planID)
			writeError(w, http.StatusInternalServerError, "Failed to update plan")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

// Deactivate handles DELETE /api/v1/plans/{planID}
func (h *PlanHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	planID, err := pathUUID(r, "planID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	if err := h.catalog.DeactivatePlan(r.Context(), planID); err != nil {
		switch {
		case errors.Is(err, catalogDomain.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "Plan not found")
		case errors.Is(err, catalogDomain.ErrPlanDeactivated):
			writeError(w, http.StatusConflict, "Plan is already deactivated")
		default:
			h.logger.Error("failed to deactivate plan", "error", err, "plan_id", planID)
			writeError(w, http.StatusInternalServerError, "Failed to deactivate plan")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
