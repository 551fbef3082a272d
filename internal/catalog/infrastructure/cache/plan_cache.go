// Package cache provides a Redis read-through layer over the plan
// repository. Plans change rarely and are read on every subscription
// create, which makes them the one hot read path worth caching.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/subtrackhq/subtrack/internal/catalog/domain"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// DefaultTTL is how long cached plans live without invalidation.
const DefaultTTL = 5 * time.Minute

// cachedPlan is the wire form of a plan in Redis.
type cachedPlan struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PriceCents   int64     `json:"priceCents"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"durationDays"`
	Features     []string  `json:"features"`
	MaxUsers     *int      `json:"maxUsers,omitempty"`
	MaxStorage   *int64    `json:"maxStorageBytes,omitempty"`
	APICallLimit *int      `json:"apiCallLimit,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PlanCache decorates a plan repository with Redis caching on the id
// lookup. Writes pass through and invalidate. Reads inside a transaction
// bypass the cache so transactional callers always see committed, current
// rows.
type PlanCache struct {
	inner  domain.Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPlanCache creates the caching decorator.
func NewPlanCache(inner domain.Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *PlanCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func planKey(id uuid.UUID) string {
	return "subtrack:plan:" + id.String()
}

// inTransaction reports whether the context carries an open transaction.
func inTransaction(ctx context.Context) bool {
	if _, ok := shared.PgTxInfoFromContext(ctx); ok {
		return true
	}
	if _, ok := shared.SQLiteTxInfoFromContext(ctx); ok {
		return true
	}
	return false
}

// Insert passes through and primes the cache.
func (c *PlanCache) Insert(ctx context.Context, plan *domain.Plan) error {
	if err := c.inner.Insert(ctx, plan); err != nil {
		return err
	}
	c.invalidate(ctx, plan.ID())
	return nil
}

// Update passes through and invalidates the cached entry.
func (c *PlanCache) Update(ctx context.Context, plan *domain.Plan) error {
	if err := c.inner.Update(ctx, plan); err != nil {
		return err
	}
	c.invalidate(ctx, plan.ID())
	return nil
}

// FindByID serves from Redis when possible, falling back to the store.
func (c *PlanCache) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	if inTransaction(ctx) {
		return c.inner.FindByID(ctx, id)
	}

	if plan, ok := c.get(ctx, id); ok {
		return plan, nil
	}

	plan, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, plan)
	return plan, nil
}

// FindByName passes through; name lookups are rare (seeding, admin).
func (c *PlanCache) FindByName(ctx context.Context, name string) (*domain.Plan, error) {
	return c.inner.FindByName(ctx, name)
}

// List passes through; the listing is already a single indexed query.
func (c *PlanCache) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	return c.inner.List(ctx, activeOnly)
}

func (c *PlanCache) get(ctx context.Context, id uuid.UUID) (*domain.Plan, bool) {
	raw, err := c.client.Get(ctx, planKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("plan cache read failed", "plan_id", id, "error", err)
		return nil, false
	}

	var cp cachedPlan
	if err := json.Unmarshal(raw, &cp); err != nil {
		c.logger.Warn("plan cache entry corrupt", "plan_id", id, "error", err)
		return nil, false
	}

	limits := domain.Limits{
		MaxUsers:        cp.MaxUsers,
		MaxStorageBytes: cp.MaxStorage,
		APICallLimit:    cp.APICallLimit,
	}

	return domain.RehydratePlan(
		cp.ID, cp.Name, cp.Description, cp.PriceCents, cp.Currency,
		cp.DurationDays, cp.Features, limits, cp.IsActive, cp.CreatedAt, cp.UpdatedAt,
	), true
}

func (c *PlanCache) set(ctx context.Context, plan *domain.Plan) {
	raw, err := json.Marshal(cachedPlan{
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
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, planKey(plan.ID()), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("plan cache write failed", "plan_id", plan.ID(), "error", err)
	}
}

func (c *PlanCache) invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, planKey(id)).Err(); err != nil {
		c.logger.Warn("plan cache invalidation failed", "plan_id", id, "error", err)
	}
}
