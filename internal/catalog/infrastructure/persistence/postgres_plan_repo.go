package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subtrackhq/subtrack/internal/catalog/domain"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// PostgresPlanRepository implements domain.Repository using PostgreSQL.
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPlanRepository creates a new repository.
func NewPostgresPlanRepository(pool *pgxpool.Pool) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool}
}

const planColumns = `
	id, name, description, price_cents, currency, duration_days,
	features, max_users, max_storage_bytes, api_call_limit,
	is_active, created_at, updated_at
`

// Insert stores a new plan.
func (r *PostgresPlanRepository) Insert(ctx context.Context, plan *domain.Plan) error {
	features, err := json.Marshal(plan.Features())
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = shared.Executor(ctx, r.pool).Exec(ctx, query,
		plan.ID(),
		plan.Name(),
		plan.Description(),
		plan.PriceCents(),
		plan.Currency(),
		plan.DurationDays(),
		features,
		plan.Limits().MaxUsers,
		plan.Limits().MaxStorageBytes,
		plan.Limits().APICallLimit,
		plan.IsActive(),
		plan.CreatedAt(),
		plan.UpdatedAt(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicatePlan
		}
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// Update persists the current state of an existing plan.
func (r *PostgresPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	features, err := json.Marshal(plan.Features())
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		UPDATE plans SET
			name = $2,
			description = $3,
			price_cents = $4,
			currency = $5,
			duration_days = $6,
			features = $7,
			max_users = $8,
			max_storage_bytes = $9,
			api_call_limit = $10,
			is_active = $11,
			updated_at = $12
		WHERE id = $1
	`
	tag, err := shared.Executor(ctx, r.pool).Exec(ctx, query,
		plan.ID(),
		plan.Name(),
		plan.Description(),
		plan.PriceCents(),
		plan.Currency(),
		plan.DurationDays(),
		features,
		plan.Limits().MaxUsers,
		plan.Limits().MaxStorageBytes,
		plan.Limits().APICallLimit,
		plan.IsActive(),
		plan.UpdatedAt(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicatePlan
		}
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

// FindByID retrieves a plan by its ID.
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	plan, err := scanPgPlan(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// FindByName retrieves a plan by its unique name.
func (r *PostgresPlanRepository) FindByName(ctx context.Context, name string) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE name = $1`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, name)
	plan, err := scanPgPlan(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// List retrieves plans ordered by price.
func (r *PostgresPlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY price_cents`

	rows, err := shared.Executor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		plan, err := scanPgPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func scanPgPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		id           uuid.UUID
		name         string
		description  *string
		priceCents   int64
		currency     string
		durationDays int
		featuresRaw  []byte
		limits       domain.Limits
		isActive     bool
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&id, &name, &description, &priceCents, &currency, &durationDays,
		&featuresRaw, &limits.MaxUsers, &limits.MaxStorageBytes, &limits.APICallLimit,
		&isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	var features []string
	if len(featuresRaw) > 0 {
		if err := json.Unmarshal(featuresRaw, &features); err != nil {
			return nil, fmt.Errorf("invalid features in database: %w", err)
		}
	}

	var desc string
	if description != nil {
		desc = *description
	}

	return domain.RehydratePlan(
		id, name, desc, priceCents, currency, durationDays,
		features, limits, isActive, createdAt, updatedAt,
	), nil
}
