package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/catalog/domain"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// SQLitePlanRepository implements domain.Repository using SQLite.
type SQLitePlanRepository struct {
	db *sql.DB
}

// NewSQLitePlanRepository creates a new repository.
func NewSQLitePlanRepository(db *sql.DB) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db}
}

// Insert stores a new plan.
func (r *SQLitePlanRepository) Insert(ctx context.Context, plan *domain.Plan) error {
	features, err := json.Marshal(plan.Features())
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO plans (
			id, name, description, price_cents, currency, duration_days,
			features, max_users, max_storage_bytes, api_call_limit,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		plan.ID().String(),
		plan.Name(),
		plan.Description(),
		plan.PriceCents(),
		plan.Currency(),
		plan.DurationDays(),
		string(features),
		plan.Limits().MaxUsers,
		plan.Limits().MaxStorageBytes,
		plan.Limits().APICallLimit,
		plan.IsActive(),
		shared.FormatSQLiteTime(plan.CreatedAt()),
		shared.FormatSQLiteTime(plan.UpdatedAt()),
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
func (r *SQLitePlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	features, err := json.Marshal(plan.Features())
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		UPDATE plans SET
			name = ?,
			description = ?,
			price_cents = ?,
			currency = ?,
			duration_days = ?,
			features = ?,
			max_users = ?,
			max_storage_bytes = ?,
			api_call_limit = ?,
			is_active = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		plan.Name(),
		plan.Description(),
		plan.PriceCents(),
		plan.Currency(),
		plan.DurationDays(),
		string(features),
		plan.Limits().MaxUsers,
		plan.Limits().MaxStorageBytes,
		plan.Limits().APICallLimit,
		plan.IsActive(),
		shared.FormatSQLiteTime(plan.UpdatedAt()),
		plan.ID().String(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicatePlan
		}
		return fmt.Errorf("failed to update plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

const sqlitePlanColumns = `
	id, name, description, price_cents, currency, duration_days,
	features, max_users, max_storage_bytes, api_call_limit,
	is_active, created_at, updated_at
`

// FindByID retrieves a plan by its ID.
func (r *SQLitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	query := `SELECT ` + sqlitePlanColumns + ` FROM plans WHERE id = ?`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	plan, err := scanSQLitePlan(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// FindByName retrieves a plan by its unique name.
func (r *SQLitePlanRepository) FindByName(ctx context.Context, name string) (*domain.Plan, error) {
	query := `SELECT ` + sqlitePlanColumns + ` FROM plans WHERE name = ?`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, name)
	plan, err := scanSQLitePlan(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// List retrieves plans ordered by price.
func (r *SQLitePlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	query := `SELECT ` + sqlitePlanColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY price_cents`

	rows, err := shared.SQLiteDB(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		plan, err := scanSQLitePlan(rows)
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

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePlan(row sqliteScanner) (*domain.Plan, error) {
	var (
		idStr        string
		name         string
		description  sql.NullString
		priceCents   int64
		currency     string
		durationDays int
		featuresRaw  sql.NullString
		limits       domain.Limits
		isActive     bool
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&idStr, &name, &description, &priceCents, &currency, &durationDays,
		&featuresRaw, &limits.MaxUsers, &limits.MaxStorageBytes, &limits.APICallLimit,
		&isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid plan id in database: %w", err)
	}
	created, err := shared.ParseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := shared.ParseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}

	var features []string
	if featuresRaw.Valid && featuresRaw.String != "" {
		if err := json.Unmarshal([]byte(featuresRaw.String), &features); err != nil {
			return nil, fmt.Errorf("invalid features in database: %w", err)
		}
	}

	return domain.RehydratePlan(
		id, name, description.String, priceCents, currency, durationDays,
		features, limits, isActive, created, updated,
	), nil
}
