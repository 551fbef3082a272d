package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// PostgresSubscriptionRepository implements domain.Repository using
// PostgreSQL. The one-active-per-user rule is enforced by a partial unique
// index on (user_id) over active rows.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

const subscriptionColumns = `
	id, user_id, plan_id, status, start_date, end_date, auto_renew,
	payment_method, last_payment_date, next_billing_date, cancelled_at,
	cancellation_reason, metadata, created_at, updated_at
`

// Insert stores a new subscription. A conflict with the active-uniqueness
// index is translated to domain.ErrAlreadySubscribed.
func (r *PostgresSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := json.Marshal(sub.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = shared.Executor(ctx, r.pool).Exec(ctx, query,
		sub.ID(),
		sub.UserID(),
		sub.PlanID(),
		string(sub.Status()),
		sub.StartDate(),
		sub.EndDate(),
		sub.AutoRenew(),
		nullableString(sub.PaymentMethod()),
		sub.LastPaymentDate(),
		sub.NextBillingDate(),
		sub.CancelledAt(),
		nullableString(sub.CancellationReason()),
		metadata,
		sub.CreatedAt(),
		sub.UpdatedAt(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// Update persists the current state of an existing subscription.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := json.Marshal(sub.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE subscriptions SET
			plan_id = $2,
			status = $3,
			start_date = $4,
			end_date = $5,
			auto_renew = $6,
			payment_method = $7,
			last_payment_date = $8,
			next_billing_date = $9,
			cancelled_at = $10,
			cancellation_reason = $11,
			metadata = $12,
			updated_at = $13
		WHERE id = $1
	`
	tag, err := shared.Executor(ctx, r.pool).Exec(ctx, query,
		sub.ID(),
		sub.PlanID(),
		string(sub.Status()),
		sub.StartDate(),
		sub.EndDate(),
		sub.AutoRenew(),
		nullableString(sub.PaymentMethod()),
		sub.LastPaymentDate(),
		sub.NextBillingDate(),
		sub.CancelledAt(),
		nullableString(sub.CancellationReason()),
		metadata,
		sub.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// FindByID retrieves a subscription by its ID.
func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	sub, err := scanPgSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindActiveByUserID retrieves the user's active subscription.
func (r *PostgresSubscriptionRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = $2
	`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, userID, string(domain.StatusActive))
	sub, err := scanPgSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	return sub, nil
}

// FindLatestByUserID retrieves the user's most recent subscription in any status.
func (r *PostgresSubscriptionRepository) FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, userID)
	sub, err := scanPgSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindExpiredActive retrieves active subscriptions whose end date has passed.
func (r *PostgresSubscriptionRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND end_date < $2
		ORDER BY end_date
		LIMIT $3
	`

	rows, err := shared.Executor(ctx, r.pool).Query(ctx, query, string(domain.StatusActive), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanPgSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func scanPgSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		id                 uuid.UUID
		userID             uuid.UUID
		planID             uuid.UUID
		status             string
		startDate          time.Time
		endDate            time.Time
		autoRenew          bool
		paymentMethod      *string
		lastPaymentDate    time.Time
		nextBillingDate    *time.Time
		cancelledAt        *time.Time
		cancellationReason *string
		metadataRaw        []byte
		createdAt          time.Time
		updatedAt          time.Time
	)

	err := row.Scan(
		&id, &userID, &planID, &status, &startDate, &endDate, &autoRenew,
		&paymentMethod, &lastPaymentDate, &nextBillingDate, &cancelledAt,
		&cancellationReason, &metadataRaw, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in database: %w", err)
		}
	}

	return domain.RehydrateSubscription(
		id, userID, planID,
		domain.Status(status),
		startDate, endDate,
		autoRenew,
		stringValue(paymentMethod),
		lastPaymentDate,
		nextBillingDate, cancelledAt,
		stringValue(cancellationReason),
		metadata,
		createdAt, updatedAt,
	), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
