package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

// SQLiteSubscriptionRepository implements domain.Repository using SQLite.
// Times are stored as RFC3339 text in UTC so lexical comparison matches
// chronological order.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

// Insert stores a new subscription. A conflict with the active-uniqueness
// index is translated to domain.ErrAlreadySubscribed.
func (r *SQLiteSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := json.Marshal(sub.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, status, start_date, end_date, auto_renew,
			payment_method, last_payment_date, next_billing_date, cancelled_at,
			cancellation_reason, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		sub.ID().String(),
		sub.UserID().String(),
		sub.PlanID().String(),
		string(sub.Status()),
		shared.FormatSQLiteTime(sub.StartDate()),
		shared.FormatSQLiteTime(sub.EndDate()),
		sub.AutoRenew(),
		nullableString(sub.PaymentMethod()),
		shared.FormatSQLiteTime(sub.LastPaymentDate()),
		shared.FormatSQLiteTimePtr(sub.NextBillingDate()),
		shared.FormatSQLiteTimePtr(sub.CancelledAt()),
		nullableString(sub.CancellationReason()),
		string(metadata),
		shared.FormatSQLiteTime(sub.CreatedAt()),
		shared.FormatSQLiteTime(sub.UpdatedAt()),
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
func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := json.Marshal(sub.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE subscriptions SET
			plan_id = ?,
			status = ?,
			start_date = ?,
			end_date = ?,
			auto_renew = ?,
			payment_method = ?,
			last_payment_date = ?,
			next_billing_date = ?,
			cancelled_at = ?,
			cancellation_reason = ?,
			metadata = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		sub.PlanID().String(),
		string(sub.Status()),
		shared.FormatSQLiteTime(sub.StartDate()),
		shared.FormatSQLiteTime(sub.EndDate()),
		sub.AutoRenew(),
		nullableString(sub.PaymentMethod()),
		shared.FormatSQLiteTime(sub.LastPaymentDate()),
		shared.FormatSQLiteTimePtr(sub.NextBillingDate()),
		shared.FormatSQLiteTimePtr(sub.CancelledAt()),
		nullableString(sub.CancellationReason()),
		string(metadata),
		shared.FormatSQLiteTime(sub.UpdatedAt()),
		sub.ID().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

const sqliteSubscriptionColumns = `
	id, user_id, plan_id, status, start_date, end_date, auto_renew,
	payment_method, last_payment_date, next_billing_date, cancelled_at,
	cancellation_reason, metadata, created_at, updated_at
`

// FindByID retrieves a subscription by its ID.
func (r *SQLiteSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + sqliteSubscriptionColumns + ` FROM subscriptions WHERE id = ?`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	sub, err := scanSQLiteSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindActiveByUserID retrieves the user's active subscription.
func (r *SQLiteSubscriptionRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + sqliteSubscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND status = ?
	`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, userID.String(), string(domain.StatusActive))
	sub, err := scanSQLiteSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	return sub, nil
}

// FindLatestByUserID retrieves the user's most recent subscription in any status.
func (r *SQLiteSubscriptionRepository) FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + sqliteSubscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, userID.String())
	sub, err := scanSQLiteSubscription(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// FindExpiredActive retrieves active subscriptions whose end date has passed.
func (r *SQLiteSubscriptionRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	query := `
		SELECT ` + sqliteSubscriptionColumns + `
		FROM subscriptions
		WHERE status = ? AND end_date < ?
		ORDER BY end_date
		LIMIT ?
	`

	rows, err := shared.SQLiteDB(ctx, r.db).QueryContext(ctx, query,
		string(domain.StatusActive), shared.FormatSQLiteTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSQLiteSubscription(rows)
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

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row sqliteScanner) (*domain.Subscription, error) {
	var (
		idStr              string
		userIDStr          string
		planIDStr          string
		status             string
		startDate          string
		endDate            string
		autoRenew          bool
		paymentMethod      sql.NullString
		lastPaymentDate    string
		nextBillingDate    sql.NullString
		cancelledAt        sql.NullString
		cancellationReason sql.NullString
		metadataRaw        sql.NullString
		createdAt          string
		updatedAt          string
	)

	err := row.Scan(
		&idStr, &userIDStr, &planIDStr, &status, &startDate, &endDate, &autoRenew,
		&paymentMethod, &lastPaymentDate, &nextBillingDate, &cancelledAt,
		&cancellationReason, &metadataRaw, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid subscription id in database: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in database: %w", err)
	}
	planID, err := uuid.Parse(planIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid plan id in database: %w", err)
	}

	start, err := shared.ParseSQLiteTime(startDate)
	if err != nil {
		return nil, err
	}
	end, err := shared.ParseSQLiteTime(endDate)
	if err != nil {
		return nil, err
	}
	lastPayment, err := shared.ParseSQLiteTime(lastPaymentDate)
	if err != nil {
		return nil, err
	}
	nextBilling, err := shared.ParseSQLiteTimePtr(nextBillingDate)
	if err != nil {
		return nil, err
	}
	cancelled, err := shared.ParseSQLiteTimePtr(cancelledAt)
	if err != nil {
		return nil, err
	}
	created, err := shared.ParseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := shared.ParseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in database: %w", err)
		}
	}

	var reason string
	if cancellationReason.Valid {
		reason = cancellationReason.String
	}
	var method string
	if paymentMethod.Valid {
		method = paymentMethod.String
	}

	return domain.RehydrateSubscription(
		id, userID, planID,
		domain.Status(status),
		start, end,
		autoRenew,
		method,
		lastPayment,
		nextBilling, cancelled,
		reason,
		metadata,
		created, updated,
	), nil
}
