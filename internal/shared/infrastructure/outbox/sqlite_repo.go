package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// SQLiteRepository implements Repository with SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores a new outbox message.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO outbox_messages (
			event_id, aggregate_type, aggregate_id, routing_key,
			payload, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := persistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.RoutingKey,
		string(msg.Payload),
		string(msg.Metadata),
		persistence.FormatSQLiteTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save outbox message: %w", err)
	}
	return nil
}

// SaveBatch stores multiple outbox messages within the caller's transaction.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished retrieves unpublished messages due for delivery.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at,
		       retry_count, last_error
		FROM outbox_messages
		WHERE published_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at
		LIMIT ?
	`
	now := persistence.FormatSQLiteTime(time.Now())
	rows, err := persistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE outbox_messages SET published_at = ? WHERE id = ?`
	now := persistence.FormatSQLiteTime(time.Now())
	_, err := persistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query, now, id)
	return err
}

// MarkFailed records a publish failure and schedules the next retry.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?
	`
	_, err := persistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		errMsg, persistence.FormatSQLiteTime(nextRetryAt), id)
	return err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox_messages
		WHERE published_at IS NOT NULL AND published_at < ?
	`
	cutoff := persistence.FormatSQLiteTime(time.Now().Add(-olderThan))
	res, err := persistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg            Message
		eventIDStr     string
		aggregateIDStr string
		payload        string
		metadata       string
		createdAtStr   string
		publishedAtStr sql.NullString
		nextRetryStr   sql.NullString
		lastError      sql.NullString
	)

	if err := rows.Scan(
		&msg.ID,
		&eventIDStr,
		&msg.AggregateType,
		&aggregateIDStr,
		&msg.RoutingKey,
		&payload,
		&metadata,
		&createdAtStr,
		&publishedAtStr,
		&nextRetryStr,
		&msg.RetryCount,
		&lastError,
	); err != nil {
		return nil, fmt.Errorf("failed to scan outbox message: %w", err)
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventIDStr); err != nil {
		return nil, fmt.Errorf("invalid event ID in outbox row: %w", err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateIDStr); err != nil {
		return nil, fmt.Errorf("invalid aggregate ID in outbox row: %w", err)
	}

	msg.Payload = []byte(payload)
	msg.Metadata = []byte(metadata)

	if msg.CreatedAt, err = persistence.ParseSQLiteTime(createdAtStr); err != nil {
		return nil, err
	}
	if publishedAtStr.Valid {
		t, err := persistence.ParseSQLiteTime(publishedAtStr.String)
		if err != nil {
			return nil, err
		}
		msg.PublishedAt = &t
	}
	if nextRetryStr.Valid {
		t, err := persistence.ParseSQLiteTime(nextRetryStr.String)
		if err != nil {
			return nil, err
		}
		msg.NextRetryAt = &t
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}

	return &msg, nil
}
