package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/identity/domain"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// SQLiteUserRepository implements domain.Repository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Insert stores a new user.
func (r *SQLiteUserRepository) Insert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name,
			is_active, last_login_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		user.ID().String(),
		user.Email().String(),
		user.PasswordHash(),
		user.FirstName().String(),
		user.LastName().String(),
		user.IsActive(),
		shared.FormatSQLiteTimePtr(user.LastLoginAt()),
		shared.FormatSQLiteTime(user.CreatedAt()),
		shared.FormatSQLiteTime(user.UpdatedAt()),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update persists the current state of an existing user.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users SET
			email = ?,
			password_hash = ?,
			first_name = ?,
			last_name = ?,
			is_active = ?,
			last_login_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := shared.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		user.Email().String(),
		user.PasswordHash(),
		user.FirstName().String(),
		user.LastName().String(),
		user.IsActive(),
		shared.FormatSQLiteTimePtr(user.LastLoginAt()),
		shared.FormatSQLiteTime(user.UpdatedAt()),
		user.ID().String(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const sqliteUserColumns = `
	id, email, password_hash, first_name, last_name,
	is_active, last_login_at, created_at, updated_at
`

// FindByID retrieves a user by ID.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + sqliteUserColumns + ` FROM users WHERE id = ?`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	user, err := scanSQLiteUser(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves a user by email address.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	query := `SELECT ` + sqliteUserColumns + ` FROM users WHERE email = ?`

	row := shared.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, email.String())
	user, err := scanSQLiteUser(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row sqliteScanner) (*domain.User, error) {
	var (
		idStr        string
		emailStr     string
		passwordHash string
		firstNameStr string
		lastNameStr  string
		isActive     bool
		lastLoginRaw sql.NullString
		createdAtRaw string
		updatedAtRaw string
	)

	err := row.Scan(
		&idStr, &emailStr, &passwordHash, &firstNameStr, &lastNameStr,
		&isActive, &lastLoginRaw, &createdAtRaw, &updatedAtRaw,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in database: %w", err)
	}
	lastLoginAt, err := shared.ParseSQLiteTimePtr(lastLoginRaw)
	if err != nil {
		return nil, err
	}
	createdAt, err := shared.ParseSQLiteTime(createdAtRaw)
	if err != nil {
		return nil, err
	}
	updatedAt, err := shared.ParseSQLiteTime(updatedAtRaw)
	if err != nil {
		return nil, err
	}

	return rehydrateUser(id, emailStr, passwordHash, firstNameStr, lastNameStr, isActive, lastLoginAt, createdAt, updatedAt)
}
