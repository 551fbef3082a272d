package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subtrackhq/subtrack/internal/identity/domain"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
)

// PostgresUserRepository implements domain.Repository using PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new repository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Insert stores a new user.
func (r *PostgresUserRepository) Insert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name,
			is_active, last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := shared.Executor(ctx, r.pool).Exec(ctx, query,
		user.ID(),
		user.Email().String(),
		user.PasswordHash(),
		user.FirstName().String(),
		user.LastName().String(),
		user.IsActive(),
		user.LastLoginAt(),
		user.CreatedAt(),
		user.UpdatedAt(),
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
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users SET
			email = $1,
			password_hash = $2,
			first_name = $3,
			last_name = $4,
			is_active = $5,
			last_login_at = $6,
			updated_at = $7
		WHERE id = $8
	`
	result, err := shared.Executor(ctx, r.pool).Exec(ctx, query,
		user.Email().String(),
		user.PasswordHash(),
		user.FirstName().String(),
		user.LastName().String(),
		user.IsActive(),
		user.LastLoginAt(),
		user.UpdatedAt(),
		user.ID(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const userColumns = `
	id, email, password_hash, first_name, last_name,
	is_active, last_login_at, created_at, updated_at
`

// FindByID retrieves a user by ID.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	user, err := scanPgUser(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves a user by email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	row := shared.Executor(ctx, r.pool).QueryRow(ctx, query, email.String())
	user, err := scanPgUser(row)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanPgUser(row pgRow) (*domain.User, error) {
	var (
		id           uuid.UUID
		emailStr     string
		passwordHash string
		firstNameStr string
		lastNameStr  string
		isActive     bool
		lastLoginAt  *time.Time
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&id, &emailStr, &passwordHash, &firstNameStr, &lastNameStr,
		&isActive, &lastLoginAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return rehydrateUser(id, emailStr, passwordHash, firstNameStr, lastNameStr, isActive, lastLoginAt, createdAt, updatedAt)
}

func rehydrateUser(
	id uuid.UUID,
	emailStr, passwordHash, firstNameStr, lastNameStr string,
	isActive bool,
	lastLoginAt *time.Time,
	createdAt, updatedAt time.Time,
) (*domain.User, error) {
	email, err := domain.NewEmail(emailStr)
	if err != nil {
		return nil, fmt.Errorf("invalid email in database: %w", err)
	}
	firstName, err := domain.NewName(firstNameStr)
	if err != nil {
		return nil, fmt.Errorf("invalid first name in database: %w", err)
	}
	lastName, err := domain.NewName(lastNameStr)
	if err != nil {
		return nil, fmt.Errorf("invalid last name in database: %w", err)
	}

	return domain.RehydrateUser(id, email, passwordHash, firstName, lastName, isActive, lastLoginAt, createdAt, updatedAt), nil
}
