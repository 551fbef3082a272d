package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/subtrackhq/subtrack/internal/identity/domain"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
)

// Clock supplies the current time. A nil Clock falls back to time.Now in UTC.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Service provides account registration, authentication, and the user
// directory other contexts resolve against.
type Service struct {
	users      domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	bcryptCost int
	clock      Clock
}

// NewService creates a new identity service.
func NewService(users domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clock Clock) *Service {
	return &Service{
		users:      users,
		outboxRepo: outboxRepo,
		uow:        uow,
		bcryptCost: bcrypt.DefaultCost,
		clock:      clock,
	}
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ErrWeakPassword is returned when the password fails the minimum policy.
var ErrWeakPassword = errors.New("password must be at least 8 characters")

// Register creates a new account with a bcrypt-hashed credential.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email, err := domain.NewEmail(input.Email)
	if err != nil {
		return nil, err
	}
	firstName, err := domain.NewName(input.FirstName)
	if err != nil {
		return nil, err
	}
	lastName, err := domain.NewName(input.LastName)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := domain.NewUser(email, string(hash), firstName, lastName)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.users.Insert(txCtx, user); err != nil {
			return err
		}

		events := user.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(user.ID()))

		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		return s.outboxRepo.SaveBatch(txCtx, msgs)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Login verifies the credential and stamps the login time. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, emailStr, password string) (*domain.User, error) {
	email, err := domain.NewEmail(emailStr)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, domain.ErrUserDeactivated
	}

	user.RecordLogin(s.clock.now())
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// DeactivateUser disables an account.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Deactivate()
	return s.users.Update(ctx, user)
}

// Exists reports whether the user is registered. Part of the directory
// contract the subscription context resolves against.
func (s *Service) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsActive reports whether the user account is active.
func (s *Service) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsActive(), nil
}
