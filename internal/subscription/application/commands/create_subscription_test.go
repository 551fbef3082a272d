package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

type testCtxKey string

// txContext returns a context distinguishable from its parent, standing in
// for the transaction-carrying context a real unit of work produces.
func txContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, testCtxKey("tx"), "transaction")
}

// fixedClock freezes time for deterministic window math.
func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// mockSubscriptionRepo is a mock implementation of domain.Repository.
type mockSubscriptionRepo struct {
	mock.Mock
}

func (m *mockSubscriptionRepo) Insert(ctx context.Context, sub *domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockSubscriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

// mockOutboxRepo is a mock implementation of outbox.Repository.
type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepo) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, errMsg, nextRetryAt)
	return args.Error(0)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// mockUnitOfWork is a mock implementation of UnitOfWork.
type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// mockUserDirectory is a mock implementation of UserDirectory.
type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserDirectory) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// mockPlanCatalog is a mock implementation of PlanCatalog.
type mockPlanCatalog struct {
	mock.Mock
}

func (m *mockPlanCatalog) Get(ctx context.Context, planID uuid.UUID) (*PlanInfo, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PlanInfo), args.Error(1)
}

func TestCreateSubscriptionHandler_Handle(t *testing.T) {
	userID := uuid.New()
	planID := uuid.New()
	plan := &PlanInfo{ID: planID, Name: "Professional", DurationDays: 30, IsActive: true}

	t.Run("creates subscription and writes events to the outbox", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(plan, nil)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		subRepo.On("FindActiveByUserID", txCtx, userID).Return(nil, domain.ErrNoActiveSubscription)
		subRepo.On("Insert", txCtx, mock.AnythingOfType("*domain.Subscription")).Run(func(args mock.Arguments) {
			sub := args.Get(1).(*domain.Subscription)
			assert.Equal(t, domain.StatusActive, sub.Status())
			assert.Equal(t, testNow, sub.StartDate())
			assert.Equal(t, testNow.Add(30*24*time.Hour), sub.EndDate())
			require.NotNil(t, sub.NextBillingDate())
			assert.Equal(t, sub.EndDate(), *sub.NextBillingDate())
		}).Return(nil)
		outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)

		cmd := CreateSubscriptionCommand{
			UserID:        userID,
			PlanID:        planID,
			AutoRenew:     true,
			PaymentMethod: "credit_card",
		}

		result, err := handler.Handle(ctx, cmd)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.NotEqual(t, uuid.Nil, result.SubscriptionID)

		uow.AssertExpectations(t)
		subRepo.AssertExpectations(t)
		outboxRepo.AssertExpectations(t)
	})

	t.Run("fails for unknown user", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		users.On("Exists", ctx, userID).Return(false, nil)

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Nil(t, result)
		uow.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("fails for deactivated user", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(false, nil)

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.ErrorIs(t, err, ErrUserInactive)
		assert.Nil(t, result)
	})

	t.Run("fails for retired plan", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(&PlanInfo{ID: planID, DurationDays: 30, IsActive: false}, nil)

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.ErrorIs(t, err, ErrPlanInactive)
		assert.Nil(t, result)
	})

	t.Run("surfaces the uniqueness conflict from the store", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(plan, nil)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		subRepo.On("FindActiveByUserID", txCtx, userID).Return(nil, domain.ErrNoActiveSubscription)
		subRepo.On("Insert", txCtx, mock.AnythingOfType("*domain.Subscription")).Return(domain.ErrAlreadySubscribed)

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
		assert.Nil(t, result)
		uow.AssertExpectations(t)
		outboxRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
	})

	t.Run("rejects a second subscription before attempting the insert", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		existing := activeSubscription(t, userID, uuid.New(), testNow.Add(-24*time.Hour))

		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(plan, nil)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		subRepo.On("FindActiveByUserID", txCtx, userID).Return(existing, nil)

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
		assert.Nil(t, result)
		subRepo.AssertCalled(t, "FindActiveByUserID", txCtx, userID)
		subRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("fails when unit of work begin fails", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(plan, nil)
		uow.On("Begin", ctx).Return(ctx, errors.New("database connection error"))

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "database connection error")
	})

	t.Run("rolls back when outbox save fails", func(t *testing.T) {
		subRepo := new(mockSubscriptionRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		users := new(mockUserDirectory)
		plans := new(mockPlanCatalog)
		handler := NewCreateSubscriptionHandler(subRepo, outboxRepo, uow, users, plans, fixedClock(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		users.On("Exists", ctx, userID).Return(true, nil)
		users.On("IsActive", ctx, userID).Return(true, nil)
		plans.On("Get", ctx, planID).Return(plan, nil)
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		subRepo.On("FindActiveByUserID", txCtx, userID).Return(nil, domain.ErrNoActiveSubscription)
		subRepo.On("Insert", txCtx, mock.AnythingOfType("*domain.Subscription")).Return(nil)
		outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(errors.New("outbox error"))

		result, err := handler.Handle(ctx, CreateSubscriptionCommand{UserID: userID, PlanID: planID})

		assert.Error(t, err)
		assert.Nil(t, result)
		uow.AssertExpectations(t)
	})
}
