package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/migrations"
	shared "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// setupSQLiteTestDB creates an in-memory SQLite database with the schema applied.
func setupSQLiteTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	return db
}

// createTestUser inserts a user row to satisfy the foreign key.
func createTestUser(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	_, err := db.Exec(`
		INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, userID.String(), userID.String()+"@example.com", "hash", "Test", "User",
		shared.FormatSQLiteTime(testNow), shared.FormatSQLiteTime(testNow))
	require.NoError(t, err)

	return userID
}

// createTestPlan inserts a plan row to satisfy the foreign key.
func createTestPlan(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	planID := uuid.New()
	_, err := db.Exec(`
		INSERT INTO plans (id, name, price_cents, currency, duration_days, is_active, created_at, updated_at)
		VALUES (?, ?, 999, 'USD', 30, 1, ?, ?)
	`, planID.String(), "plan-"+planID.String(),
		shared.FormatSQLiteTime(testNow), shared.FormatSQLiteTime(testNow))
	require.NoError(t, err)

	return planID
}

func newTestSubscription(t *testing.T, userID, planID uuid.UUID, start time.Time) *domain.Subscription {
	t.Helper()

	sub, err := domain.NewSubscription(userID, planID, 30, true, "credit_card", map[string]any{"source": "test"}, start)
	require.NoError(t, err)
	sub.ClearDomainEvents()
	return sub
}

func TestSQLiteSubscriptionRepository_InsertAndFindByID(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)
	sub := newTestSubscription(t, userID, planID, testNow)

	require.NoError(t, repo.Insert(ctx, sub))

	found, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)

	assert.Equal(t, sub.ID(), found.ID())
	assert.Equal(t, userID, found.UserID())
	assert.Equal(t, planID, found.PlanID())
	assert.Equal(t, domain.StatusActive, found.Status())
	assert.True(t, found.StartDate().Equal(testNow))
	assert.True(t, found.EndDate().Equal(testNow.Add(30*24*time.Hour)))
	assert.True(t, found.AutoRenew())
	assert.Equal(t, "credit_card", found.PaymentMethod())
	require.NotNil(t, found.NextBillingDate())
	assert.True(t, found.NextBillingDate().Equal(found.EndDate()))
	assert.Equal(t, map[string]any{"source": "test"}, found.Metadata())
}

func TestSQLiteSubscriptionRepository_FindByID_NotFound(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestSQLiteSubscriptionRepository_UniqueActivePerUser(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)

	first := newTestSubscription(t, userID, planID, testNow)
	require.NoError(t, repo.Insert(ctx, first))

	// A second active subscription for the same user must hit the partial
	// unique index.
	second := newTestSubscription(t, userID, planID, testNow)
	err := repo.Insert(ctx, second)
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)

	// After the first is cancelled, a new active subscription is allowed.
	require.NoError(t, first.Cancel("switching", testNow))
	first.ClearDomainEvents()
	require.NoError(t, repo.Update(ctx, first))

	third := newTestSubscription(t, userID, planID, testNow)
	assert.NoError(t, repo.Insert(ctx, third))
}

func TestSQLiteSubscriptionRepository_ConcurrentCreates(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)

	// Two racing inserts for the same user: whatever the interleaving, the
	// index lets exactly one through.
	errs := make(chan error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		sub := newTestSubscription(t, userID, planID, testNow)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- repo.Insert(ctx, sub)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadySubscribed):
			conflicted++
		default:
			t.Fatalf("unexpected insert error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
}

func TestSQLiteSubscriptionRepository_Update(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)
	sub := newTestSubscription(t, userID, planID, testNow)
	require.NoError(t, repo.Insert(ctx, sub))

	require.NoError(t, sub.Cancel("too expensive", testNow.Add(time.Hour)))
	sub.ClearDomainEvents()
	require.NoError(t, repo.Update(ctx, sub))

	found, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, found.Status())
	assert.Equal(t, "too expensive", found.CancellationReason())
	require.NotNil(t, found.CancelledAt())
	assert.True(t, found.CancelledAt().Equal(testNow.Add(time.Hour)))
	assert.False(t, found.AutoRenew())
	assert.Nil(t, found.NextBillingDate())
}

func TestSQLiteSubscriptionRepository_Update_NotFound(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)
	sub := newTestSubscription(t, userID, planID, testNow)

	err := repo.Update(ctx, sub)

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestSQLiteSubscriptionRepository_FindActiveByUserID(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)

	_, err := repo.FindActiveByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrNoActiveSubscription)

	sub := newTestSubscription(t, userID, planID, testNow)
	require.NoError(t, repo.Insert(ctx, sub))

	found, err := repo.FindActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), found.ID())
}

func TestSQLiteSubscriptionRepository_FindLatestByUserID(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)

	_, err := repo.FindLatestByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	older := newTestSubscription(t, userID, planID, testNow.Add(-60*24*time.Hour))
	require.NoError(t, older.Cancel("first run", testNow.Add(-50*24*time.Hour)))
	older.ClearDomainEvents()
	require.NoError(t, repo.Insert(ctx, older))

	// Cancelled history stays visible; the newest row wins.
	newer := newTestSubscription(t, userID, planID, testNow)
	require.NoError(t, repo.Insert(ctx, newer))

	found, err := repo.FindLatestByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID(), found.ID())
}

func TestSQLiteSubscriptionRepository_FindExpiredActive(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	planID := createTestPlan(t, db)

	// Overdue, current, and cancelled-overdue subscriptions across users.
	overdueUser := createTestUser(t, db)
	overdue := newTestSubscription(t, overdueUser, planID, testNow.Add(-40*24*time.Hour))
	require.NoError(t, repo.Insert(ctx, overdue))

	currentUser := createTestUser(t, db)
	current := newTestSubscription(t, currentUser, planID, testNow)
	require.NoError(t, repo.Insert(ctx, current))

	cancelledUser := createTestUser(t, db)
	cancelled := newTestSubscription(t, cancelledUser, planID, testNow.Add(-40*24*time.Hour))
	require.NoError(t, cancelled.Cancel("gone", testNow.Add(-5*24*time.Hour)))
	cancelled.ClearDomainEvents()
	require.NoError(t, repo.Insert(ctx, cancelled))

	found, err := repo.FindExpiredActive(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, overdue.ID(), found[0].ID())

	// The limit caps the batch.
	anotherUser := createTestUser(t, db)
	another := newTestSubscription(t, anotherUser, planID, testNow.Add(-50*24*time.Hour))
	require.NoError(t, repo.Insert(ctx, another))

	found, err = repo.FindExpiredActive(ctx, testNow, 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	// Ordered by end date: the oldest expiry comes first.
	assert.Equal(t, another.ID(), found[0].ID())
}

func TestSQLiteSubscriptionRepository_ParticipatesInTransaction(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	userID := createTestUser(t, db)
	planID := createTestPlan(t, db)
	sub := newTestSubscription(t, userID, planID, testNow)

	uow := shared.NewSQLiteUnitOfWork(db)
	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Insert(txCtx, sub))
	require.NoError(t, uow.Rollback(txCtx))

	// The rollback discarded the insert.
	_, err = repo.FindByID(ctx, sub.ID())
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
