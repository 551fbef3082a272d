package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrackhq/subtrack/internal/catalog/domain"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/migrations"
)

func setupSQLiteTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	return db
}

func newTestPlan(t *testing.T, name string, priceCents int64) *domain.Plan {
	t.Helper()
	plan, err := domain.NewPlan(name, "test plan", priceCents, "USD", 30, []string{"feature-a"})
	require.NoError(t, err)
	return plan
}

func TestSQLitePlanRepository_InsertAndFind(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	plan := newTestPlan(t, "Basic", 999)
	require.NoError(t, repo.Insert(ctx, plan))

	byID, err := repo.FindByID(ctx, plan.ID())
	require.NoError(t, err)
	assert.Equal(t, plan.ID(), byID.ID())
	assert.Equal(t, "Basic", byID.Name())
	assert.Equal(t, int64(999), byID.PriceCents())
	assert.Equal(t, []string{"feature-a"}, byID.Features())
	assert.True(t, byID.IsActive())

	byName, err := repo.FindByName(ctx, "Basic")
	require.NoError(t, err)
	assert.Equal(t, plan.ID(), byName.ID())
}

func TestSQLitePlanRepository_LimitsRoundTrip(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	maxUsers := 5
	maxStorage := int64(10 << 30)

	plan := newTestPlan(t, "Basic", 999)
	require.NoError(t, plan.SetLimits(domain.Limits{
		MaxUsers:        &maxUsers,
		MaxStorageBytes: &maxStorage,
	}))
	require.NoError(t, repo.Insert(ctx, plan))

	found, err := repo.FindByID(ctx, plan.ID())
	require.NoError(t, err)
	require.NotNil(t, found.Limits().MaxUsers)
	assert.Equal(t, 5, *found.Limits().MaxUsers)
	require.NotNil(t, found.Limits().MaxStorageBytes)
	assert.Equal(t, int64(10<<30), *found.Limits().MaxStorageBytes)
	// API call limit was never set; it stays uncapped.
	assert.Nil(t, found.Limits().APICallLimit)
}

func TestSQLitePlanRepository_NotFound(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	_, err = repo.FindByName(ctx, "Nonexistent")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestSQLitePlanRepository_DuplicateName(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newTestPlan(t, "Basic", 999)))

	err := repo.Insert(ctx, newTestPlan(t, "Basic", 1999))
	assert.ErrorIs(t, err, domain.ErrDuplicatePlan)
}

func TestSQLitePlanRepository_Update(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	plan := newTestPlan(t, "Basic", 999)
	require.NoError(t, repo.Insert(ctx, plan))

	require.NoError(t, plan.SetPrice(1499, "EUR"))
	require.NoError(t, plan.Deactivate())
	require.NoError(t, repo.Update(ctx, plan))

	found, err := repo.FindByID(ctx, plan.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1499), found.PriceCents())
	assert.Equal(t, "EUR", found.Currency())
	assert.False(t, found.IsActive())
}

func TestSQLitePlanRepository_List(t *testing.T) {
	db := setupSQLiteTestDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	basic := newTestPlan(t, "Basic", 999)
	pro := newTestPlan(t, "Professional", 2999)
	retired := newTestPlan(t, "Legacy", 499)
	require.NoError(t, retired.Deactivate())

	require.NoError(t, repo.Insert(ctx, pro))
	require.NoError(t, repo.Insert(ctx, basic))
	require.NoError(t, repo.Insert(ctx, retired))

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by price.
	assert.Equal(t, "Legacy", all[0].Name())
	assert.Equal(t, "Basic", all[1].Name())
	assert.Equal(t, "Professional", all[2].Name())

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Basic", active[0].Name())
	assert.Equal(t, "Professional", active[1].Name())
}
