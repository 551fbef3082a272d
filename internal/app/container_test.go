package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogApplication "github.com/subtrackhq/subtrack/internal/catalog/application"
	identityApplication "github.com/subtrackhq/subtrack/internal/identity/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/pkg/config"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:      "development",
		DatabaseURL: "sqlite://:memory:",
		TokenTTL:    time.Hour,
		HTTPAddr:    "127.0.0.1:0",

		OutboxPollInterval: 100 * time.Millisecond,
		OutboxBatchSize:    100,
		OutboxMaxRetries:   5,

		SweepInterval:   time.Hour,
		SweepBatchSize:  100,
		SweepMaxBatches: 10,
	}
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()

	c, err := NewContainer(context.Background(), testConfig(), testLogger)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func TestNewContainer_SQLite(t *testing.T) {
	c := newTestContainer(t)

	assert.Equal(t, database.DriverSQLite, c.driver)
	assert.Nil(t, c.pool)
	assert.NotNil(t, c.sqliteDB)

	assert.NotNil(t, c.Identity)
	assert.NotNil(t, c.Catalog)
	assert.NotNil(t, c.CreateSubscription)
	assert.NotNil(t, c.UpdateSubscription)
	assert.NotNil(t, c.CancelSubscription)
	assert.NotNil(t, c.ExpireSubscriptions)
	assert.NotNil(t, c.GetSubscription)
	assert.NotNil(t, c.GetCurrentSubscription)
	assert.NotNil(t, c.OutboxProcessor)
	assert.NotNil(t, c.Sweeper)
	assert.NotNil(t, c.TokenIssuer)
	assert.NotNil(t, c.Server)
}

func TestNewContainer_ProductionRequiresSigningKey(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	cfg.TokenSigningKey = ""

	c, err := NewContainer(context.Background(), cfg, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_SIGNING_KEY")
	assert.Nil(t, c)
}

func TestUserDirectory_ResolvesRegisteredUsers(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	user, err := c.Identity.Register(ctx, identityApplication.RegisterInput{
		Email:     "ada@example.com",
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	dir := &userDirectory{identity: c.Identity}

	exists, err := dir.Exists(ctx, user.ID())
	require.NoError(t, err)
	assert.True(t, exists)

	active, err := dir.IsActive(ctx, user.ID())
	require.NoError(t, err)
	assert.True(t, active)

	exists, err = dir.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPlanCatalog_ResolvesCatalogPlans(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	plan, err := c.Catalog.CreatePlan(ctx, catalogApplication.CreatePlanInput{
		Name:         "pro-monthly",
		Description:  "monthly pro plan",
		PriceCents:   1999,
		Currency:     "USD",
		DurationDays: 30,
		Features:     []string{"unlimited-tracking"},
	})
	require.NoError(t, err)

	catalog := &planCatalog{catalog: c.Catalog}

	info, err := catalog.Get(ctx, plan.ID())
	require.NoError(t, err)
	assert.Equal(t, plan.ID(), info.ID)
	assert.Equal(t, "pro-monthly", info.Name)
	assert.Equal(t, 30, info.DurationDays)
	assert.True(t, info.IsActive)

	_, err = catalog.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, commands.ErrPlanNotFound)

	require.NoError(t, c.Catalog.DeactivatePlan(ctx, plan.ID()))

	info, err = catalog.Get(ctx, plan.ID())
	require.NoError(t, err)
	assert.False(t, info.IsActive)
}
