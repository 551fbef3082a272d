// Package app wires the application together: database connections,
// repositories, services, command and query handlers, background workers,
// and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/subtrackhq/subtrack/adapter/api"
	catalogApplication "github.com/subtrackhq/subtrack/internal/catalog/application"
	catalogDomain "github.com/subtrackhq/subtrack/internal/catalog/domain"
	catalogCache "github.com/subtrackhq/subtrack/internal/catalog/infrastructure/cache"
	catalogPersistence "github.com/subtrackhq/subtrack/internal/catalog/infrastructure/persistence"
	identityApplication "github.com/subtrackhq/subtrack/internal/identity/application"
	identityDomain "github.com/subtrackhq/subtrack/internal/identity/domain"
	identityPersistence "github.com/subtrackhq/subtrack/internal/identity/infrastructure/persistence"
	sharedApplication "github.com/subtrackhq/subtrack/internal/shared/application"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/database"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/eventbus"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/migrations"
	"github.com/subtrackhq/subtrack/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/subtrackhq/subtrack/internal/shared/infrastructure/persistence"
	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/internal/subscription/application/queries"
	subscriptionDomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	subscriptionPersistence "github.com/subtrackhq/subtrack/internal/subscription/infrastructure/persistence"
	"github.com/subtrackhq/subtrack/internal/subscription/sweeper"
	"github.com/subtrackhq/subtrack/pkg/config"
	"github.com/subtrackhq/subtrack/pkg/observability"
	"github.com/subtrackhq/subtrack/pkg/token"
)

// devSigningKey is used when no TOKEN_SIGNING_KEY is configured in
// development. Production refuses to start without a real key.
const devSigningKey = "subtrack-dev-signing-key-not-for-production"

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database connections. Exactly one of pool/sqliteDB is set,
	// depending on the detected driver.
	driver   database.Driver
	pool     *pgxpool.Pool
	sqliteDB *sql.DB

	redisClient *redis.Client

	// Repositories
	UserRepo         identityDomain.Repository
	PlanRepo         catalogDomain.Repository
	SubscriptionRepo subscriptionDomain.Repository
	OutboxRepo       outbox.Repository
	UnitOfWork       sharedApplication.UnitOfWork

	// Services
	Identity *identityApplication.Service
	Catalog  *catalogApplication.Service

	// Subscription command handlers
	CreateSubscription  *commands.CreateSubscriptionHandler
	UpdateSubscription  *commands.UpdateSubscriptionHandler
	CancelSubscription  *commands.CancelSubscriptionHandler
	ExpireSubscriptions *commands.ExpireSubscriptionsHandler

	// Subscription query handlers
	GetSubscription        *queries.GetSubscriptionHandler
	GetCurrentSubscription *queries.GetCurrentSubscriptionHandler

	// Infrastructure
	Publisher       eventbus.Publisher
	OutboxProcessor *outbox.Processor
	Sweeper         *sweeper.Sweeper
	TokenIssuer     *token.Issuer
	Metrics         observability.Metrics

	// HTTP
	Server *api.Server
}

// NewContainer creates and wires all application dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.initEventBus()
	c.initServices()

	if err := c.initHTTP(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// initDatabase connects to the configured database, runs migrations, and
// builds the driver-specific repositories and unit of work.
func (c *Container) initDatabase(ctx context.Context) error {
	c.driver = database.DetectDriver(c.Config.DatabaseURL)

	switch c.driver {
	case database.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, c.Config.DatabaseURL, 10)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		c.pool = pool
		c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
		c.UserRepo = identityPersistence.NewPostgresUserRepository(pool)
		c.PlanRepo = catalogPersistence.NewPostgresPlanRepository(pool)
		c.SubscriptionRepo = subscriptionPersistence.NewPostgresSubscriptionRepository(pool)
		c.OutboxRepo = outbox.NewPostgresRepository(pool)

		c.Logger.Info("connected to postgres database")

	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, sqlitePath(c.Config.DatabaseURL))
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		c.sqliteDB = db
		c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
		c.UserRepo = identityPersistence.NewSQLiteUserRepository(db)
		c.PlanRepo = catalogPersistence.NewSQLitePlanRepository(db)
		c.SubscriptionRepo = subscriptionPersistence.NewSQLiteSubscriptionRepository(db)
		c.OutboxRepo = outbox.NewSQLiteRepository(db)

		c.Logger.Info("connected to sqlite database")

	default:
		return fmt.Errorf("unsupported database driver: %s", c.driver)
	}

	return nil
}

// initRedis connects the optional Redis plan cache. An empty REDIS_URL
// disables caching; a connection failure in development degrades to the
// uncached repository with a warning.
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if c.Config.IsDevelopment() {
			c.Logger.Warn("redis unavailable, plan cache disabled", "error", err)
			return nil
		}
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.redisClient = client
	c.PlanRepo = catalogCache.NewPlanCache(c.PlanRepo, client, 5*time.Minute, c.Logger)
	c.Logger.Info("redis plan cache enabled")

	return nil
}

// initEventBus builds the event publisher and the outbox processor. Without
// a broker URL events are published to a noop sink, which keeps local
// development working without RabbitMQ.
func (c *Container) initEventBus() {
	var inner eventbus.Publisher

	if c.Config.RabbitMQURL != "" {
		pub, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err != nil {
			c.Logger.Warn("rabbitmq unavailable, falling back to noop publisher", "error", err)
			inner = eventbus.NewNoopPublisher(c.Logger)
		} else {
			inner = pub
		}
	} else {
		inner = eventbus.NewNoopPublisher(c.Logger)
	}

	c.Publisher = eventbus.NewBreakerPublisher(inner, eventbus.DefaultBreakerConfig(), c.Logger)

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.Publisher, outbox.ProcessorConfig{
		PollInterval:     c.Config.OutboxPollInterval,
		BatchSize:        c.Config.OutboxBatchSize,
		MaxRetries:       c.Config.OutboxMaxRetries,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}, c.Logger)
}

// initServices builds the application services, command and query handlers,
// and the expiration sweeper.
func (c *Container) initServices() {
	c.Identity = identityApplication.NewService(c.UserRepo, c.OutboxRepo, c.UnitOfWork, nil)
	c.Catalog = catalogApplication.NewService(c.PlanRepo, c.Logger)

	users := &userDirectory{identity: c.Identity}
	plans := &planCatalog{catalog: c.Catalog}

	c.CreateSubscription = commands.NewCreateSubscriptionHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, users, plans, nil)
	c.UpdateSubscription = commands.NewUpdateSubscriptionHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, plans, nil)
	c.CancelSubscription = commands.NewCancelSubscriptionHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, nil)
	c.ExpireSubscriptions = commands.NewExpireSubscriptionsHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, nil, c.Logger)

	c.GetSubscription = queries.NewGetSubscriptionHandler(c.SubscriptionRepo, plans, users, nil)
	c.GetCurrentSubscription = queries.NewGetCurrentSubscriptionHandler(c.SubscriptionRepo, plans, users, nil)

	c.Sweeper = sweeper.New(c.ExpireSubscriptions, sweeper.Config{
		Interval:   c.Config.SweepInterval,
		BatchSize:  c.Config.SweepBatchSize,
		MaxBatches: c.Config.SweepMaxBatches,
	}, c.Logger).WithMetrics(c.Metrics)
}

// initHTTP builds the token issuer, HTTP handlers, and the server.
func (c *Container) initHTTP() error {
	signingKey := c.Config.TokenSigningKey
	if signingKey == "" {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("TOKEN_SIGNING_KEY is required outside development")
		}
		c.Logger.Warn("TOKEN_SIGNING_KEY not set, using insecure development key")
		signingKey = devSigningKey
	}

	issuer, err := token.NewIssuer(signingKey, c.Config.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	c.TokenIssuer = issuer

	authHandler := api.NewAuthHandler(c.Identity, issuer, c.Logger)
	planHandler := api.NewPlanHandler(c.Catalog, c.Logger)
	subscriptionHandler := api.NewSubscriptionHandler(api.SubscriptionHandlerConfig{
		Create:     c.CreateSubscription,
		Update:     c.UpdateSubscription,
		Cancel:     c.CancelSubscription,
		Get:        c.GetSubscription,
		GetCurrent: c.GetCurrentSubscription,
		Logger:     c.Logger,
	})

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = c.Config.HTTPAddr

	c.Server = api.NewServer(serverCfg, authHandler, planHandler, subscriptionHandler, issuer, c.Logger)

	return nil
}

// Close releases all resources in reverse order of acquisition.
func (c *Container) Close() {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.sqliteDB != nil {
		if err := c.sqliteDB.Close(); err != nil {
			c.Logger.Warn("failed to close sqlite database", "error", err)
		}
	}
}

// PingDatabase verifies connectivity to whichever database is open.
func (c *Container) PingDatabase(ctx context.Context) error {
	if c.pool != nil {
		return c.pool.Ping(ctx)
	}
	return c.sqliteDB.PingContext(ctx)
}

// NewHealthRegistry returns a health registry covering the container's live
// dependencies. Optional dependencies that were not configured are omitted.
func (c *Container) NewHealthRegistry() *observability.HealthRegistry {
	registry := observability.NewHealthRegistry()
	registry.Register("database", observability.DatabaseHealthChecker(c.PingDatabase))

	if c.redisClient != nil {
		registry.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return c.redisClient.Ping(ctx).Err()
		}))
	}

	return registry
}

// sqlitePath strips the sqlite:// scheme from a connection URL, leaving a
// filesystem path (or :memory:) for the driver.
func sqlitePath(url string) string {
	return strings.TrimPrefix(url, "sqlite://")
}
