// Package sweeper reconciles subscription status with the clock: active
// subscriptions whose end date has passed are moved to expired on a fixed
// interval.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/pkg/observability"
)

// Config holds configuration for the expiration sweeper.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration

	// BatchSize caps how many subscriptions one transaction-per-record
	// pass will touch.
	BatchSize int

	// MaxBatches bounds a single sweep when a backlog has built up. The
	// next tick picks up whatever is left.
	MaxBatches int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Hour,
		BatchSize:  100,
		MaxBatches: 10,
	}
}

// Expirer runs one bounded expiration pass. Implemented by
// commands.ExpireSubscriptionsHandler.
type Expirer interface {
	Handle(ctx context.Context, cmd commands.ExpireSubscriptionsCommand) (*commands.ExpireSubscriptionsResult, error)
}

// Sweeper runs the expiration handler on a ticker.
type Sweeper struct {
	handler Expirer
	config  Config
	logger  *slog.Logger
	metrics observability.Metrics

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// New creates a new Sweeper.
func New(handler Expirer, config Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = DefaultConfig().MaxBatches
	}
	return &Sweeper{
		handler:  handler,
		config:   config,
		logger:   logger,
		metrics:  observability.NoopMetrics{},
		stopChan: make(chan struct{}),
	}
}

// WithMetrics sets the metrics recorder. Must be called before Start.
func (s *Sweeper) WithMetrics(m observability.Metrics) *Sweeper {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Start begins the sweep loop in a goroutine. An initial sweep runs
// immediately so a restart doesn't wait a full interval to catch up.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("expiration sweeper started",
		"interval", s.config.Interval,
		"batch_size", s.config.BatchSize,
	)
}

// Stop gracefully stops the sweeper and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("expiration sweeper stopped")
}

// IsRunning returns true if the sweeper is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("expiration sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("expiration sweep failed", "error", err)
			}
		}
	}
}

// Sweep drains the current backlog of overdue subscriptions, batch by
// batch, up to the configured cap. It is safe to call concurrently with a
// running loop; overlapping sweeps only cost redundant scans.
func (s *Sweeper) Sweep(ctx context.Context) error {
	timer := observability.StartTimer("subscription.sweep").WithMetrics(s.metrics)

	totalExpired := 0
	totalFailed := 0

	for i := 0; i < s.config.MaxBatches; i++ {
		result, err := s.handler.Handle(ctx, commands.ExpireSubscriptionsCommand{
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			timer.StopWithError(err)
			return err
		}

		totalExpired += result.Expired
		totalFailed += result.Failed

		s.metrics.Counter(observability.MetricSweepBatches, 1)
		s.metrics.Counter(observability.MetricSubscriptionsExpired, int64(result.Expired))
		s.metrics.Counter(observability.MetricSweepFailures, int64(result.Failed))

		// A short batch means the backlog is drained. Failed candidates
		// stay active and would be rescanned immediately, so stop rather
		// than spin on them.
		if result.Scanned < s.config.BatchSize || result.Failed > 0 {
			break
		}
	}

	duration := timer.Stop()

	if totalExpired > 0 || totalFailed > 0 {
		s.logger.Info("expiration sweep completed",
			"expired", totalExpired,
			"failed", totalFailed,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return nil
}
