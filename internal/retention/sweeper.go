// internal/retention/sweeper.go
package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FairForge/intellinspect/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config controls the retention sweep
type Config struct {
	// Schedule is a 5-field cron expression or descriptor such as "@hourly". Empty disables sweeping.
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Schedule) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", c.Schedule, err)
	}
	if c.MaxAge <= 0 {
		return errors.New("retention: max_age must be positive")
	}
	return nil
}

// Purger removes terminal sessions completed before a cutoff
type Purger interface {
	PurgeSessions(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically purges finished sessions with their predictions and alerts
type Sweeper struct {
	config Config
	purger Purger
	cron   *cron.Cron
	now    func() time.Time
	logger *zap.Logger
}

// NewSweeper creates a sweeper; Start schedules it
func NewSweeper(config Config, purger Purger, logger *zap.Logger) *Sweeper {
	config.ApplyDefaults()
	return &Sweeper{
		config: config,
		purger: purger,
		cron:   cron.New(),
		now:    time.Now,
		logger: logger,
	}
}

// Start schedules the sweep. It is a no-op when no schedule is configured.
func (s *Sweeper) Start() error {
	schedule := strings.TrimSpace(s.config.Schedule)
	if schedule == "" {
		s.logger.Info("retention sweep disabled (schedule not set)")
		return nil
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("retention: schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("retention sweep scheduled",
		zap.String("schedule", schedule),
		zap.Duration("max_age", s.config.MaxAge))
	return nil
}

// Stop halts scheduling and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep purges sessions that completed more than MaxAge ago
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.MaxAge)
	n, err := s.purger.PurgeSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: purge sessions: %w", err)
	}
	metrics.RecordPurge(n)
	s.logger.Debug("retention sweep finished",
		zap.Int("purged", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}
