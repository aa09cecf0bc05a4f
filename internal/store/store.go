// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/partition"
	"go.uber.org/zap"
)

// ErrNotFound is returned for missing records
var ErrNotFound = domain.ErrNotFound

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store is the full persistence surface
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)
	SaveSessionProgress(ctx context.Context, id string, u domain.ProgressUpdate) error
	AppendPrediction(ctx context.Context, p *domain.PredictionRecord) error
	AppendAlert(ctx context.Context, a *domain.QualityAlert) error
	ListRecentPredictions(ctx context.Context, sessionID string, limit int) ([]*domain.PredictionRecord, error)
	ListAlerts(ctx context.Context, sessionID string, limit int) ([]*domain.QualityAlert, error)

	SaveDataset(ctx context.Context, p *dataset.Profile) error
	LoadDataset(ctx context.Context, id string) (*dataset.Profile, error)
	ListDatasets(ctx context.Context) ([]*dataset.Profile, error)
	SavePartition(ctx context.Context, datasetID string, p partition.Partition) error
	LoadPartition(ctx context.Context, datasetID string) (partition.Partition, error)

	PurgeSessions(ctx context.Context, before time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate checks configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return errors.New("store: dsn is required")
		}
		return nil
	default:
		return fmt.Errorf("store: unsupported driver %q", c.Driver)
	}
}

// Open builds the configured backend
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverMemory {
		logger.Info("using in-memory store")
		return NewMemoryStore(), nil
	}
	return NewSQLStore(ctx, cfg.Driver, cfg.DSN, logger)
}
