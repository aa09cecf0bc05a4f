// internal/dataset/catalog.go
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ProfileStore persists dataset profiles
type ProfileStore interface {
	SaveDataset(ctx context.Context, p *Profile) error
	LoadDataset(ctx context.Context, id string) (*Profile, error)
	ListDatasets(ctx context.Context) ([]*Profile, error)
}

// CatalogConfig configures a Catalog
type CatalogConfig struct {
	DataDir   string
	CacheSize int
	Polarity  Polarity
}

// ApplyDefaults fills in default values
func (c *CatalogConfig) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 8
	}
	if c.Polarity.Column == "" {
		c.Polarity = DefaultPolarity()
	}
}

// Catalog ingests, profiles and serves normalized datasets
type Catalog struct {
	config CatalogConfig
	source Source
	store  ProfileStore
	cache  *lru.Cache[string, []Row]
	logger *zap.Logger
}

// NewCatalog creates a catalog rooted at config.DataDir
func NewCatalog(config CatalogConfig, source Source, store ProfileStore, logger *zap.Logger) (*Catalog, error) {
	config.ApplyDefaults()
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("dataset: create data dir: %w", err)
	}
	cache, err := lru.New[string, []Row](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("dataset: create cache: %w", err)
	}
	return &Catalog{
		config: config,
		source: source,
		store:  store,
		cache:  cache,
		logger: logger,
	}, nil
}

// Polarity returns the label mapping in use
func (c *Catalog) Polarity() Polarity {
	return c.config.Polarity
}

// Load reads, decompresses and normalizes a raw file without persisting anything
func (c *Catalog) Load(ctx context.Context, uri string) (*Normalized, error) {
	rc, err := c.source.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err = Decompress(uri, rc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	table, err := ReadTable(rc)
	if err != nil {
		return nil, err
	}
	return Normalize(table, c.config.Polarity.Column), nil
}

// Inspect profiles a raw file without ingesting it
func (c *Catalog) Inspect(ctx context.Context, uri string) (Profile, error) {
	n, err := c.Load(ctx, uri)
	if err != nil {
		return Profile{}, err
	}
	p := Summarize(n, c.config.Polarity)
	p.Name = Stem(uri)
	return p, nil
}

// Ingest normalizes the file at uri, persists the normalized copy and its profile.
// A synthesized timestamp column is written out so every later read sees the same values.
func (c *Catalog) Ingest(ctx context.Context, id, name, uri string) (*Profile, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("dataset: invalid id %q", id)
	}
	if name == "" {
		name = id
	}

	start := time.Now()
	n, err := c.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(c.config.DataDir, id+".csv")
	if err := writeAtomic(path, n.Table); err != nil {
		return nil, err
	}

	p := Summarize(n, c.config.Polarity)
	p.ID = id
	p.Name = name
	p.Path = path
	p.CreatedAt = time.Now().UTC()

	if err := c.store.SaveDataset(ctx, &p); err != nil {
		return nil, fmt.Errorf("dataset: save profile: %w", err)
	}
	c.cache.Remove(id)
	metrics.RecordDatasetIngested(n.Synthetic, time.Since(start))

	c.logger.Info("ingested dataset",
		zap.String("dataset_id", id),
		zap.String("uri", uri),
		zap.Int("rows", p.RowCount),
		zap.Int("dropped_rows", p.DroppedRows),
		zap.Bool("synthetic_timestamp", p.SyntheticTimestamp))

	return &p, nil
}

// Profile returns the stored profile of a dataset
func (c *Catalog) Profile(ctx context.Context, id string) (*Profile, error) {
	return c.store.LoadDataset(ctx, id)
}

// List returns every stored profile
func (c *Catalog) List(ctx context.Context) ([]*Profile, error) {
	return c.store.ListDatasets(ctx)
}

// Exists reports whether a dataset has been ingested
func (c *Catalog) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.store.LoadDataset(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Rows returns the normalized rows of a dataset in file order.
// The slice is shared through the cache; callers must copy it before reordering.
func (c *Catalog) Rows(ctx context.Context, id string) ([]Row, error) {
	if rows, ok := c.cache.Get(id); ok {
		return rows, nil
	}

	p, err := c.store.LoadDataset(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p.Path) // #nosec G304 -- path written by Ingest
	if err != nil {
		return nil, fmt.Errorf("dataset: open normalized file: %w", err)
	}
	defer func() { _ = f.Close() }()

	table, err := ReadTable(f)
	if err != nil {
		return nil, err
	}
	rows := Normalize(table, p.LabelColumn).Rows
	c.cache.Add(id, rows)
	return rows, nil
}

func writeAtomic(path string, t *Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-*")
	if err != nil {
		return fmt.Errorf("dataset: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteTable(tmp, t); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("dataset: write normalized file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dataset: close normalized file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("dataset: publish normalized file: %w", err)
	}
	return nil
}
