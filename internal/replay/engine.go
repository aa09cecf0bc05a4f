// internal/replay/engine.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/events"
	"github.com/FairForge/intellinspect/internal/metrics"
	"github.com/FairForge/intellinspect/internal/oracle"
	"github.com/FairForge/intellinspect/internal/partition"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrModelNotReady     = errors.New("replay: model is not ready")
	ErrInvalidRequest    = errors.New("replay: invalid request")
	ErrInvalidTransition = errors.New("replay: invalid state transition")
	ErrAlreadyRunning    = errors.New("replay: session already has an active worker")
)

// Store is the persistence the engine needs
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)
	SaveSessionProgress(ctx context.Context, id string, u domain.ProgressUpdate) error
	AppendPrediction(ctx context.Context, p *domain.PredictionRecord) error
	AppendAlert(ctx context.Context, a *domain.QualityAlert) error
	ListRecentPredictions(ctx context.Context, sessionID string, limit int) ([]*domain.PredictionRecord, error)
	ListAlerts(ctx context.Context, sessionID string, limit int) ([]*domain.QualityAlert, error)
}

// RowSource serves normalized dataset rows
type RowSource interface {
	Exists(ctx context.Context, id string) (bool, error)
	Rows(ctx context.Context, id string) ([]dataset.Row, error)
}

// Config tunes the replay loop
type Config struct {
	PersistEvery    int              `yaml:"persist_every"`
	AlertThreshold  float64          `yaml:"alert_threshold"`
	HighThreshold   float64          `yaml:"high_threshold"`
	MediumThreshold float64          `yaml:"medium_threshold"`
	DefaultSpeed    float64          `yaml:"default_speed"`
	Polarity        dataset.Polarity `yaml:"-"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		PersistEvery:    10,
		AlertThreshold:  0.7,
		HighThreshold:   0.9,
		MediumThreshold: 0.8,
		DefaultSpeed:    1,
		Polarity:        dataset.DefaultPolarity(),
	}
}

// ApplyDefaults fills in zero values
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.PersistEvery <= 0 {
		c.PersistEvery = d.PersistEvery
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = d.AlertThreshold
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = d.HighThreshold
	}
	if c.MediumThreshold <= 0 {
		c.MediumThreshold = d.MediumThreshold
	}
	if c.DefaultSpeed <= 0 {
		c.DefaultSpeed = d.DefaultSpeed
	}
	if c.Polarity.Column == "" {
		c.Polarity = d.Polarity
	}
}

// Validate checks that the thresholds are ordered
func (c *Config) Validate() error {
	if c.AlertThreshold >= 1 || c.MediumThreshold >= 1 || c.HighThreshold >= 1 {
		return errors.New("replay: thresholds must be below 1")
	}
	if c.AlertThreshold > c.MediumThreshold || c.MediumThreshold > c.HighThreshold {
		return errors.New("replay: thresholds must satisfy alert <= medium <= high")
	}
	return nil
}

// Request starts a session
type Request struct {
	ModelID         string
	DatasetID       string
	Window          partition.Window
	SpeedMultiplier float64
}

// Deps are the engine's collaborators. Registry, Pacer and Events are optional.
type Deps struct {
	Store    Store
	Rows     RowSource
	Oracle   oracle.Oracle
	Registry *Registry
	Pacer    Pacer
	Events   events.Publisher
}

// Engine runs replay sessions, one goroutine per active session
type Engine struct {
	config   Config
	store    Store
	rows     RowSource
	oracle   oracle.Oracle
	registry *Registry
	pacer    Pacer
	events   events.Publisher
	logger   *zap.Logger

	// serializes control decisions against a worker's final state write
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewEngine creates a replay engine
func NewEngine(config Config, deps Deps, logger *zap.Logger) *Engine {
	config.ApplyDefaults()
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Pacer == nil {
		deps.Pacer = TimerPacer{}
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	return &Engine{
		config:   config,
		store:    deps.Store,
		rows:     deps.Rows,
		oracle:   deps.Oracle,
		registry: deps.Registry,
		pacer:    deps.Pacer,
		events:   deps.Events,
		logger:   logger,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) error { return nil }

// StartSession validates the request, creates the session and launches its worker.
// The id is returned as soon as the worker is scheduled.
func (e *Engine) StartSession(ctx context.Context, req Request) (string, error) {
	if req.ModelID == "" {
		return "", fmt.Errorf("%w: model_id is required", ErrInvalidRequest)
	}
	if req.DatasetID == "" {
		return "", fmt.Errorf("%w: dataset_id is required", ErrInvalidRequest)
	}
	if req.SpeedMultiplier <= 0 {
		return "", fmt.Errorf("%w: speed multiplier must be positive", ErrInvalidRequest)
	}
	if req.Window.Start.After(req.Window.End) {
		return "", fmt.Errorf("%w: window start must not be after its end", ErrInvalidRequest)
	}

	exists, err := e.rows.Exists(ctx, req.DatasetID)
	if err != nil {
		return "", fmt.Errorf("replay: look up dataset: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("replay: dataset %s: %w", req.DatasetID, domain.ErrNotFound)
	}

	ready, err := e.oracle.IsModelReady(ctx, req.ModelID)
	if err != nil {
		return "", fmt.Errorf("replay: check model %s: %w", req.ModelID, err)
	}
	if !ready {
		return "", fmt.Errorf("%w: %s", ErrModelNotReady, req.ModelID)
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:              uuid.NewString(),
		ModelID:         req.ModelID,
		DatasetID:       req.DatasetID,
		Window:          partition.Window{Start: req.Window.Start.UTC(), End: req.Window.End.UTC()},
		SpeedMultiplier: req.SpeedMultiplier,
		Status:          domain.StatusStarting,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("replay: create session: %w", err)
	}

	metrics.SessionStarted()
	e.publish(events.SessionStarted, sess)

	e.mu.Lock()
	err = e.launch(sess)
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	e.logger.Info("simulation started",
		zap.String("session_id", sess.ID),
		zap.String("model_id", sess.ModelID),
		zap.String("dataset_id", sess.DatasetID),
		zap.Float64("speed", sess.SpeedMultiplier))

	return sess.ID, nil
}

// launch registers a fresh cancellation scope and starts the worker on its own
// copy of the session. Caller holds e.mu.
func (e *Engine) launch(sess *domain.Session) error {
	h, ctx := newHandle(context.Background())
	if err := e.registry.Add(sess.ID, h); err != nil {
		h.cancel(nil)
		return err
	}
	owned := *sess
	e.wg.Add(1)
	go e.run(ctx, h, &owned)
	return nil
}

// GetStatus returns the latest persisted snapshot
func (e *Engine) GetStatus(ctx context.Context, id string) (domain.Snapshot, error) {
	sess, err := e.store.LoadSession(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.NewSnapshot(sess), nil
}

// ListSessions returns snapshots of the newest sessions
func (e *Engine) ListSessions(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	sessions, err := e.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.NewSnapshot(s))
	}
	return out, nil
}

// GetPredictions returns a session's predictions, most recent first
func (e *Engine) GetPredictions(ctx context.Context, id string, limit int) ([]*domain.PredictionRecord, error) {
	if _, err := e.store.LoadSession(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListRecentPredictions(ctx, id, limit)
}

// GetAlerts returns a session's alerts, most recent first
func (e *Engine) GetAlerts(ctx context.Context, id string, limit int) ([]*domain.QualityAlert, error) {
	if _, err := e.store.LoadSession(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListAlerts(ctx, id, limit)
}

// Pause signals the worker and returns without waiting.
// Pausing a paused session is a no-op.
func (e *Engine) Pause(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.store.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case sess.Status == domain.StatusPaused:
		return nil
	case sess.Status.Terminal():
		return fmt.Errorf("%w: cannot pause a %s session", ErrInvalidTransition, sess.Status)
	}

	if h, ok := e.registry.Lookup(id); ok {
		h.Pause()
		return nil
	}

	// no worker, e.g. left running by a previous process
	sess.Status = domain.StatusPaused
	if err := e.save(ctx, sess); err != nil {
		return err
	}
	e.publish(events.SessionPaused, sess)
	return nil
}

// Resume continues a paused session from its persisted cursor in a fresh cancellation scope
func (e *Engine) Resume(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.store.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := e.registry.Lookup(id); ok {
		return ErrAlreadyRunning
	}
	if sess.Status != domain.StatusPaused {
		return fmt.Errorf("%w: cannot resume a %s session", ErrInvalidTransition, sess.Status)
	}

	sess.Status = domain.StatusRunning
	if err := e.save(ctx, sess); err != nil {
		return err
	}
	if err := e.launch(sess); err != nil {
		return err
	}

	e.publish(events.SessionResumed, sess)
	e.logger.Info("simulation resumed",
		zap.String("session_id", id),
		zap.Int("rows_processed", sess.RowsProcessed))
	return nil
}

// Stop ends a session as completed. When a worker is active, Stop waits for it
// to write the final state so the worker stays the session's only writer.
func (e *Engine) Stop(ctx context.Context, id string) error {
	e.mu.Lock()
	sess, err := e.store.LoadSession(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	switch sess.Status {
	case domain.StatusCompleted:
		e.mu.Unlock()
		return nil
	case domain.StatusError:
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot stop a failed session", ErrInvalidTransition)
	}

	if h, ok := e.registry.Lookup(id); ok {
		h.Stop()
		e.mu.Unlock()

		select {
		case <-h.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer e.mu.Unlock()

	now := time.Now().UTC()
	sess.Status = domain.StatusCompleted
	sess.CompletedAt = &now
	if err := e.save(ctx, sess); err != nil {
		return err
	}
	metrics.SessionFinished(string(domain.StatusCompleted))
	e.publish(events.SessionCompleted, sess)
	return nil
}

// Shutdown pauses every active session and waits for the workers to persist their cursors
func (e *Engine) Shutdown(ctx context.Context) error {
	ids := e.registry.IDs()
	for _, id := range ids {
		if h, ok := e.registry.Lookup(id); ok {
			h.Pause()
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("replay engine stopped", zap.Int("paused_sessions", len(ids)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("replay: shutdown: %w", ctx.Err())
	}
}

// DefaultSpeed is the multiplier used when a request leaves it unset
func (e *Engine) DefaultSpeed() float64 {
	return e.config.DefaultSpeed
}

// Active returns the number of running workers
func (e *Engine) Active() int {
	return e.registry.Len()
}

func (e *Engine) save(ctx context.Context, sess *domain.Session) error {
	err := e.store.SaveSessionProgress(ctx, sess.ID, domain.ProgressUpdate{
		Status:       sess.Status,
		Progress:     sess.Progress,
		ErrorMessage: sess.ErrorMessage,
		CompletedAt:  sess.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("replay: save session %s: %w", sess.ID, err)
	}
	return nil
}

func (e *Engine) publish(typ events.EventType, sess *domain.Session) {
	snap := domain.NewSnapshot(sess)
	_ = e.events.Publish(context.Background(), events.Event{
		Type:      typ,
		SessionID: sess.ID,
		Session:   &snap,
	})
}
