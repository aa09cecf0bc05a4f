// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/partition"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.Session
	predictions map[string][]*domain.PredictionRecord
	alerts      map[string][]*domain.QualityAlert
	datasets    map[string]*dataset.Profile
	partitions  map[string]partition.Partition
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*domain.Session),
		predictions: make(map[string][]*domain.PredictionRecord),
		alerts:      make(map[string][]*domain.QualityAlert),
		datasets:    make(map[string]*dataset.Profile),
		partitions:  make(map[string]partition.Partition),
	}
}

// CreateSession stores a new session
func (m *MemoryStore) CreateSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("store: session %s already exists", s.ID)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// LoadSession returns a copy of a session
func (m *MemoryStore) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", id, domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

// ListSessions returns the newest sessions first
func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	m.mu.RLock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveSessionProgress applies a partial update atomically
func (m *MemoryStore) SaveSessionProgress(ctx context.Context, id string, u domain.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("store: session %s: %w", id, domain.ErrNotFound)
	}
	s.Status = u.Status
	s.Progress = u.Progress
	s.ErrorMessage = u.ErrorMessage
	s.CompletedAt = u.CompletedAt
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendPrediction appends to a session's prediction log
func (m *MemoryStore) AppendPrediction(ctx context.Context, p *domain.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.predictions[p.SessionID] = append(m.predictions[p.SessionID], &cp)
	return nil
}

// AppendAlert appends to a session's alert log
func (m *MemoryStore) AppendAlert(ctx context.Context, a *domain.QualityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[a.SessionID] = append(m.alerts[a.SessionID], &cp)
	return nil
}

// ListRecentPredictions returns up to limit predictions, most recent first
func (m *MemoryStore) ListRecentPredictions(ctx context.Context, sessionID string, limit int) ([]*domain.PredictionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.predictions[sessionID]
	out := make([]*domain.PredictionRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ListAlerts returns up to limit alerts, most recent first
func (m *MemoryStore) ListAlerts(ctx context.Context, sessionID string, limit int) ([]*domain.QualityAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.alerts[sessionID]
	out := make([]*domain.QualityAlert, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// SaveDataset inserts or replaces a profile
func (m *MemoryStore) SaveDataset(ctx context.Context, p *dataset.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.datasets[p.ID] = &cp
	return nil
}

// LoadDataset returns a profile
func (m *MemoryStore) LoadDataset(ctx context.Context, id string) (*dataset.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("store: dataset %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// ListDatasets returns profiles ordered by id
func (m *MemoryStore) ListDatasets(ctx context.Context) ([]*dataset.Profile, error) {
	m.mu.RLock()
	out := make([]*dataset.Profile, 0, len(m.datasets))
	for _, p := range m.datasets {
		cp := *p
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SavePartition records the accepted partition of a dataset
func (m *MemoryStore) SavePartition(ctx context.Context, datasetID string, p partition.Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[datasetID] = p
	return nil
}

// LoadPartition returns the accepted partition of a dataset
func (m *MemoryStore) LoadPartition(ctx context.Context, datasetID string) (partition.Partition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[datasetID]
	if !ok {
		return partition.Partition{}, fmt.Errorf("store: partition for %s: %w", datasetID, domain.ErrNotFound)
	}
	return p, nil
}

// PurgeSessions removes terminal sessions completed before the cutoff
func (m *MemoryStore) PurgeSessions(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, s := range m.sessions {
		if !s.Status.Terminal() || s.CompletedAt == nil || !s.CompletedAt.Before(before) {
			continue
		}
		delete(m.sessions, id)
		delete(m.predictions, id)
		delete(m.alerts, id)
		purged++
	}
	return purged, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
