// internal/dataset/watcher.go
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Ingester is the part of Catalog the watcher needs
type Ingester interface {
	Ingest(ctx context.Context, id, name, uri string) (*Profile, error)
}

// Watcher ingests dataset files dropped into an inbox directory.
// A file is ingested once it has been quiet for Settle.
type Watcher struct {
	dir     string
	target  Ingester
	logger  *zap.Logger
	Settle  time.Duration
	pending map[string]time.Time
}

// NewWatcher creates an inbox watcher
func NewWatcher(dir string, target Ingester, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		target:  target,
		logger:  logger,
		Settle:  500 * time.Millisecond,
		pending: make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled. Files already present are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return fmt.Errorf("dataset: create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dataset: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("dataset: watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("dataset: scan inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && IsDatasetFile(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = time.Time{}
		}
	}

	ticker := time.NewTicker(w.Settle / 2)
	defer ticker.Stop()

	w.logger.Info("watching dataset inbox", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && IsDatasetFile(event.Name) {
				w.pending[event.Name] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.Settle {
			continue
		}
		delete(w.pending, path)

		id := Stem(path)
		if _, err := w.target.Ingest(ctx, id, id, path); err != nil {
			w.logger.Error("failed to ingest inbox file",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}
