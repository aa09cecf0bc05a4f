// internal/dataset/watcher_test.go
package dataset

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingIngester struct {
	mu    sync.Mutex
	calls map[string]string
}

func (r *recordingIngester) Ingest(ctx context.Context, id, name, uri string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = uri
	return &Profile{ID: id}, nil
}

func (r *recordingIngester) seen(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uri, ok := r.calls[id]
	return uri, ok
}

func TestWatcher_IngestsDroppedFiles(t *testing.T) {
	inbox := t.TempDir()
	existing := writeFile(t, inbox, "existing.csv", "temp\n1\n")
	writeFile(t, inbox, "notes.txt", "ignore me")

	target := &recordingIngester{calls: make(map[string]string)}
	w := NewWatcher(inbox, target, zap.NewNop())
	w.Settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := target.seen("existing")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	dropped := writeFile(t, inbox, "line-b.csv.gz", "not really gzip")
	require.Eventually(t, func() bool {
		_, ok := target.seen("line-b")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	uri, _ := target.seen("existing")
	assert.Equal(t, existing, uri)
	uri, _ = target.seen("line-b")
	assert.Equal(t, filepath.Clean(dropped), filepath.Clean(uri))
	_, ok := target.seen("notes")
	assert.False(t, ok)
}
