package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

type reloadRecorder struct {
	mu    sync.Mutex
	loads [][]knowledge.Pattern
	err   error
}

func (r *reloadRecorder) onReload(_ context.Context, patterns []knowledge.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, patterns)
	return r.err
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func (r *reloadRecorder) last() []knowledge.Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[len(r.loads)-1]
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("catalog.yaml", nil, nil)
	assert.Error(t, err)

	rec := &reloadRecorder{}
	_, err = NewWatcher("catalog.txt", rec.onReload, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "catalog.yaml", yamlCatalog)
	rec := &reloadRecorder{}

	w, err := NewWatcher(path, rec.onReload, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := yamlCatalog + `
  - id: ts-types
    keywords: [typescript]
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool { return rec.count() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, rec.last(), 3)
}

func TestWatcher_IgnoresInvalidCatalog(t *testing.T) {
	path := writeFile(t, "catalog.yaml", yamlCatalog)
	rec := &reloadRecorder{err: errors.New("rejected")}

	w, err := NewWatcher(path, rec.onReload, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Duplicate ids fail validation and never reach the callback.
	dup := "patterns:\n  - id: a\n  - id: a\n"
	require.NoError(t, os.WriteFile(path, []byte(dup), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, rec.count())

	// A valid catalog reaches the callback even if the callback rejects it.
	require.NoError(t, os.WriteFile(path, []byte(yamlCatalog), 0o600))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeFile(t, "catalog.json", jsonCatalog)
	rec := &reloadRecorder{}

	w, err := NewWatcher(path, rec.onReload, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	assert.NotPanics(t, w.Stop)
}

func TestWatcher_ConcurrentStop(t *testing.T) {
	path := writeFile(t, "catalog.json", jsonCatalog)
	rec := &reloadRecorder{}

	w, err := NewWatcher(path, rec.onReload, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	path := writeFile(t, "catalog.json", jsonCatalog)

	w, err := NewWatcher(path, (&reloadRecorder{}).onReload, nil)
	require.NoError(t, err)

	w.Stop()
	assert.NotPanics(t, w.Stop)
	assert.Error(t, w.watcher.Add(filepath.Dir(path)))
}

func TestWatcher_ContextCancelClosesWatcher(t *testing.T) {
	path := writeFile(t, "catalog.json", jsonCatalog)
	rec := &reloadRecorder{}

	w, err := NewWatcher(path, rec.onReload, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit after cancel")
	}
	assert.Error(t, w.watcher.Add(filepath.Dir(path)), "fsnotify watcher should be closed")

	assert.NotPanics(t, w.Stop)
}
