package seed

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectURLs(t *testing.T, ch <-chan string, want int, timeout time.Duration) []string {
	t.Helper()
	var got []string
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case u, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestFlushPendingEmitsOnlyNewURLs(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "a.txt", "https://example.com/one\nhttps://example.com/two\n")

	loader := NewLoader("https://example.com", []string{filepath.Join(dir, "*.txt")})
	w, err := NewWatcher(loader, time.Second, slog.Default())
	require.NoError(t, err)
	defer w.Stop()

	w.Preload([]string{"https://example.com/one"})

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()
	w.flushPending(context.Background())

	got := collectURLs(t, w.urls, 1, time.Second)
	assert.Equal(t, []string{"https://example.com/two"}, got)
	assert.Equal(t, 2, w.Known())

	// Nothing pending, nothing re-emitted.
	w.flushPending(context.Background())
	assert.Empty(t, collectURLs(t, w.urls, 1, 50*time.Millisecond))
}

func TestFlushPendingRetriesDroppedURLs(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "a.txt", "https://example.com/one\nhttps://example.com/two\n")

	loader := NewLoader("https://example.com", []string{filepath.Join(dir, "*.txt")})
	w := &Watcher{
		loader: loader,
		logger: slog.Default(),
		known:  make(map[string]bool),
		urls:   make(chan string, 1),
	}

	w.pending = true
	w.flushPending(context.Background())
	require.Equal(t, int64(1), w.DroppedURLs())
	assert.Equal(t, 1, w.Known())
	assert.Equal(t, "https://example.com/one", <-w.urls)

	// The overflowed URL was not marked known, so the next flush emits it.
	w.pending = true
	w.flushPending(context.Background())
	assert.Equal(t, []string{"https://example.com/two"}, collectURLs(t, w.urls, 1, time.Second))
}

func TestWatcherDetectsFileChange(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "mobile.txt", "https://example.com/one\n")

	loader := NewLoader("https://example.com", []string{filepath.Join(dir, "*.txt")})
	w, err := NewWatcher(loader, 20*time.Millisecond, slog.Default())
	require.NoError(t, err)
	defer w.Stop()

	known, err := loader.Load()
	require.NoError(t, err)
	w.Preload(known)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	writeSeedFile(t, dir, "mobile.txt", "https://example.com/one\nhttps://example.com/two\n")

	got := collectURLs(t, w.URLs(), 1, 5*time.Second)
	assert.Equal(t, []string{"https://example.com/two"}, got)
}

func TestWatcherSeesNewSeedFile(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "a.txt", "https://example.com/one\n")

	loader := NewLoader("https://example.com", []string{filepath.Join(dir, "*.txt")})
	w, err := NewWatcher(loader, 20*time.Millisecond, slog.Default())
	require.NoError(t, err)
	defer w.Stop()

	known, err := loader.Load()
	require.NoError(t, err)
	w.Preload(known)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	writeSeedFile(t, dir, "b.txt", "https://example.com/three\n")

	got := collectURLs(t, w.URLs(), 1, 5*time.Second)
	assert.Equal(t, []string{"https://example.com/three"}, got)
}
