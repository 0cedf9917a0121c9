package seed

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// eventChannelBuffer is the size of the watch event channel.
const eventChannelBuffer = 500

// Watcher watches seed files and emits URLs that appear in them after
// startup. Events are debounced so editors that write in multiple steps
// trigger a single reload.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	// known tracks URLs already emitted or preloaded.
	knownMu sync.Mutex
	known   map[string]bool

	pendingMu sync.Mutex
	pending   bool

	urls chan string

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher over the loader's seed files.
// Seed the known set with Preload before Start to avoid re-emitting URLs
// that are already tracked.
func NewWatcher(loader *Loader, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		loader:   loader,
		watcher:  fsw,
		logger:   logger,
		debounce: debounce,
		known:    make(map[string]bool),
		urls:     make(chan string, eventChannelBuffer),
	}, nil
}

// URLs returns the channel of newly discovered seed URLs.
func (w *Watcher) URLs() <-chan string {
	return w.urls
}

// Preload marks URLs as already known so they are not re-emitted.
func (w *Watcher) Preload(urls []string) {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	for _, u := range urls {
		w.known[u] = true
	}
}

// Start begins watching the directories containing matched seed files.
func (w *Watcher) Start(ctx context.Context) error {
	files, err := w.loader.Files()
	if err != nil {
		return err
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		dirs[filepath.Dir(f)] = true
	}
	// Watch pattern roots too so newly created seed files are seen.
	for _, pattern := range w.loader.patterns {
		if base, _ := globBase(pattern); base != "" {
			dirs[base] = true
		}
	}

	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("Failed to watch seed directory", "dir", dir, "error", err)
		} else {
			w.logger.Debug("Watching seed directory", "dir", dir)
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("Seed watcher started", "dirs", len(dirs), "debounce", w.debounce)
	return nil
}

// Stop stops the watcher. The URL channel is closed by processEvents.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedURLs returns the number of URLs dropped due to channel overflow.
func (w *Watcher) DroppedURLs() int64 {
	return w.droppedEvents.Load()
}

// Known returns the number of URLs currently tracked by the watcher.
func (w *Watcher) Known() int {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	return len(w.known)
}

// globBase splits a glob pattern into its fixed directory prefix and the
// remaining pattern.
func globBase(pattern string) (string, string) {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	for i, part := range parts {
		if strings.ContainsAny(part, "*?[{") {
			return filepath.FromSlash(strings.Join(parts[:i], "/")), strings.Join(parts[i:], "/")
		}
	}
	return filepath.Dir(filepath.FromSlash(pattern)), filepath.Base(pattern)
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.urls)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Seed watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// flushPending reloads seed files and emits URLs not seen before.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()
	if !pending {
		return
	}

	urls, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("Failed to reload seed files", "error", err)
		return
	}

	for _, u := range urls {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.knownMu.Lock()
		already := w.known[u]
		w.knownMu.Unlock()
		if already {
			continue
		}

		// Mark known only once the URL is on the channel. A URL dropped
		// on overflow stays unknown so the next flush retries it.
		select {
		case w.urls <- u:
			w.knownMu.Lock()
			w.known[u] = true
			w.knownMu.Unlock()
			w.logger.Debug("New seed URL", "url", u)
		default:
			dropped := w.droppedEvents.Add(1)
			w.logger.Warn("URL channel full, dropping seed URL",
				"url", u,
				"total_dropped", dropped)
		}
	}
}
