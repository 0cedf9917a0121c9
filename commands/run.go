package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/metrics"
	"github.com/tracklab/pricetrack/pipeline"
	"github.com/tracklab/pricetrack/seed"
)

func newRunCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scrape daemon",
		Long: `Run starts the long-lived scrape daemon. It consumes scrape requests
from JetStream, periodically refreshes known products with conditional
fetches, and optionally watches the seed lists for new URLs.

The daemon's handler never falls back to sample data; a page without
chart data is reported as an error instead of silently generating a
synthetic history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags)
			if err != nil {
				return err
			}

			app := NewApp(env)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			// Daemon refreshes must not fabricate data for broken pages
			engine := pipeline.NewEngine(
				app.buildHandler(false),
				app.store,
				app.repo,
				app.metrics,
				pipeline.EngineOptions{Workers: env.Config.Scrape.Workers},
				env.Logger,
			)

			daemon := pipeline.NewDaemon(engine, app.js, env.Config.Scrape.RefreshInterval, env.Logger)
			if err := daemon.Start(ctx); err != nil {
				return err
			}

			var metricsSrv *metrics.Server
			if app.metrics != nil {
				metricsSrv = metrics.NewServer(app.metrics, env.Config.Metrics.Addr, env.Logger)
				metricsSrv.Start()
			}

			var watcher *seed.Watcher
			if env.Config.Seeds.Watch {
				watcher, err = startSeedWatcher(ctx, env, app)
				if err != nil {
					return err
				}
			}

			fmt.Println("Daemon running. Press Ctrl+C to stop.")
			<-ctx.Done()

			if watcher != nil {
				_ = watcher.Stop()
			}
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Stop(shutdownCtx)
				cancel()
			}
			return daemon.Stop(30 * time.Second)
		},
	}
}

// startSeedWatcher watches the seed lists and enqueues new URLs.
func startSeedWatcher(ctx context.Context, env *Env, app *App) (*seed.Watcher, error) {
	patterns := make([]string, len(env.Config.Seeds.Patterns))
	for i, p := range env.Config.Seeds.Patterns {
		if filepath.IsAbs(p) {
			patterns[i] = p
		} else {
			patterns[i] = filepath.Join(env.Config.Workspace.Root, p)
		}
	}

	loader := seed.NewLoader(env.Config.Scrape.BaseURL, patterns)
	debounce := time.Duration(env.Config.Seeds.DebounceMs) * time.Millisecond
	watcher, err := seed.NewWatcher(loader, debounce, env.Logger)
	if err != nil {
		return nil, fmt.Errorf("create seed watcher: %w", err)
	}

	// Known URLs are preloaded so only additions get enqueued
	if known, err := loader.Load(); err == nil {
		watcher.Preload(known)
	} else {
		env.Logger.Warn("Failed to preload seed lists", "error", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("start seed watcher: %w", err)
	}
	if app.metrics != nil {
		app.metrics.SeedURLsWatched.Set(float64(watcher.Known()))
	}

	go func() {
		for url := range watcher.URLs() {
			if err := pipeline.PublishRequest(ctx, app.js, url); err != nil {
				env.Logger.Warn("Failed to enqueue seed URL", "url", url, "error", err)
			}
			if app.metrics != nil {
				app.metrics.SeedURLsWatched.Set(float64(watcher.Known()))
			}
		}
	}()

	return watcher, nil
}
