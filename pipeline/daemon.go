package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tracklab/pricetrack/storage"
)

// JetStream names for the scrape request queue.
const (
	ScrapeStream   = "PRICETRACK_REQUESTS"
	ScrapeSubject  = "pricetrack.scrape.request"
	ScrapeConsumer = "scrape-worker"
)

// ScrapeRequest asks the daemon to scrape one URL.
type ScrapeRequest struct {
	URL string `json:"url"`
}

// EnsureStream creates the scrape request stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, ScrapeStream)
	if err == nil {
		return nil
	}
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     ScrapeStream,
		Subjects: []string{ScrapeSubject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// PublishRequest enqueues a scrape request for the daemon.
func PublishRequest(ctx context.Context, js jetstream.JetStream, url string) error {
	data, err := json.Marshal(ScrapeRequest{URL: url})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := js.Publish(ctx, ScrapeSubject, data); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

// Daemon consumes scrape requests from JetStream and periodically
// refreshes known products using conditional fetches.
type Daemon struct {
	engine          *Engine
	js              jetstream.JetStream
	refreshInterval time.Duration
	logger          *slog.Logger

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup // Tracks running goroutines for graceful shutdown

	// Counters
	processed atomic.Int64
	refreshed atomic.Int64
	errors    atomic.Int64
}

// NewDaemon creates a Daemon. A zero refreshInterval disables the
// periodic refresh loop.
func NewDaemon(engine *Engine, js jetstream.JetStream, refreshInterval time.Duration, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		engine:          engine,
		js:              js,
		refreshInterval: refreshInterval,
		logger:          logger,
	}
}

// Start begins consuming scrape requests.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := EnsureStream(ctx, d.js); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return err
	}

	consumer, err := d.js.CreateOrUpdateConsumer(ctx, ScrapeStream, jetstream.ConsumerConfig{
		Durable:       ScrapeConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: ScrapeSubject,
	})
	if err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("create consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.consumeMessages(runCtx, consumer)
	}()

	if d.refreshInterval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.refreshLoop(runCtx)
		}()
	}

	d.logger.Info("Scrape daemon started",
		slog.String("stream", ScrapeStream),
		slog.String("consumer", ScrapeConsumer),
		slog.Duration("refresh_interval", d.refreshInterval))

	return nil
}

// consumeMessages processes incoming scrape requests.
func (d *Daemon) consumeMessages(ctx context.Context, consumer jetstream.Consumer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Fetch next message with timeout
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // Timeout, try again
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				// NAK the current message so it can be redelivered
				_ = msg.Nak()
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				d.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage processes a single scrape request.
func (d *Daemon) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var req ScrapeRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		d.logger.Warn("Failed to parse scrape request", slog.String("error", err.Error()))
		d.errors.Add(1)
		_ = msg.Nak()
		return
	}

	d.logger.Info("Processing scrape request", slog.String("url", req.URL))

	if _, err := d.engine.ScrapeOne(ctx, req.URL); err != nil {
		d.errors.Add(1)
		_ = msg.Nak()
		return
	}

	d.processed.Add(1)
	_ = msg.Ack()
}

// refreshLoop periodically re-scrapes known products. Products whose
// pages answer 304 are skipped without touching storage.
func (d *Daemon) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshAll(ctx)
		}
	}
}

func (d *Daemon) refreshAll(ctx context.Context) {
	products, err := d.engine.store.ListProducts(ctx)
	if err != nil {
		d.logger.Warn("Failed to list products for refresh", slog.String("error", err.Error()))
		return
	}
	if d.engine.metrics != nil {
		d.engine.metrics.ProductsTracked.Set(float64(len(products)))
	}
	if len(products) == 0 {
		return
	}

	// Each refresh pass is recorded as a run so 304 skips show up in the
	// run accounting alongside successes and failures.
	run := &storage.Run{URLsTotal: len(products)}
	if _, err := d.engine.store.CreateRun(ctx, run); err != nil {
		d.logger.Warn("Failed to record refresh run", slog.String("error", err.Error()))
		run = nil
	}

	var succeeded, failed, unchanged, points int
	for _, p := range products {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := d.engine.handler.Refresh(ctx, p.URL, p.ETag)
		if err != nil {
			d.logger.Warn("Refresh failed",
				slog.String("url", p.URL),
				slog.String("error", err.Error()))
			d.errors.Add(1)
			failed++
			continue
		}
		if result.Unchanged {
			if d.engine.metrics != nil {
				d.engine.metrics.RefreshUnchanged.Inc()
			}
			unchanged++
			continue
		}

		if err := d.engine.persist(ctx, result); err != nil {
			d.logger.Error("Refresh persist failed",
				slog.String("url", p.URL),
				slog.String("error", err.Error()))
			d.errors.Add(1)
			failed++
			continue
		}
		d.refreshed.Add(1)
		succeeded++
		points += len(result.Points)
	}

	if run != nil {
		run.Succeeded = succeeded
		run.Failed = failed
		run.Unchanged = unchanged
		run.PointsStored = points

		status := storage.RunStatusComplete
		if succeeded == 0 && failed > 0 {
			status = storage.RunStatusFailed
		}
		if err := d.engine.store.FinishRun(ctx, run, status); err != nil {
			d.logger.Warn("Failed to finalize refresh run", slog.String("error", err.Error()))
		}
	}

	d.logger.Info("Refresh pass finished",
		slog.Int("products", len(products)),
		slog.Int("unchanged", unchanged),
		slog.Int64("refreshed", d.refreshed.Load()))
}

// Stop gracefully stops the daemon within the given timeout.
func (d *Daemon) Stop(timeout time.Duration) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	// Wait for goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		// Graceful shutdown completed
	case <-time.After(timeout):
		err = fmt.Errorf("stop timed out after %v", timeout)
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.logger.Info("Scrape daemon stopped",
		slog.Int64("processed", d.processed.Load()),
		slog.Int64("refreshed", d.refreshed.Load()),
		slog.Int64("errors", d.errors.Load()))

	return err
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.startTime)
}
