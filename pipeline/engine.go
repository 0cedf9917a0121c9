// Package pipeline runs product scrapes, one-shot or as a daemon.
package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tracklab/pricetrack/history"
	"github.com/tracklab/pricetrack/metrics"
	"github.com/tracklab/pricetrack/produrl"
	"github.com/tracklab/pricetrack/scrape"
	"github.com/tracklab/pricetrack/storage"
)

// URLResult summarizes the outcome of one URL in a run.
type URLResult struct {
	URL       string
	ProductID string
	Title     string
	Brand     string
	Points    int
	Synthetic bool
	Err       error
}

// Report is the outcome of a full run.
type Report struct {
	Run     *storage.Run
	Results []URLResult
}

// Engine scrapes seed URLs with a bounded worker pool and persists the
// results into the entity store and history database.
type Engine struct {
	handler *scrape.Handler
	store   *storage.Store
	repo    *history.Repository
	metrics *metrics.Metrics
	workers int
	logger  *slog.Logger

	// jitter spreads requests out so a run doesn't hammer one host
	jitterMin time.Duration
	jitterMax time.Duration
}

// EngineOptions configures an Engine. Zero values get defaults.
type EngineOptions struct {
	Workers   int
	JitterMin time.Duration
	JitterMax time.Duration
}

// NewEngine creates an Engine. Metrics may be nil when no endpoint is
// configured.
func NewEngine(handler *scrape.Handler, store *storage.Store, repo *history.Repository, m *metrics.Metrics, opts EngineOptions, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 3
	}
	jitterMin := opts.JitterMin
	jitterMax := opts.JitterMax
	if jitterMax <= 0 {
		jitterMin = 250 * time.Millisecond
		jitterMax = time.Second
	}

	return &Engine{
		handler:   handler,
		store:     store,
		repo:      repo,
		metrics:   m,
		workers:   workers,
		logger:    logger,
		jitterMin: jitterMin,
		jitterMax: jitterMax,
	}
}

// Run scrapes every URL and records the run in the entity store. A run with
// any successful URL finishes complete; a run where every URL failed
// finishes failed.
func (e *Engine) Run(ctx context.Context, urls []string) (*Report, error) {
	run := &storage.Run{URLsTotal: len(urls)}
	if _, err := e.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	var (
		succeeded    atomic.Int64
		failed       atomic.Int64
		pointsStored atomic.Int64
	)

	jobs := make(chan int)
	results := make([]URLResult, len(urls))

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := range jobs {
				res := e.processURL(ctx, urls[i])
				results[i] = res

				switch {
				case res.Err != nil:
					failed.Add(1)
				default:
					succeeded.Add(1)
					pointsStored.Add(int64(res.Points))
				}

				e.sleepJitter(ctx, rng)
			}
		}(time.Now().UnixNano() + int64(w))
	}

	for i := range urls {
		select {
		case <-ctx.Done():
			// Stop feeding; in-flight URLs finish, the rest stay zero-valued
		case jobs <- i:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	run.Succeeded = int(succeeded.Load())
	run.Failed = int(failed.Load())
	run.PointsStored = int(pointsStored.Load())

	status := storage.RunStatusComplete
	if run.Succeeded == 0 && run.Failed > 0 {
		status = storage.RunStatusFailed
	}
	if err := e.store.FinishRun(ctx, run, status); err != nil {
		e.logger.Warn("Failed to finalize run", slog.String("error", err.Error()))
	}

	e.logger.Info("Run finished",
		slog.String("run_id", run.ID),
		slog.Int("urls", run.URLsTotal),
		slog.Int("succeeded", run.Succeeded),
		slog.Int("failed", run.Failed),
		slog.Int("points", run.PointsStored))

	return &Report{Run: run, Results: results}, nil
}

// ScrapeOne scrapes a single URL and persists the result.
func (e *Engine) ScrapeOne(ctx context.Context, url string) (URLResult, error) {
	res := e.processURL(ctx, url)
	return res, res.Err
}

// processURL scrapes one URL and persists product and points.
func (e *Engine) processURL(ctx context.Context, url string) URLResult {
	start := time.Now()
	out := URLResult{URL: url}

	scraped, err := e.handler.Scrape(ctx, url)
	if err != nil {
		e.logger.Warn("Scrape failed", slog.String("url", url), slog.String("error", err.Error()))
		e.recordScrape("error", start)
		out.Err = err
		return out
	}

	out.ProductID = scraped.ProductID
	out.Title = scraped.Info.Title
	out.Brand = scraped.Info.Brand
	out.Points = len(scraped.Points)
	out.Synthetic = scraped.Synthetic

	if err := e.persist(ctx, scraped); err != nil {
		e.logger.Error("Persist failed", slog.String("url", url), slog.String("error", err.Error()))
		e.recordScrape("error", start)
		out.Err = err
		return out
	}

	if scraped.Synthetic && e.metrics != nil {
		e.metrics.SyntheticSeries.Inc()
	}
	if e.metrics != nil {
		e.metrics.PointsStored.Add(float64(out.Points))
	}
	e.recordScrape("success", start)

	e.logger.Info("Scraped product",
		slog.String("url", url),
		slog.String("product_id", scraped.ProductID),
		slog.String("title", scraped.Info.Title),
		slog.Int("points", out.Points),
		slog.Bool("synthetic", scraped.Synthetic))

	return out
}

// persist writes a scrape result to the entity store and history database.
func (e *Engine) persist(ctx context.Context, r *scrape.Result) error {
	existing, err := e.store.GetProduct(ctx, r.ProductID)
	if err != nil && err != storage.ErrNotFound {
		return err
	}

	product := &storage.Product{
		Slug:         r.ProductID,
		URL:          r.URL,
		Title:        r.Info.Title,
		Brand:        r.Info.Brand,
		Domain:       produrl.ExtractDomain(r.URL),
		ETag:         r.ETag,
		LastModified: r.LastModified,
		ContentHash:  r.ContentHash,
		PointCount:   len(r.Points),
		Synthetic:    r.Synthetic,
	}
	if r.Snapshot != nil {
		product.Snapshot = r.Snapshot.Markdown
	}
	if existing != nil {
		product.ID = existing.ID
		product.FirstSeen = existing.FirstSeen
	}

	if err := e.store.PutProduct(ctx, product); err != nil {
		return err
	}

	if err := e.repo.UpsertProduct(ctx, r.ProductID, r.URL, r.Info.Title, r.Info.Brand, r.Synthetic); err != nil {
		return err
	}

	points := make([]history.Point, len(r.Points))
	for i, p := range r.Points {
		points[i] = history.Point{Date: p.Date, Price: p.Price}
	}
	if _, err := e.repo.UpsertPoints(ctx, r.ProductID, points); err != nil {
		return err
	}

	return nil
}

func (e *Engine) recordScrape(outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordScrape(outcome, time.Since(start))
	}
}

func (e *Engine) sleepJitter(ctx context.Context, rng *rand.Rand) {
	span := e.jitterMax - e.jitterMin
	d := e.jitterMin
	if span > 0 {
		d += time.Duration(rng.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
