package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tracklab/pricetrack/produrl"
)

// Result is the outcome of scraping one product page.
type Result struct {
	URL          string
	ProductID    string
	Info         ProductInfo
	Points       []PricePoint
	Snapshot     *Snapshot
	ETag         string
	LastModified time.Time
	ContentHash  string

	// Synthetic is true when the points were generated because no chart
	// data could be recovered from the page.
	Synthetic bool

	// Unchanged is true when a conditional refresh returned 304 and the
	// rest of the result is empty.
	Unchanged bool
}

// Handler scrapes a product page into a Result.
type Handler struct {
	fetcher        *Fetcher
	snapshotter    *Snapshotter
	sampler        *Sampler
	sampleFallback bool
	logger         *slog.Logger
}

// NewHandler creates a scrape handler. When sampleFallback is true, pages
// yielding no chart data get a synthetic series instead of failing.
func NewHandler(fetcher *Fetcher, sampler *Sampler, sampleFallback bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		fetcher:        fetcher,
		snapshotter:    NewSnapshotter(),
		sampler:        sampler,
		sampleFallback: sampleFallback,
		logger:         logger,
	}
}

// Scrape fetches and processes a product page.
func (h *Handler) Scrape(ctx context.Context, url string) (*Result, error) {
	fetchResult, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	return h.process(url, fetchResult)
}

// Refresh fetches with ETag support. When the page is unchanged the result
// has Unchanged set and carries no new data.
func (h *Handler) Refresh(ctx context.Context, url, etag string) (*Result, error) {
	fetchResult, err := h.fetcher.FetchWithETag(ctx, url, etag)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if fetchResult.StatusCode == http.StatusNotModified {
		return &Result{URL: url, ProductID: produrl.GenerateProductID(url), Unchanged: true}, nil
	}

	return h.process(url, fetchResult)
}

// process converts a fetched page into a Result.
func (h *Handler) process(url string, fetchResult *FetchResult) (*Result, error) {
	result := &Result{
		URL:          url,
		ProductID:    produrl.GenerateProductID(url),
		Info:         ExtractProductInfo(fetchResult.Body),
		Points:       ExtractSeries(fetchResult.Body),
		ETag:         fetchResult.ETag,
		LastModified: fetchResult.LastModified,
		ContentHash:  computeHash(fetchResult.Body),
	}

	if len(result.Points) == 0 {
		if !h.sampleFallback || h.sampler == nil {
			return nil, fmt.Errorf("no price series found on %s", url)
		}
		h.logger.Info("No chart data found, generating sample series", "url", url)
		result.Points = h.sampler.Series()
		result.Synthetic = true
	}

	snapshot, err := h.snapshotter.Snapshot(url, fetchResult.Body)
	if err != nil {
		// A failed snapshot does not invalidate the price series.
		h.logger.Warn("Snapshot conversion failed", "url", url, "error", err)
	} else {
		result.Snapshot = snapshot
	}

	h.logger.Info("Scraped product page",
		"url", url,
		"title", result.Info.Title,
		"points", len(result.Points),
		"synthetic", result.Synthetic)

	return result, nil
}

// computeHash returns the hex SHA-256 of content.
func computeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
