// Package metrics exposes scrape pipeline counters over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	ScrapesTotal     *prometheus.CounterVec
	PointsStored     prometheus.Counter
	SyntheticSeries  prometheus.Counter
	ScrapeDuration   prometheus.Histogram
	ProductsTracked  prometheus.Gauge
	SeedURLsWatched  prometheus.Gauge
	ExportRowsTotal  prometheus.Counter
	RefreshUnchanged prometheus.Counter
}

// New creates a Metrics instance with its own registry so tests don't
// collide on the default global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricetrack",
			Name:      "scrapes_total",
			Help:      "Scrape attempts by outcome.",
		}, []string{"outcome"}),
		PointsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricetrack",
			Name:      "points_stored_total",
			Help:      "Price points written to the history database.",
		}),
		SyntheticSeries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricetrack",
			Name:      "synthetic_series_total",
			Help:      "Products that fell back to a generated sample series.",
		}),
		ScrapeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricetrack",
			Name:      "scrape_duration_seconds",
			Help:      "Wall time of a single product scrape.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ProductsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricetrack",
			Name:      "products_tracked",
			Help:      "Products currently stored.",
		}),
		SeedURLsWatched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricetrack",
			Name:      "seed_urls_watched",
			Help:      "Seed URLs known to the watcher.",
		}),
		ExportRowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricetrack",
			Name:      "export_rows_total",
			Help:      "Rows written by CSV/JSON exports.",
		}),
		RefreshUnchanged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricetrack",
			Name:      "refresh_unchanged_total",
			Help:      "Daemon refreshes short-circuited by a 304 response.",
		}),
	}
}

// RecordScrape tracks one scrape attempt with its outcome and duration.
func (m *Metrics) RecordScrape(outcome string, d time.Duration) {
	m.ScrapesTotal.WithLabelValues(outcome).Inc()
	m.ScrapeDuration.Observe(d.Seconds())
}

// Server serves /metrics and /healthz.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds an HTTP server for the given metrics on addr.
func NewServer(m *Metrics, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background. Listen errors other than a
// clean shutdown are logged, not returned.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the metrics HTTP handler for embedding in another mux.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
