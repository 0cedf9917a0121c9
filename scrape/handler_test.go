package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const productPage = `<!DOCTYPE html>
<html>
<head><title>Samsung Galaxy M05 - Price History</title></head>
<body>
<h1>Samsung Galaxy M05 (4 GB/64 GB)</h1>
<main><p>Price history for the Galaxy M05.</p></main>
<script>
var chart = {
	labels: ["2023-01-01", "2023-01-08", "2023-01-15"],
	data: [6499, 6299, 5999]
};
</script>
</body>
</html>`

func newHandlerWithServer(t *testing.T, handlerFunc http.HandlerFunc, sampleFallback bool) (*Handler, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handlerFunc)
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(FetcherOptions{AllowPrivate: true})
	h := NewHandler(fetcher, NewSampler(1), sampleFallback, nil)
	return h, srv
}

func TestHandlerScrape(t *testing.T) {
	h, srv := newHandlerWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(productPage))
	}, false)

	result, err := h.Scrape(context.Background(), srv.URL+"/samsung-galaxy-m05/")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if result.Info.Title != "Samsung Galaxy M05 (4 GB/64 GB)" {
		t.Errorf("Title = %q", result.Info.Title)
	}
	if result.Info.Brand != "Samsung" {
		t.Errorf("Brand = %q", result.Info.Brand)
	}
	if len(result.Points) != 3 {
		t.Errorf("points = %d, want 3", len(result.Points))
	}
	if result.Synthetic {
		t.Error("series should not be synthetic")
	}
	if result.ETag != `"abc"` {
		t.Errorf("ETag = %q", result.ETag)
	}
	if result.ContentHash == "" {
		t.Error("content hash missing")
	}
	if !strings.HasPrefix(result.ProductID, "product.web.") {
		t.Errorf("ProductID = %q", result.ProductID)
	}
	if result.Snapshot == nil || !strings.Contains(result.Snapshot.Markdown, "Galaxy M05") {
		t.Error("snapshot missing or incomplete")
	}
}

func TestHandlerScrapeSampleFallback(t *testing.T) {
	page := `<html><body><h1>Mystery Phone</h1><p>No chart here.</p></body></html>`

	h, srv := newHandlerWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}, true)

	result, err := h.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !result.Synthetic {
		t.Error("expected synthetic series")
	}
	if len(result.Points) == 0 {
		t.Error("expected sample points")
	}
}

func TestHandlerScrapeNoSeriesNoFallback(t *testing.T) {
	h, srv := newHandlerWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Bare</h1></body></html>`))
	}, false)

	_, err := h.Scrape(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error when no series and fallback disabled")
	}
}

func TestHandlerRefreshUnchanged(t *testing.T) {
	h, srv := newHandlerWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v2"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v2"`)
		_, _ = w.Write([]byte(productPage))
	}, false)

	result, err := h.Refresh(context.Background(), srv.URL, `"v2"`)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !result.Unchanged {
		t.Error("expected Unchanged result for 304")
	}
	if len(result.Points) != 0 {
		t.Error("unchanged result should carry no points")
	}
}

func TestComputeHash(t *testing.T) {
	hash := computeHash([]byte("hello world"))
	expected := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if hash != expected {
		t.Errorf("computeHash(\"hello world\") = %q, want %q", hash, expected)
	}
}
