package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tracklab/pricetrack/history"
	"github.com/tracklab/pricetrack/scrape"
	"github.com/tracklab/pricetrack/storage"
)

const enginePage = `<!DOCTYPE html>
<html>
<head><title>Galaxy M05 Price History</title></head>
<body>
<h1>Samsung Galaxy M05</h1>
<script>
var chart = {
  labels: ["2022-11-01", "2022-11-08", "2022-11-15"],
  data: [8499, 7999, 8299]
};
</script>
</body>
</html>`

// testEnv bundles the embedded NATS server and stores for engine tests.
type testEnv struct {
	js    jetstream.JetStream
	store *storage.Store
	repo  *history.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	opts := &server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create embedded NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect to embedded NATS: %v", err)
	}
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	if err != nil {
		t.Fatalf("failed to create JetStream context: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.NewStore(ctx, js)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	repo, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})

	return &testEnv{js: js, store: store, repo: repo}
}

func newTestEngine(t *testing.T, env *testEnv, sampleFallback bool) *Engine {
	t.Helper()

	fetcher := scrape.NewFetcher(scrape.FetcherOptions{
		Timeout:      5 * time.Second,
		AllowPrivate: true, // httptest servers listen on loopback
	})
	handler := scrape.NewHandler(fetcher, scrape.NewSampler(42), sampleFallback, nil)

	return NewEngine(handler, env.store, env.repo, nil, EngineOptions{
		Workers:   2,
		JitterMin: time.Millisecond,
		JitterMax: 2 * time.Millisecond,
	}, nil)
}

func TestEngineRun(t *testing.T) {
	env := newTestEnv(t)
	engine := newTestEngine(t, env, false)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(enginePage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	urls := []string{srv.URL + "/mobiles/samsung-galaxy-m05/", srv.URL + "/missing"}
	report, err := engine.Run(ctx, urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Run.URLsTotal != 2 {
		t.Errorf("expected 2 URLs, got %d", report.Run.URLsTotal)
	}
	if report.Run.Succeeded != 1 {
		t.Errorf("expected 1 success, got %d", report.Run.Succeeded)
	}
	if report.Run.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", report.Run.Failed)
	}
	if report.Run.PointsStored != 3 {
		t.Errorf("expected 3 points stored, got %d", report.Run.PointsStored)
	}
	if report.Run.Status != storage.RunStatusComplete {
		t.Errorf("expected complete run, got %s", report.Run.Status)
	}

	ok := report.Results[0]
	if ok.Err != nil {
		t.Fatalf("expected first URL to succeed: %v", ok.Err)
	}
	if ok.Title != "Samsung Galaxy M05" {
		t.Errorf("unexpected title: %s", ok.Title)
	}
	if ok.Brand != "Samsung" {
		t.Errorf("unexpected brand: %s", ok.Brand)
	}

	// Product landed in the entity store
	product, err := env.store.GetProduct(ctx, ok.ProductID)
	if err != nil {
		t.Fatalf("expected stored product: %v", err)
	}
	if product.PointCount != 3 {
		t.Errorf("expected 3 points on product, got %d", product.PointCount)
	}

	// History landed in SQLite
	points, err := env.repo.Points(ctx, ok.ProductID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 3 {
		t.Errorf("expected 3 history points, got %d", len(points))
	}
	if points[1].Date != "2022-11-08" || points[1].Price != 7999 {
		t.Errorf("unexpected point: %+v", points[1])
	}
}

func TestEngineRunAllFailed(t *testing.T) {
	env := newTestEnv(t)
	engine := newTestEngine(t, env, false)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := engine.Run(ctx, []string{srv.URL + "/a", srv.URL + "/b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Run.Status != storage.RunStatusFailed {
		t.Errorf("expected failed run, got %s", report.Run.Status)
	}
	if report.Run.Failed != 2 {
		t.Errorf("expected 2 failures, got %d", report.Run.Failed)
	}
}

func TestEngineRescrapePreservesFirstSeen(t *testing.T) {
	env := newTestEnv(t)
	engine := newTestEngine(t, env, false)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(enginePage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := srv.URL + "/mobiles/samsung-galaxy-m05/"
	first, err := engine.ScrapeOne(ctx, url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, err := env.store.GetProduct(ctx, first.ProductID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.ScrapeOne(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := env.store.GetProduct(ctx, first.ProductID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !after.FirstSeen.Equal(before.FirstSeen) {
		t.Errorf("expected first seen to survive re-scrape: %v vs %v", before.FirstSeen, after.FirstSeen)
	}
	if after.ID != before.ID {
		t.Errorf("expected stable entity ID, got %s vs %s", before.ID, after.ID)
	}

	// Re-scrape must not duplicate history rows
	points, err := env.repo.Points(ctx, first.ProductID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 3 {
		t.Errorf("expected 3 points after re-scrape, got %d", len(points))
	}
}

func TestEngineSampleFallback(t *testing.T) {
	env := newTestEnv(t)
	engine := newTestEngine(t, env, true)

	// Page with a title but no chart data
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Bare Page</title></head><body><h1>Bare Product</h1></body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := engine.ScrapeOne(ctx, srv.URL+"/bare/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Synthetic {
		t.Error("expected synthetic series")
	}
	if res.Points == 0 {
		t.Error("expected generated points")
	}

	product, err := env.store.GetProduct(ctx, res.ProductID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !product.Synthetic {
		t.Error("expected synthetic flag on stored product")
	}
}
