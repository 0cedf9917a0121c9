package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tracklab/pricetrack/config"
	"github.com/tracklab/pricetrack/export"
	"github.com/tracklab/pricetrack/history"
	"github.com/tracklab/pricetrack/metrics"
	"github.com/tracklab/pricetrack/pipeline"
	"github.com/tracklab/pricetrack/scrape"
	"github.com/tracklab/pricetrack/storage"
	"github.com/tracklab/pricetrack/workspace"
)

// App wires together the stores, the scraper and NATS for the CLI.
type App struct {
	cfg *config.Config
	env *Env

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Storage
	store *storage.Store
	repo  *history.Repository

	// Pipeline
	metrics *metrics.Metrics
	engine  *pipeline.Engine
}

// NewApp creates an application instance from the loaded environment.
func NewApp(env *Env) *App {
	return &App{
		cfg: env.Config,
		env: env,
	}
}

// Start initializes NATS, storage and the scrape engine.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	store, err := storage.NewStore(ctx, a.js)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	a.store = store

	dbPath := a.cfg.Workspace.HistoryDB
	if dbPath == "" {
		dbPath = workspace.HistoryDB(a.cfg.Workspace.Root)
	}
	repo, err := history.New(dbPath)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	a.repo = repo

	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	a.engine = pipeline.NewEngine(
		a.buildHandler(a.cfg.Scrape.SampleFallback),
		a.store,
		a.repo,
		a.metrics,
		pipeline.EngineOptions{Workers: a.cfg.Scrape.Workers},
		a.env.Logger,
	)

	return nil
}

// buildHandler assembles a scrape handler from config.
func (a *App) buildHandler(sampleFallback bool) *scrape.Handler {
	fetcher := scrape.NewFetcher(scrape.FetcherOptions{
		Timeout:        a.cfg.Scrape.Timeout,
		MaxContentSize: a.cfg.Scrape.MaxContentSize,
		UserAgents:     a.cfg.Scrape.UserAgents,
		AllowPrivate:   a.cfg.Scrape.AllowPrivate,
	})
	sampler := scrape.NewSampler(time.Now().UnixNano())
	return scrape.NewHandler(fetcher, sampler, sampleFallback, a.env.Logger)
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		// Connect to external NATS
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		// Start embedded NATS server
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  workspace.Models(a.cfg.Workspace.Root),
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		// Wait for server to be ready
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	return nil
}

// exporter builds an exporter writing into the configured directory.
func (a *App) exporter() *export.Exporter {
	dir := a.cfg.Export.Dir
	if dir == "" {
		dir = workspace.DataRaw(a.cfg.Workspace.Root)
	}
	return export.NewExporter(a.repo, dir)
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() {
	if a.repo != nil {
		_ = a.repo.Close()
	}

	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
