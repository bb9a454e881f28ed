package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"engage/internal/aggregator"
	"engage/internal/api"
	"engage/internal/classifier"
	"engage/internal/config"
	"engage/internal/hub"
	"engage/internal/ingest"
	"engage/internal/registry"
	"engage/internal/store"
	"engage/internal/websocket"
)

// Application coordinates all system components. Construction follows
// dependency order: Store → Registry → Aggregator → Hub → Ingest → API/WS →
// HTTP.
type Application struct {
	config     *config.Config
	sampleLog  *store.Store
	registry   *registry.Registry
	aggregator *aggregator.Aggregator
	hub        *hub.Hub
	ingestor   *ingest.Ingestor
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application instance with all components wired.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sampleLog, err := store.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample archive: %w", err)
	}

	reg := registry.NewRegistry(cfg.Session.IdleTTL, cfg.Session.ReapInterval)
	agg := aggregator.NewAggregator(cfg.Aggregator.Window)
	broadcastHub := hub.NewHub(reg)

	// Reaped sessions take their window and publish lock with them.
	reg.OnExpire(agg.Drop)
	reg.OnExpire(broadcastHub.Drop)

	ingestor := ingest.NewIngestor(reg, agg, broadcastHub,
		classifier.NewWeighted(), sampleLog, cfg.Ingest.SamplesPerMinute)

	apiServer := api.NewServer(ingestor, reg, agg, sampleLog)
	wsHandler := websocket.NewHandler(reg, broadcastHub, agg, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		sampleLog:  sampleLog,
		registry:   reg,
		aggregator: agg,
		hub:        broadcastHub,
		ingestor:   ingestor,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. Background loops start first so the HTTP server
// never accepts work the rest of the system cannot handle.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting engage on %s", app.httpServer.Addr)

	app.registry.Start(ctx)
	app.ingestor.Start(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.registry.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("engage started")
		return nil
	case <-ctx.Done():
		app.registry.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → registry reaper →
// sample archive.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down engage")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.Stop()

	if err := app.sampleLog.Close(); err != nil {
		log.Printf("Sample archive shutdown error: %v", err)
	}

	log.Printf("engage shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
