// Package server provides the public entry point for initializing the
// resolution core server.
//
// This package exists in pkg/ (not internal/) so that platform
// deployments can import it and compose the full server with their own
// middleware and directory services.
//
// Usage (standalone):
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//
// Usage (embedded):
//
//	srv, err := server.New(ctx)
//	handler := platformAuth.Middleware(srv.Handler)
//	http.ListenAndServe(":8080", handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/internal/api"
	"github.com/megabot/resolution-core/internal/api/handlers"
	"github.com/megabot/resolution-core/internal/config"
	"github.com/megabot/resolution-core/internal/contextualizer"
	"github.com/megabot/resolution-core/internal/directory"
	"github.com/megabot/resolution-core/internal/flowengine"
	"github.com/megabot/resolution-core/internal/processor"
	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/internal/telemetry"
	"github.com/megabot/resolution-core/pkg/contracts"
)

// Server holds the initialized resolution core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (templates, global actions, networks).
	// Exposed so embedding platforms can use it in their own services.
	Store contracts.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all resolution core components from the environment and
// returns a ready Server. This is the primary entry point for main.go and
// embedding platforms alike.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the resolution core with an explicit
// configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Directory: external services when configured, store-backed network
	// registry for local dev.
	var (
		networks contracts.NetworkDirectory
		users    contracts.UserDirectory
		channels contracts.ChannelDirectory
	)
	if cfg.Directory.BaseURL != "" {
		dir := directory.NewHTTPDirectory(cfg.Directory.BaseURL, cfg.Directory.Timeout)
		networks, users, channels = dir, dir, dir
		log.Info().Str("base_url", cfg.Directory.BaseURL).Msg("HTTP directory configured")
	} else {
		networks = directory.NewStoreNetworkService(dataStore)
		log.Info().Msg("Store-backed network registry configured")
	}

	flows := flowengine.NewRouter(cfg.Flow.Timeout, cfg.Flow.MaxHops)
	proc := processor.New(dataStore, flows)
	personalizer := contextualizer.New(cfg.Hook.Timeout)

	log.Info().Int("max_hops", flows.MaxHops()).Msg("Flow engine router initialized")
	log.Info().Msg("Action processor initialized")

	h := handlers.New(dataStore, proc, personalizer, networks, users, channels)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		log.Info().Msg("PostgreSQL store initialized")
		return pg, nil
	}

	log.Info().Msg("In-memory store initialized")
	return store.NewMemoryStore(), nil
}
