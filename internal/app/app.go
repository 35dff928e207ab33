package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/relay"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-client/internal/transport/http"
)

// App wires together the relay hub, its store and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *relay.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the relay application with provided configuration.
func New(cfg config.Relay, logger *zerolog.Logger) (*App, error) {
	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRelay(reg)

	hub := relay.NewHub(st, logger, m)
	server := transporthttp.NewServer(hub, st, cfg, reg, m, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
