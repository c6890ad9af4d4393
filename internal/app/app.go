package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mkleene/chime/internal/bus"
	"github.com/mkleene/chime/internal/config"
	"github.com/mkleene/chime/internal/player"
	"github.com/mkleene/chime/internal/session"
	"github.com/mkleene/chime/internal/store"
	"github.com/rs/zerolog"
)

// App wires the session coordinator, playback host, surface server
// and control socket into one daemon process.
type App struct {
	config      *config.Config
	store       *store.Store
	bus         *bus.Bus
	coordinator *session.Coordinator
	host        *player.Controller
	surfaces    *player.SurfaceServer
	panel       *bus.PanelServer
	logger      zerolog.Logger
}

// New assembles the daemon from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "state.db"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	b := bus.New(logger)

	coordinator := session.New(st, b, session.Config{
		DefaultVolume: cfg.DefaultVolume,
		HistoryLimit:  cfg.HistoryLimit,
	}, logger)

	surfaces := player.NewSurfaceServer(cfg.ListenAddr, logger)

	host := player.New(surfaces, b, player.Config{
		RetryInterval:     time.Duration(cfg.RetryIntervalMS) * time.Millisecond,
		HandshakeInterval: time.Duration(cfg.HandshakeIntervalMS) * time.Millisecond,
		DefaultVolume:     cfg.DefaultVolume,
	}, logger)

	panel, err := bus.NewPanelServer(b, cfg.SocketPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open control socket: %w", err)
	}

	return &App{
		config:      cfg,
		store:       st,
		bus:         b,
		coordinator: coordinator,
		host:        host,
		surfaces:    surfaces,
		panel:       panel,
		logger:      logger.With().Str("component", "app").Logger(),
	}, nil
}

// Run starts the daemon and blocks until a shutdown signal is received
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		<-sigChan
		a.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		a.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := a.run(ctx); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// run is the main daemon loop
func (a *App) run(ctx context.Context) error {
	a.logger.Info().Msg("Starting daemon")

	a.coordinator.Attach()
	a.host.Attach(ctx)

	var wg sync.WaitGroup

	// Serve playback surfaces over HTTP
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.surfaces.Start(ctx); err != nil && err != context.Canceled {
			a.logger.Error().Err(err).Msg("Surface server error")
		}
	}()

	// Serve panel connections on the control socket
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.panel.Serve(ctx); err != nil && err != context.Canceled {
			a.logger.Error().Err(err).Msg("Panel server error")
		}
	}()

	wg.Wait()

	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close state store")
	}

	a.logger.Info().Msg("Daemon stopped")
	return nil
}
