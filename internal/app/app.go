package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/auth"
	"github.com/fieldlab/arena-server/internal/config"
	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/store"
	"github.com/fieldlab/arena-server/internal/store/sqlite"
	transporthttp "github.com/fieldlab/arena-server/internal/transport/http"
)

// App wires together the core, the roster store, and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	roster          store.RosterStore
	log             *zerolog.Logger
}

// kicker fans a forced disconnect out to both delivery planes.
type kicker struct {
	hubs []*transporthttp.SessionHub
}

func (k kicker) Kick(clientID string) {
	for _, h := range k.hubs {
		h.Kick(clientID)
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	roster, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init roster store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("roster store initialized")

	srv := core.NewServer(cfg.Channel.ACM, logger)
	for game, treatments := range cfg.Games {
		srv.RegisterGame(game, treatments...)
	}

	ch, err := srv.CreateChannel(core.ChannelConfig{
		Name:     cfg.Channel.Name,
		Group:    cfg.Channel.Group,
		MaxRooms: cfg.Channel.MaxRooms,
	}, logger)
	if err != nil {
		roster.Close()
		return nil, fmt.Errorf("create channel: %w", err)
	}

	if _, err := ch.CreateRoom(core.RoomWaiting, core.RoomConfig{Name: cfg.Channel.EntryRoom}); err != nil {
		roster.Close()
		return nil, fmt.Errorf("create entry room: %w", err)
	}
	if err := ch.SetEntryRoom(cfg.Channel.EntryRoom); err != nil {
		roster.Close()
		return nil, fmt.Errorf("set entry room: %w", err)
	}

	if err := importRoster(context.Background(), ch.Registry(), roster, logger); err != nil {
		roster.Close()
		return nil, err
	}

	adminHub := transporthttp.NewSessionHub(true, logger)
	playerHub := transporthttp.NewSessionHub(false, logger)
	ch.BindBuses(adminHub, playerHub)
	ch.BindDisconnector(kicker{hubs: []*transporthttp.SessionHub{adminHub, playerHub}})

	router := core.NewRouter(ch, logger)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(ch.Registry(), roster, jwtConfig)

	server := transporthttp.NewServer(ch, router, authService, adminHub, playerHub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		roster:          roster,
		log:             logger,
	}, nil
}

// importRoster feeds the provisioned slots into the registry. Entries fail
// independently; a bad slot does not block the rest of the roster.
func importRoster(ctx context.Context, registry *core.Registry, roster store.RosterStore, logger *zerolog.Logger) error {
	slots, err := roster.LoadRoster(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	entries := make([]map[string]any, 0, len(slots))
	for _, slot := range slots {
		entry := map[string]any{
			"id":    slot.ID,
			"admin": slot.Admin,
			"valid": slot.Valid,
		}
		if slot.Tag != "" {
			entry["tag"] = slot.Tag
		}
		if slot.TagDate != nil {
			entry["tagDate"] = *slot.TagDate
		}
		entries = append(entries, entry)
	}
	errs := registry.ImportClients(entries)
	imported := 0
	for _, err := range errs {
		if err == nil {
			imported++
		}
	}
	logger.Info().Int("imported", imported).Int("total", len(slots)).Msg("roster imported")
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
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

// cleanup closes the roster store and other resources.
func (a *App) cleanup() {
	if a.roster != nil {
		if err := a.roster.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close roster store")
		} else {
			a.log.Info().Msg("roster store closed")
		}
	}
}
