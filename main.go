package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quickchat/server/internal/command"
	"quickchat/server/internal/config"
	"quickchat/server/internal/feed"
	"quickchat/server/internal/filter"
	"quickchat/server/internal/gate"
	"quickchat/server/internal/httpapi"
	"quickchat/server/internal/identity"
	"quickchat/server/internal/moderation"
	"quickchat/server/internal/ratelimit"
	"quickchat/server/internal/store"
	"quickchat/server/internal/ws"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Offline admin subcommands run against the database and exit.
	if RunCLI(os.Args[1:], cfg.DBPath) {
		return
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("close store")
		}
	}()

	blocklist, err := filter.New(cfg.Blocklist)
	if err != nil {
		log.Fatal().Err(err).Msg("compile blocklist")
	}

	registry := identity.NewRegistry()
	hub := feed.NewHub()
	mod := moderation.NewService(st, hub)
	interp := command.NewInterpreter(mod)
	limiter := ratelimit.NewStoreLimiter(st, cfg.SlowModeWindow)
	g := gate.New(registry, st, mod, interp, blocklist, limiter, hub)

	wsHandler := ws.NewHandler(registry, st, g, hub)
	api := httpapi.New(registry, st, mod, g, wsHandler)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Echo(),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", Version).Str("name", cfg.ServerName).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
