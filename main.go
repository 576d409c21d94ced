// main.go
//
// Entry point for the color memory Go server.
// Loads configuration, sets up logging, and runs the HTTP server next to the
// idle-session janitor until SIGINT/SIGTERM.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/colormemory/internal/config"
	"github.com/robalobadob/colormemory/internal/httpserver"
	"github.com/robalobadob/colormemory/internal/store"
	"github.com/robalobadob/colormemory/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore()
	signer := token.NewSigner(cfg.TokenSecret, cfg.TokenTTL)
	srv := httpserver.New(cfg, mem, signer, log.Logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("starting colormemory server")
		return srv.Serve(ctx, ":"+cfg.Port)
	})
	g.Go(func() error {
		janitorLog := log.With().Str("component", "janitor").Logger()
		return store.RunJanitor(ctx, mem, cfg.SessionIdleTTL/2, cfg.SessionIdleTTL, janitorLog)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}
