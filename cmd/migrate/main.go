// migrate applies or rolls back the embedded user schema: go run ./cmd/migrate -direction up
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/auth-service/internal/config"
	"github.com/jrsteele09/auth-service/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Read(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if cfg.GetDatabaseURL() == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.Run(ctx, cfg.GetDatabaseURL(), *direction); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migrate")
	}
	log.Info().Str("direction", *direction).Msg("migrations applied")
}
