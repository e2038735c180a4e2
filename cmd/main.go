package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ticketi/ticketi/internal/server"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(".env"); err != nil {
		logger.Warn().Msg("no .env file found, relying on environment")
	}

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server failed to start")
	}
}
