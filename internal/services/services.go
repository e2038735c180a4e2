// Package services holds the core business logic: the user directory, the
// event catalog, and the ticket inventory with its resale state machine and
// transaction ledger. Handlers call into these services; all persistence
// goes through the gorm handle each service is constructed with.
package services

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
