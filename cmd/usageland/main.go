package main

import (
	"errors"
	"os"

	"github.com/dunamismax/usageland/internal/logger"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := newRootCommand(clockwork.NewRealClock()).Execute(); err != nil {
		var logged *loggedError
		if !errors.As(err, &logged) {
			log, _ := logger.New("info", "json", os.Stderr)
			log.Error().Err(err).Msg("usageland failed")
		}
		os.Exit(1)
	}
}
