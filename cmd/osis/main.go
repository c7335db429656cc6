package main

import (
	"os"

	"github.com/osis-edu/osis/internal/bootstrap"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

func main() {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	dbPool, err := bootstrap.SetupDatabase(cfg, lgr)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to set up database")
		os.Exit(1)
	}
	defer dbPool.Close()

	if _, err := bootstrap.BuildDependencies(cfg, dbPool, lgr); err != nil {
		lgr.Error().Err(err).Msg("Failed to build dependencies")
		os.Exit(1)
	}

	lgr.Info().Msg("Catalog core initialized; schema migrated and default data seeded.")
}
