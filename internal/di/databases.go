package di

import (
	"fmt"

	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the catalog database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// catalog.db - SKU master, weekly price and demand history, costs, guardrails, elasticities
	catalogDB, err := database.New(database.Config{
		Path:    cfg.CatalogDB,
		Profile: database.ProfileReadMostly,
		Name:    "catalog",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog database: %w", err)
	}
	if err := catalogDB.Migrate(); err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to migrate catalog database: %w", err)
	}
	container.CatalogDB = catalogDB

	log.Info().Str("path", catalogDB.Path()).Msg("Catalog database initialized")
	return container, nil
}
