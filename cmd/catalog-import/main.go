// Command catalog-import loads a catalog dataset from JSON into the SQLite
// catalog database, replacing its contents in one transaction. A running
// server picks the new catalog up on its next refresh.
//
// Usage:
//
//	catalog-import -file catalog.json [-db data/catalog.db]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/internal/database"
	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	file := flag.String("file", "", "JSON dataset to import (required)")
	dbPath := flag.String("db", "", "catalog database path (defaults to PPA_CATALOG_DB)")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Pretty: true})

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		*dbPath = cfg.CatalogDB
	}

	if err := run(context.Background(), *file, *dbPath, log); err != nil {
		log.Fatal().Err(err).Msg("Catalog import failed")
	}
}

func run(ctx context.Context, file, dbPath string, log zerolog.Logger) error {
	ds, err := readDataset(file)
	if err != nil {
		return err
	}

	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileReadMostly, Name: "catalog"})
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate catalog database: %w", err)
	}

	repo := catalog.NewSQLiteRepository(db.Conn(), log)
	if err := repo.Replace(ctx, ds); err != nil {
		return err
	}
	version, err := repo.Version(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("db", dbPath).
		Str("catalog", version.String()).
		Msg("Catalog imported")
	return nil
}

func readDataset(path string) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds domain.Dataset
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}
	if len(ds.Prices) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", path, catalog.ErrEmptyCatalog)
	}
	return &ds, nil
}
