package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/pricepack/internal/database"
	"github.com/rs/zerolog"
)

// CheckCatalogDatabaseJob verifies the catalog database is reachable and intact
type CheckCatalogDatabaseJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewCheckCatalogDatabaseJob creates a new CheckCatalogDatabaseJob
func NewCheckCatalogDatabaseJob(db *database.DB, log zerolog.Logger) *CheckCatalogDatabaseJob {
	return &CheckCatalogDatabaseJob{
		log: log.With().Str("job", "check_catalog_database").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *CheckCatalogDatabaseJob) Name() string {
	return "check_catalog_database"
}

// Run executes the check catalog database job
func (j *CheckCatalogDatabaseJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("Database not initialized, skipping")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.QuickCheck(ctx); err != nil {
		return fmt.Errorf("database %s unreachable: %w", j.db.Name(), err)
	}

	// PRAGMA integrity_check returns "ok" for a healthy database
	var result string
	if err := j.db.Conn().QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", j.db.Name(), err)
	}
	if result != "ok" {
		j.log.Error().Str("result", result).Msg("Catalog database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %s", j.db.Name(), result)
	}

	j.log.Debug().Msg("Catalog database integrity OK")
	return nil
}
