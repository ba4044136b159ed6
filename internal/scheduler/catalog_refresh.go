package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CatalogRefresher detects catalog changes and drops stale projections.
type CatalogRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// CatalogRefreshJob invalidates the cached projection whenever the catalog
// behind it has been regenerated.
type CatalogRefreshJob struct {
	log       zerolog.Logger
	refresher CatalogRefresher
	timeout   time.Duration
}

// NewCatalogRefreshJob creates a new CatalogRefreshJob
func NewCatalogRefreshJob(refresher CatalogRefresher, log zerolog.Logger) *CatalogRefreshJob {
	return &CatalogRefreshJob{
		log:       log.With().Str("job", "catalog_refresh").Logger(),
		refresher: refresher,
		timeout:   30 * time.Second,
	}
}

// Name returns the job name
func (j *CatalogRefreshJob) Name() string {
	return "catalog_refresh"
}

// Run executes the catalog refresh job
func (j *CatalogRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	changed, err := j.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh failed: %w", err)
	}
	if changed {
		j.log.Info().Msg("Catalog changed, projection invalidated")
	}
	return nil
}
