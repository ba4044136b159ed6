package di

import (
	"fmt"

	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/optimization"
	"github.com/aristath/pricepack/internal/modules/planning"
	"github.com/aristath/pricepack/internal/modules/simulation"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the catalog repository
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.CatalogDB == nil {
		return fmt.Errorf("catalog database not initialized")
	}
	container.CatalogRepo = catalog.NewSQLiteRepository(container.CatalogDB.Conn(), log)
	return nil
}

// InitializeServices creates the snapshot and every engine component on top of it
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.CatalogRepo == nil {
		return fmt.Errorf("catalog repository not initialized")
	}

	window := catalog.Window{
		RecentWeeks:   cfg.Engine.RecentWeeks,
		BaselineWeeks: cfg.Engine.BaselineWeeks,
	}
	container.Snapshot = catalog.NewSnapshot(container.CatalogRepo, window, log)

	container.PriceSimulator = simulation.NewPriceSimulator(container.Snapshot, log)
	container.DelistReallocator = simulation.NewDelistReallocator(container.Snapshot, log)
	container.Optimizer = optimization.NewOptimizer(cfg.Optimizer, container.Snapshot, log)
	container.Scorer = planning.NewScorer(container.Snapshot, cfg.Engine.ScorerWorkers, log)

	log.Info().
		Str("optimizer", container.Optimizer.Name()).
		Int("scorer_workers", cfg.Engine.ScorerWorkers).
		Msg("Engine services initialized")
	return nil
}
