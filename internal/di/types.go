// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/pricepack/internal/database"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/optimization"
	"github.com/aristath/pricepack/internal/modules/planning"
	"github.com/aristath/pricepack/internal/modules/simulation"
	"github.com/aristath/pricepack/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Databases
	CatalogDB *database.DB

	// Repositories
	CatalogRepo *catalog.SQLiteRepository

	// Services
	Snapshot          *catalog.Snapshot
	PriceSimulator    *simulation.PriceSimulator
	DelistReallocator *simulation.DelistReallocator
	Optimizer         optimization.Optimizer
	Scorer            *planning.Scorer

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	CatalogRefresh       scheduler.Job
	CheckCatalogDatabase scheduler.Job
}

// Close releases the databases held by the container.
func (c *Container) Close() error {
	if c.CatalogDB != nil {
		return c.CatalogDB.Close()
	}
	return nil
}
