package di

import (
	"fmt"

	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/internal/scheduler"
	"github.com/rs/zerolog"
)

// checkCatalogDatabaseSchedule runs the integrity check hourly.
const checkCatalogDatabaseSchedule = "0 0 * * * *"

// RegisterJobs creates the scheduler and registers the background jobs
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{
		CatalogRefresh:       scheduler.NewCatalogRefreshJob(container.Snapshot, log),
		CheckCatalogDatabase: scheduler.NewCheckCatalogDatabaseJob(container.CatalogDB, log),
	}

	if err := sched.AddJob(cfg.CatalogRefreshSchedule, instances.CatalogRefresh); err != nil {
		return nil, fmt.Errorf("failed to register catalog refresh job: %w", err)
	}
	if err := sched.AddJob(checkCatalogDatabaseSchedule, instances.CheckCatalogDatabase); err != nil {
		return nil, fmt.Errorf("failed to register catalog database check: %w", err)
	}

	container.Scheduler = sched
	container.Jobs = instances
	return instances, nil
}
