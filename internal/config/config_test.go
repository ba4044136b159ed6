package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PPA_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "catalog.db"), cfg.CatalogDB)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 200, cfg.Optimizer.MaxSKUs)
	assert.Equal(t, 300*time.Second, cfg.Optimizer.TimeLimit)
	assert.Equal(t, SolverAuto, cfg.Optimizer.Solver)
	assert.InDelta(t, 0.05, cfg.Optimizer.Lambda, 1e-12)
	assert.Equal(t, 12, cfg.Engine.RecentWeeks)
	assert.Equal(t, 8, cfg.Engine.BaselineWeeks)
	assert.Equal(t, 4, cfg.Engine.ScorerWorkers)
	assert.Equal(t, "@every 1m", cfg.CatalogRefreshSchedule)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PPA_DATA_DIR", t.TempDir())
	t.Setenv("PPA_CATALOG_DB", "/tmp/other.db")
	t.Setenv("PPA_PORT", "9090")
	t.Setenv("OPTIMIZER_SOLVER", "Heuristic")
	t.Setenv("OPTIMIZER_TIME_LIMIT", "5")
	t.Setenv("OPTIMIZER_LAMBDA", "0.1")
	t.Setenv("SCORER_WORKERS", "not-a-number")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.CatalogDB)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, SolverHeuristic, cfg.Optimizer.Solver)
	assert.Equal(t, 5*time.Second, cfg.Optimizer.TimeLimit)
	assert.InDelta(t, 0.1, cfg.Optimizer.Lambda, 1e-12)
	assert.Equal(t, 4, cfg.Engine.ScorerWorkers, "unparseable values fall back to the default")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoad_RejectsUnknownSolver(t *testing.T) {
	t.Setenv("PPA_DATA_DIR", t.TempDir())
	t.Setenv("OPTIMIZER_SOLVER", "cplex")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      8080,
			Optimizer: OptimizerConfig{MaxSKUs: 10, TimeLimit: time.Second, Solver: SolverMILP, Lambda: 0.05},
			Engine:    EngineConfig{RecentWeeks: 12, BaselineWeeks: 8, ScorerWorkers: 2},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"max skus", func(c *Config) { c.Optimizer.MaxSKUs = 0 }},
		{"time limit", func(c *Config) { c.Optimizer.TimeLimit = 0 }},
		{"lambda", func(c *Config) { c.Optimizer.Lambda = -1 }},
		{"weeks", func(c *Config) { c.Engine.BaselineWeeks = 0 }},
		{"workers", func(c *Config) { c.Engine.ScorerWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
