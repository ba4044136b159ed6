// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Solver selection modes for the price optimizer.
const (
	SolverAuto      = "auto"
	SolverMILP      = "milp"
	SolverHeuristic = "heuristic"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the catalog database (always absolute)
	CatalogDB string // Path of the SQLite catalog (defaults to DataDir/catalog.db)
	LogLevel  string
	Port      int
	DevMode   bool
	Optimizer OptimizerConfig
	Engine    EngineConfig
	// Cron spec for catalog change detection; empty disables the job
	CatalogRefreshSchedule string
	CORSOrigins            []string
}

// OptimizerConfig holds price optimizer settings
type OptimizerConfig struct {
	MaxSKUs   int           // Keep only the highest-revenue SKUs above this count
	TimeLimit time.Duration // Wall-clock limit for one MILP solve
	Solver    string        // auto, milp or heuristic
	Lambda    float64       // Penalty on absolute price moves
}

// EngineConfig holds the windows used by the simulators and the scorer
type EngineConfig struct {
	RecentWeeks   int // Weeks of history the simulators work on
	BaselineWeeks int // Weeks averaged into the per-SKU baseline
	ScorerWorkers int // Concurrent plan evaluations
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PPA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	catalogDB := getEnv("PPA_CATALOG_DB", filepath.Join(absDataDir, "catalog.db"))

	cfg := &Config{
		DataDir:   absDataDir,
		CatalogDB: catalogDB,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Port:      getEnvAsInt("PPA_PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Optimizer: OptimizerConfig{
			MaxSKUs:   getEnvAsInt("OPTIMIZER_MAX_SKUS", 200),
			TimeLimit: time.Duration(getEnvAsInt("OPTIMIZER_TIME_LIMIT", 300)) * time.Second,
			Solver:    strings.ToLower(getEnv("OPTIMIZER_SOLVER", SolverAuto)),
			Lambda:    getEnvAsFloat("OPTIMIZER_LAMBDA", 0.05),
		},
		Engine: EngineConfig{
			RecentWeeks:   getEnvAsInt("SIM_RECENT_WEEKS", 12),
			BaselineWeeks: getEnvAsInt("BASELINE_WEEKS", 8),
			ScorerWorkers: getEnvAsInt("SCORER_WORKERS", 4),
		},
		CatalogRefreshSchedule: getEnv("CATALOG_REFRESH_SCHEDULE", "@every 1m"),
		CORSOrigins:            splitList(getEnv("CORS_ORIGINS", "*")),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Optimizer.Solver {
	case SolverAuto, SolverMILP, SolverHeuristic:
	default:
		return fmt.Errorf("invalid OPTIMIZER_SOLVER %q (want auto, milp or heuristic)", c.Optimizer.Solver)
	}
	if c.Optimizer.MaxSKUs <= 0 {
		return fmt.Errorf("OPTIMIZER_MAX_SKUS must be positive, got %d", c.Optimizer.MaxSKUs)
	}
	if c.Optimizer.TimeLimit <= 0 {
		return fmt.Errorf("OPTIMIZER_TIME_LIMIT must be positive, got %s", c.Optimizer.TimeLimit)
	}
	if c.Optimizer.Lambda < 0 {
		return fmt.Errorf("OPTIMIZER_LAMBDA must not be negative, got %g", c.Optimizer.Lambda)
	}
	if c.Engine.RecentWeeks <= 0 || c.Engine.BaselineWeeks <= 0 {
		return fmt.Errorf("SIM_RECENT_WEEKS and BASELINE_WEEKS must be positive")
	}
	if c.Engine.ScorerWorkers <= 0 {
		return fmt.Errorf("SCORER_WORKERS must be positive, got %d", c.Engine.ScorerWorkers)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
