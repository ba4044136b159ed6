package optimization

import (
	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/pkg/milp"
	"github.com/rs/zerolog"
)

// NewOptimizer selects a strategy from configuration. "heuristic" never
// solves; "milp" always tries the solver first; "auto" probes the solver once
// and uses it only when the probe passes. Solver-backed strategies fall back
// to the heuristic on failure.
func NewOptimizer(cfg config.OptimizerConfig, projections ProjectionProvider, log zerolog.Logger) Optimizer {
	return newOptimizer(cfg, projections, milp.Probe, log)
}

func newOptimizer(cfg config.OptimizerConfig, projections ProjectionProvider, probe func() error, log zerolog.Logger) Optimizer {
	heuristic := NewHeuristicOptimizer(projections, cfg.MaxSKUs, log)
	solver := func() Optimizer {
		return NewFallbackOptimizer(NewMILPOptimizer(projections, cfg.MaxSKUs, cfg.Lambda, cfg.TimeLimit, log), heuristic, log)
	}
	l := log.With().Str("component", "optimizer").Logger()

	switch cfg.Solver {
	case config.SolverHeuristic:
		l.Info().Msg("Using heuristic optimizer")
		return heuristic
	case config.SolverMILP:
		l.Info().Msg("Using MILP optimizer")
		return solver()
	default:
		if err := probe(); err != nil {
			l.Warn().Err(err).Msg("MILP solver unavailable, using heuristic optimizer")
			return heuristic
		}
		l.Info().Msg("MILP solver probe passed")
		return solver()
	}
}
