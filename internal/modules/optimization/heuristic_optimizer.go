package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HeuristicOptimizer raises prices on inelastic SKUs without a solver:
// elasticity above -0.8 gets half the bound, (-1.2, -0.8] gets 30% of it and
// everything else is left alone. It never proposes a near-bound change.
type HeuristicOptimizer struct {
	projections ProjectionProvider
	maxSKUs     int
	log         zerolog.Logger
}

// NewHeuristicOptimizer creates the solver-free optimizer.
func NewHeuristicOptimizer(projections ProjectionProvider, maxSKUs int, log zerolog.Logger) *HeuristicOptimizer {
	return &HeuristicOptimizer{
		projections: projections,
		maxSKUs:     maxSKUs,
		log:         log.With().Str("component", "optimizer").Str("solver", "heuristic").Logger(),
	}
}

// Name identifies the strategy.
func (o *HeuristicOptimizer) Name() string { return "heuristic" }

// Optimize applies the elasticity bands. The spend budget is recorded but
// cannot bind, since the heuristic only raises prices.
func (o *HeuristicOptimizer) Optimize(ctx context.Context, round int, spendBudget float64) (*Result, error) {
	bound, err := validateRequest(round, spendBudget)
	if err != nil {
		return nil, err
	}
	proj, err := o.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}

	start := time.Now()
	rows := selectSKUs(proj.Baseline, o.maxSKUs)
	pct := make([]float64, len(rows))
	for i, r := range rows {
		pct[i] = HeuristicChange(r.OwnElasticity, bound)
	}

	res := newResult(rows, pct, nil, round, bound, spendBudget, StatusHeuristic)
	res.Solver = o.Name()
	res.Elapsed = time.Since(start)

	o.log.Info().
		Str("run_id", res.RunID).
		Int("round", round).
		Int("skus", len(rows)).
		Float64("margin_delta", res.KPIs.MarginDelta).
		Msg("Heuristic price proposal complete")
	return res, nil
}

// HeuristicChange maps an own elasticity to a price change for bound.
func HeuristicChange(elasticity, bound float64) float64 {
	switch {
	case elasticity > -0.8:
		return 0.5 * bound
	case elasticity > -1.2:
		return 0.3 * bound
	default:
		return 0
	}
}
