// Package planning scores candidate plans against the simulators and
// projects per-action impacts.
package planning

import (
	"context"

	"github.com/aristath/pricepack/internal/modules/catalog"
)

// Risk penalty weights. A plan pays NearBoundPenalty per near-bound action
// and ActionPenalty per action of any type.
const (
	NearBoundPenalty = 0.02
	ActionPenalty    = 0.005
)

// NearBoundMagnitude is 90% of the round-1 bound.
const NearBoundMagnitude = 0.9 * 0.20

// ProjectionProvider hands out the current catalog projection.
type ProjectionProvider interface {
	Projection(ctx context.Context) (*catalog.Projection, error)
}

// KPIs are the projected totals of a plan. Units, revenue and margin are the
// weekly means of the price simulation plus those of the delist simulation.
type KPIs struct {
	Units              float64 `json:"units" msgpack:"units"`
	Revenue            float64 `json:"revenue" msgpack:"revenue"`
	Margin             float64 `json:"margin" msgpack:"margin"`
	RiskAdjustedMargin float64 `json:"risk_adjusted_margin" msgpack:"risk_adjusted_margin"`
}

// Diagnostics explain the risk penalty.
type Diagnostics struct {
	NearBoundHits int `json:"near_bound_hits" msgpack:"near_bound_hits"`
	NActions      int `json:"n_actions" msgpack:"n_actions"`
}

// Evaluation is the score of one plan.
type Evaluation struct {
	PlanID      string      `json:"plan_id" msgpack:"plan_id"`
	KPIs        KPIs        `json:"kpis" msgpack:"kpis"`
	Diagnostics Diagnostics `json:"diagnostics" msgpack:"diagnostics"`
}

// Penalty is the fraction of margin a plan gives up for its risk.
func (d Diagnostics) Penalty() float64 {
	return NearBoundPenalty*float64(d.NearBoundHits) + ActionPenalty*float64(d.NActions)
}
