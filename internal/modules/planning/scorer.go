package planning

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/simulation"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Scorer evaluates plans. Every call works on a single projection, so all
// plans of a batch are scored against the same catalog version.
type Scorer struct {
	projections ProjectionProvider
	pool        *WorkerPool
	log         zerolog.Logger
}

// NewScorer creates a plan scorer running batches on workers goroutines.
func NewScorer(projections ProjectionProvider, workers int, log zerolog.Logger) *Scorer {
	return &Scorer{
		projections: projections,
		pool:        NewWorkerPool(workers),
		log:         log.With().Str("component", "plan_scorer").Logger(),
	}
}

// EvaluatePlan scores one plan.
func (s *Scorer) EvaluatePlan(ctx context.Context, plan domain.Plan) (*Evaluation, error) {
	proj, err := s.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}
	eval := Evaluate(proj, plan)
	s.log.Debug().
		Str("plan_id", plan.ID).
		Int("actions", eval.Diagnostics.NActions).
		Float64("risk_adjusted_margin", eval.KPIs.RiskAdjustedMargin).
		Msg("Plan evaluated")
	return &eval, nil
}

// EvaluateBatch scores plans concurrently. Results keep the input order.
func (s *Scorer) EvaluateBatch(ctx context.Context, plans []domain.Plan) ([]Evaluation, error) {
	if len(plans) == 0 {
		return []Evaluation{}, nil
	}
	proj, err := s.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}

	start := time.Now()
	evals, err := s.pool.EvaluateBatch(ctx, proj, plans)
	if err != nil {
		return nil, fmt.Errorf("plan batch interrupted: %w", err)
	}
	s.log.Info().
		Int("plans", len(plans)).
		Str("catalog", proj.Version.String()).
		Dur("elapsed", time.Since(start)).
		Msg("Plan batch evaluated")
	return evals, nil
}

// PickBest returns the index of the plan with the highest risk-adjusted
// margin, or -1 when plans is empty. The first plan wins a tie.
func (s *Scorer) PickBest(ctx context.Context, plans []domain.Plan) (int, []Evaluation, error) {
	evals, err := s.EvaluateBatch(ctx, plans)
	if err != nil {
		return -1, nil, err
	}
	return BestIndex(evals), evals, nil
}

// BestIndex is the argmax of risk-adjusted margin. NaN scores never win.
func BestIndex(evals []Evaluation) int {
	best := -1
	for i, e := range evals {
		score := e.KPIs.RiskAdjustedMargin
		if math.IsNaN(score) {
			continue
		}
		if best < 0 || score > evals[best].KPIs.RiskAdjustedMargin {
			best = i
		}
	}
	return best
}

// Evaluate scores plan against proj.
//
// Price changes are merged into one change set where a later action on the
// same SKU overrides an earlier one, then simulated together. Delist targets
// are simulated together. An action counts as near-bound when its magnitude
// reaches NearBoundMagnitude and it has at least one target. Action types the
// engine does not model only add to the action count.
func Evaluate(proj *catalog.Projection, plan domain.Plan) Evaluation {
	changes := make(map[domain.SKUID]float64)
	var delists []domain.SKUID
	diag := Diagnostics{NActions: len(plan.Actions)}

	for _, a := range plan.Actions {
		switch a.Type {
		case domain.ActionPriceChange:
			for _, id := range a.Targets {
				changes[id] = a.MagnitudePct
			}
			if len(a.Targets) > 0 && math.Abs(a.MagnitudePct) >= NearBoundMagnitude {
				diag.NearBoundHits++
			}
		case domain.ActionDelist:
			delists = append(delists, a.Targets...)
		}
	}

	var kpis KPIs
	if len(changes) > 0 {
		res := simulation.SimulatePrice(proj.Panel, simulation.PriceRequest{Changes: changes})
		addWeeklyMeans(&kpis, res.Weekly)
	}
	if len(delists) > 0 {
		res := simulation.Reallocate(proj.Panel, simulation.DelistRequest{IDs: delists})
		addWeeklyMeans(&kpis, res.Weekly())
	}
	kpis.RiskAdjustedMargin = RiskAdjust(kpis.Margin, diag.Penalty())

	return Evaluation{PlanID: plan.ID, KPIs: kpis, Diagnostics: diag}
}

// RiskAdjust discounts margin by penalty. The discount is taken on the
// magnitude, so a negative margin gets worse rather than better.
func RiskAdjust(margin, penalty float64) float64 {
	return margin - math.Abs(margin)*math.Max(0, penalty)
}

func addWeeklyMeans(k *KPIs, weekly []simulation.WeeklyAggregate) {
	if len(weekly) == 0 {
		return
	}
	units := make([]float64, len(weekly))
	revenue := make([]float64, len(weekly))
	margin := make([]float64, len(weekly))
	for i, w := range weekly {
		units[i] = w.Units
		revenue[i] = w.Revenue
		margin[i] = w.Margin
	}
	k.Units += stat.Mean(units, nil)
	k.Revenue += stat.Mean(revenue, nil)
	k.Margin += stat.Mean(margin, nil)
}
