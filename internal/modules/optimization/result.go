package optimization

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/google/uuid"
)

// StatusHeuristic marks results produced without a solver.
const StatusHeuristic = "Heuristic"

// SKUResult is the proposal for one SKU.
type SKUResult struct {
	SKUID         domain.SKUID      `json:"sku_id" msgpack:"sku_id"`
	Brand         string            `json:"brand" msgpack:"brand"`
	P0            float64           `json:"p0" msgpack:"p0"`
	BaseUnits     float64           `json:"base_units" msgpack:"base_units"`
	UnitCost      float64           `json:"cost_per_unit" msgpack:"cost_per_unit"`
	OwnElasticity float64           `json:"own_elast" msgpack:"own_elast"`
	PctChange     float64           `json:"pct_change" msgpack:"pct_change"`
	NearBound     bool              `json:"near_bound" msgpack:"near_bound"`
	NewPrice      float64           `json:"new_price" msgpack:"new_price"`
	NewUnits      float64           `json:"new_units" msgpack:"new_units"`
	Revenue       float64           `json:"revenue" msgpack:"revenue"`
	Margin        float64           `json:"margin" msgpack:"margin"`
	Guardrail     *domain.Guardrail `json:"guardrail,omitempty" msgpack:"guardrail,omitempty"`
}

// KPIs summarizes a proposal against its baseline.
type KPIs struct {
	Status      string  `json:"status" msgpack:"status"`
	NNearBound  int     `json:"n_near_bound" msgpack:"n_near_bound"`
	Rev         float64 `json:"rev" msgpack:"rev"`
	Margin      float64 `json:"margin" msgpack:"margin"`
	Vol         float64 `json:"vol" msgpack:"vol"`
	RevBase     float64 `json:"rev_base" msgpack:"rev_base"`
	MarginBase  float64 `json:"margin_base" msgpack:"margin_base"`
	VolBase     float64 `json:"vol_base" msgpack:"vol_base"`
	RevDelta    float64 `json:"rev_delta" msgpack:"rev_delta"`
	MarginDelta float64 `json:"margin_delta" msgpack:"margin_delta"`
	VolDelta    float64 `json:"vol_delta" msgpack:"vol_delta"`
	// SpendProxy is the estimated cost of price decreases.
	SpendProxy float64 `json:"spend_proxy" msgpack:"spend_proxy"`
}

// Result is one optimizer run.
type Result struct {
	RunID       string        `json:"run_id" msgpack:"run_id"`
	Solver      string        `json:"solver" msgpack:"solver"`
	Round       int           `json:"round" msgpack:"round"`
	Bound       float64       `json:"bound" msgpack:"bound"`
	SpendBudget float64       `json:"spend_budget" msgpack:"spend_budget"`
	Nodes       int           `json:"nodes,omitempty" msgpack:"nodes,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns" msgpack:"elapsed_ns"`
	// FallbackReason is set when the heuristic replaced a failed solver.
	FallbackReason string      `json:"fallback_reason,omitempty" msgpack:"fallback_reason,omitempty"`
	Rows           []SKUResult `json:"solution" msgpack:"solution"`
	KPIs           KPIs        `json:"kpis" msgpack:"kpis"`
}

// selectSKUs keeps the maxSKUs highest-revenue baseline rows, in SKU order.
func selectSKUs(baseline []catalog.BaselineRow, maxSKUs int) []catalog.BaselineRow {
	if maxSKUs <= 0 || len(baseline) <= maxSKUs {
		return baseline
	}
	ranked := slices.Clone(baseline)
	slices.SortStableFunc(ranked, func(a, b catalog.BaselineRow) int {
		return cmp.Compare(b.BaseRevenue(), a.BaseRevenue())
	})
	ranked = ranked[:maxSKUs]
	slices.SortFunc(ranked, func(a, b catalog.BaselineRow) int { return cmp.Compare(a.SKUID, b.SKUID) })
	return ranked
}

// newResult applies per-SKU changes with the own-effect-only linear response
// and fills in the KPI summary.
func newResult(rows []catalog.BaselineRow, pct []float64, nearBound []bool, round int, bound, budget float64, status string) *Result {
	res := &Result{
		RunID:       uuid.NewString(),
		Round:       round,
		Bound:       bound,
		SpendBudget: budget,
		Rows:        make([]SKUResult, len(rows)),
	}
	k := &res.KPIs
	k.Status = status
	for i, b := range rows {
		x := pct[i]
		r := SKUResult{
			SKUID:         b.SKUID,
			Brand:         b.Brand,
			P0:            b.P0,
			BaseUnits:     b.BaseUnits,
			UnitCost:      b.UnitCost,
			OwnElasticity: b.OwnElasticity,
			PctChange:     x,
			NearBound:     nearBound != nil && nearBound[i],
			NewPrice:      b.P0 * (1 + x),
			NewUnits:      b.BaseUnits * (1 + b.OwnElasticity*x),
			Guardrail:     b.Guardrail,
		}
		r.Revenue = r.NewPrice * r.NewUnits
		r.Margin = (r.NewPrice - b.UnitCost) * r.NewUnits
		res.Rows[i] = r

		if r.NearBound {
			k.NNearBound++
		}
		k.Rev += r.Revenue
		k.Margin += r.Margin
		k.Vol += r.NewUnits
		k.RevBase += b.P0 * b.BaseUnits
		k.MarginBase += (b.P0 - b.UnitCost) * b.BaseUnits
		k.VolBase += b.BaseUnits
		k.SpendProxy += spend(b, x)
	}
	k.RevDelta = k.Rev - k.RevBase
	k.MarginDelta = k.Margin - k.MarginBase
	k.VolDelta = k.Vol - k.VolBase
	return res
}

// spend is the budget a price change consumes: p0·(−x)·base_units for
// decreases and nothing for increases.
func spend(b catalog.BaselineRow, x float64) float64 {
	return spendWeight(b) * math.Max(0, -x)
}

// spendWeight is the spend of a full 100% decrease.
func spendWeight(b catalog.BaselineRow) float64 {
	return b.P0 * b.BaseUnits
}

// marginCoef is the first-order sensitivity of margin to a fractional price change.
func marginCoef(b catalog.BaselineRow) float64 {
	return b.BaseUnits * ((b.P0-b.UnitCost)*b.OwnElasticity + b.P0)
}

// isNearBound reports whether x lies within 10% of the bound.
func isNearBound(x, bound float64) bool {
	return math.Abs(x) >= nearBoundThreshold*bound-1e-9
}

const nearBoundThreshold = 0.9
