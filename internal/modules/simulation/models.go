// Package simulation projects demand, revenue and margin under hypothetical
// price changes and delistings.
package simulation

import (
	"context"
	"slices"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
)

// ProjectionProvider hands out the current catalog projection.
type ProjectionProvider interface {
	Projection(ctx context.Context) (*catalog.Projection, error)
}

// PriceRequest is a set of hypothetical price changes. Weeks and Outlets
// restrict the panel when non-empty.
type PriceRequest struct {
	Changes map[domain.SKUID]float64 `json:"changes"`
	Weeks   []int                    `json:"weeks,omitempty"`
	Outlets []domain.OutletID        `json:"outlets,omitempty"`
}

// PriceRow is a panel row with its simulated outcome.
type PriceRow struct {
	catalog.PanelRow
	PctChange   float64 `json:"pct_change" msgpack:"pct_change"`
	NewPrice    float64 `json:"new_price" msgpack:"new_price"`
	OwnFactor   float64 `json:"own_factor" msgpack:"own_factor"`
	CrossImpact float64 `json:"cross_impact" msgpack:"cross_impact"`
	CrossFactor float64 `json:"cross_factor" msgpack:"cross_factor"`
	NewUnits    float64 `json:"new_units" msgpack:"new_units"`
	NewRevenue  float64 `json:"new_revenue" msgpack:"new_revenue"`
	Margin      float64 `json:"margin" msgpack:"margin"`
	BaseRevenue float64 `json:"base_revenue" msgpack:"base_revenue"`
	BaseMargin  float64 `json:"base_margin" msgpack:"base_margin"`
}

// WeeklyAggregate sums one week of simulated and baseline rows.
type WeeklyAggregate struct {
	Week        int     `json:"week" msgpack:"week"`
	Units       float64 `json:"units" msgpack:"units"`
	Revenue     float64 `json:"revenue" msgpack:"revenue"`
	Margin      float64 `json:"margin" msgpack:"margin"`
	BaseUnits   float64 `json:"base_units" msgpack:"base_units"`
	BaseRevenue float64 `json:"base_revenue" msgpack:"base_revenue"`
	BaseMargin  float64 `json:"base_margin" msgpack:"base_margin"`
}

// PriceResult is the outcome of a price simulation.
type PriceResult struct {
	Weekly []WeeklyAggregate `json:"agg" msgpack:"agg"`
	Rows   []PriceRow        `json:"rows" msgpack:"rows"`
	// BrandChanges holds the volume-weighted price change of every brand with
	// at least one changed SKU.
	BrandChanges map[string]float64 `json:"brand_changes" msgpack:"brand_changes"`
}

// DelistRequest lists the SKUs to remove. Weeks restricts the panel when non-empty.
type DelistRequest struct {
	IDs   []domain.SKUID `json:"ids"`
	Weeks []int          `json:"weeks,omitempty"`
}

// DelistRow is a surviving panel row with the volume it picked up.
type DelistRow struct {
	catalog.PanelRow
	NewUnits   float64 `json:"new_units" msgpack:"new_units"`
	VolumeGain float64 `json:"volume_gain" msgpack:"volume_gain"`
}

// DelistResult is the outcome of a delist simulation.
type DelistResult struct {
	Rows []DelistRow `json:"rows" msgpack:"rows"`
	// LostUnits is the volume of the delisted rows.
	LostUnits float64 `json:"lost_units" msgpack:"lost_units"`
	// ReallocatedUnits is the part of LostUnits moved to survivors.
	ReallocatedUnits float64 `json:"reallocated_units" msgpack:"reallocated_units"`
	// DroppedUnits is lost volume with no similar survivor to move to.
	DroppedUnits float64 `json:"dropped_units" msgpack:"dropped_units"`
}

// Weekly sums surviving rows per week. Revenue and margin use the
// survivors' own prices and costs.
func (r *DelistResult) Weekly() []WeeklyAggregate {
	acc := newWeeklyAccumulator()
	for _, row := range r.Rows {
		acc.add(row.Week,
			row.NewUnits, row.NewUnits*row.NetPrice, row.NewUnits*(row.NetPrice-row.UnitCost),
			row.Units, row.Units*row.NetPrice, row.Units*(row.NetPrice-row.UnitCost))
	}
	return acc.result()
}

type weeklyAccumulator struct {
	byWeek map[int]*WeeklyAggregate
	order  []int
}

func newWeeklyAccumulator() *weeklyAccumulator {
	return &weeklyAccumulator{byWeek: make(map[int]*WeeklyAggregate)}
}

func (a *weeklyAccumulator) add(week int, units, revenue, margin, baseUnits, baseRevenue, baseMargin float64) {
	w, ok := a.byWeek[week]
	if !ok {
		w = &WeeklyAggregate{Week: week}
		a.byWeek[week] = w
		a.order = append(a.order, week)
	}
	w.Units += units
	w.Revenue += revenue
	w.Margin += margin
	w.BaseUnits += baseUnits
	w.BaseRevenue += baseRevenue
	w.BaseMargin += baseMargin
}

// result returns the aggregates in week order.
func (a *weeklyAccumulator) result() []WeeklyAggregate {
	out := make([]WeeklyAggregate, 0, len(a.order))
	slices.Sort(a.order)
	for _, w := range a.order {
		out = append(out, *a.byWeek[w])
	}
	return out
}

func weekFilter(weeks []int) func(int) bool {
	if len(weeks) == 0 {
		return func(int) bool { return true }
	}
	set := make(map[int]struct{}, len(weeks))
	for _, w := range weeks {
		set[w] = struct{}{}
	}
	return func(w int) bool {
		_, ok := set[w]
		return ok
	}
}

func outletFilter(outlets []domain.OutletID) func(domain.OutletID) bool {
	if len(outlets) == 0 {
		return func(domain.OutletID) bool { return true }
	}
	set := make(map[domain.OutletID]struct{}, len(outlets))
	for _, o := range outlets {
		set[o] = struct{}{}
	}
	return func(o domain.OutletID) bool {
		_, ok := set[o]
		return ok
	}
}
