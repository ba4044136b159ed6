package simulation

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/rs/zerolog"
)

// activeChangeTol is the smallest price change treated as a change.
const activeChangeTol = 1e-12

// PriceSimulator projects the response of demand to price changes using a
// linear own-elasticity model plus brand-level cross effects.
type PriceSimulator struct {
	projections ProjectionProvider
	log         zerolog.Logger
}

// NewPriceSimulator creates a price simulator over the catalog projection.
func NewPriceSimulator(projections ProjectionProvider, log zerolog.Logger) *PriceSimulator {
	return &PriceSimulator{
		projections: projections,
		log:         log.With().Str("component", "price_simulator").Logger(),
	}
}

// SimulatePriceChange applies req to the recent panel.
func (s *PriceSimulator) SimulatePriceChange(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	start := time.Now()
	proj, err := s.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}

	res := SimulatePrice(proj.Panel, req)

	s.log.Debug().
		Int("changes", len(req.Changes)).
		Int("rows", len(res.Rows)).
		Int("brands_moved", len(res.BrandChanges)).
		Dur("elapsed", time.Since(start)).
		Msg("Price simulation complete")
	return res, nil
}

// SimulatePrice is the pure simulation over a panel. SKUs absent from
// req.Changes keep their price. An empty change set reproduces the baseline.
func SimulatePrice(panel []catalog.PanelRow, req PriceRequest) *PriceResult {
	inWeek := weekFilter(req.Weeks)
	inOutlet := outletFilter(req.Outlets)

	rows := make([]PriceRow, 0, len(panel))
	for _, p := range panel {
		if !inWeek(p.Week) || !inOutlet(p.OutletID) {
			continue
		}
		pct := req.Changes[p.SKUID]
		rows = append(rows, PriceRow{
			PanelRow:  p,
			PctChange: pct,
			NewPrice:  p.NetPrice * (1 + pct),
		})
	}

	brandChanges := brandPriceChanges(rows)

	impacts := make(map[domain.SKUID]float64)
	acc := newWeeklyAccumulator()
	for i := range rows {
		r := &rows[i]

		r.OwnFactor = math.Max(0, 1+r.OwnElasticity*r.PctChange)
		impact, ok := impacts[r.SKUID]
		if !ok {
			impact = crossImpact(r.Brand, r.Cross, brandChanges)
			impacts[r.SKUID] = impact
		}
		r.CrossImpact = impact
		r.CrossFactor = math.Max(0, 1+r.CrossImpact)

		r.NewUnits = r.Units * r.OwnFactor * r.CrossFactor
		r.NewRevenue = r.NewUnits * r.NewPrice
		r.Margin = (r.NewPrice - r.UnitCost) * r.NewUnits
		r.BaseRevenue = r.NetPrice * r.Units
		r.BaseMargin = (r.NetPrice - r.UnitCost) * r.Units

		acc.add(r.Week, r.NewUnits, r.NewRevenue, r.Margin, r.Units, r.BaseRevenue, r.BaseMargin)
	}

	return &PriceResult{
		Weekly:       acc.result(),
		Rows:         rows,
		BrandChanges: brandChanges,
	}
}

// brandPriceChanges returns, per brand, the unit-weighted mean price change
// over rows that were actually changed. A brand whose changed rows carry no
// volume falls back to the plain mean. Brands without a change are absent.
func brandPriceChanges(rows []PriceRow) map[string]float64 {
	type acc struct {
		weighted, weight, sum float64
		n                     int
	}
	byBrand := make(map[string]*acc)
	for _, r := range rows {
		if math.Abs(r.PctChange) <= activeChangeTol {
			continue
		}
		a, ok := byBrand[r.Brand]
		if !ok {
			a = &acc{}
			byBrand[r.Brand] = a
		}
		a.weighted += r.PctChange * r.Units
		a.weight += r.Units
		a.sum += r.PctChange
		a.n++
	}

	out := make(map[string]float64, len(byBrand))
	for brand, a := range byBrand {
		pct := a.sum / float64(a.n)
		if a.weight > 0 {
			pct = a.weighted / a.weight
		}
		if math.Abs(pct) > activeChangeTol && !math.IsNaN(pct) {
			out[brand] = pct
		}
	}
	return out
}

// crossImpact sums the cross elasticities of a SKU against the price moves of
// every other brand. A brand never reacts to its own move here. Brands are
// summed in name order so results are bit-for-bit reproducible.
func crossImpact(brand string, cross map[string]float64, brandChanges map[string]float64) float64 {
	if len(cross) == 0 || len(brandChanges) == 0 {
		return 0
	}
	impact := 0.0
	for _, other := range slices.Sorted(maps.Keys(cross)) {
		if other == brand {
			continue
		}
		if pct, ok := brandChanges[other]; ok {
			impact += cross[other] * pct
		}
	}
	return impact
}
