package catalog

import (
	"cmp"
	"slices"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// PanelRow is one (week, outlet, SKU) observation joined with everything the
// simulators need. Cross is shared between rows of the same SKU and must be
// treated as read-only.
type PanelRow struct {
	Week          int                `json:"week" msgpack:"week"`
	OutletID      domain.OutletID    `json:"retailer_id" msgpack:"retailer_id"`
	SKUID         domain.SKUID       `json:"sku_id" msgpack:"sku_id"`
	Brand         string             `json:"brand" msgpack:"brand"`
	PackSizeML    int                `json:"pack_size_ml" msgpack:"pack_size_ml"`
	Flavor        string             `json:"flavor" msgpack:"flavor"`
	NetPrice      float64            `json:"net_price" msgpack:"net_price"`
	Units         float64            `json:"units" msgpack:"units"`
	Revenue       float64            `json:"revenue" msgpack:"revenue"`
	UnitCost      float64            `json:"cost_per_unit" msgpack:"cost_per_unit"`
	OwnElasticity float64            `json:"own_elast" msgpack:"own_elast"`
	Cross         map[string]float64 `json:"-" msgpack:"-"`
}

// BaselineRow aggregates the baseline window into one row per SKU.
type BaselineRow struct {
	SKUID         domain.SKUID      `json:"sku_id" msgpack:"sku_id"`
	Brand         string            `json:"brand" msgpack:"brand"`
	P0            float64           `json:"p0" msgpack:"p0"`
	BaseUnits     float64           `json:"base_units" msgpack:"base_units"`
	UnitCost      float64           `json:"cost_per_unit" msgpack:"cost_per_unit"`
	OwnElasticity float64           `json:"own_elast" msgpack:"own_elast"`
	Guardrail     *domain.Guardrail `json:"guardrail,omitempty" msgpack:"guardrail,omitempty"`
}

// BaseRevenue is p0 times base units.
func (b BaselineRow) BaseRevenue() float64 { return b.P0 * b.BaseUnits }

// Window configures how much history a projection covers.
type Window struct {
	RecentWeeks   int // simulator panel
	BaselineWeeks int // per-SKU baseline
}

// DefaultWindow matches the engine defaults: twelve weeks of panel, eight of baseline.
var DefaultWindow = Window{RecentWeeks: 12, BaselineWeeks: 8}

func (w Window) normalized() Window {
	if w.RecentWeeks <= 0 {
		w.RecentWeeks = DefaultWindow.RecentWeeks
	}
	if w.BaselineWeeks <= 0 {
		w.BaselineWeeks = DefaultWindow.BaselineWeeks
	}
	return w
}

// since is the first week either window needs.
func (w Window) since(latest int) int {
	return latest - max(w.RecentWeeks, w.BaselineWeeks) + 1
}

// Projection is an immutable, derived view of one catalog version.
type Projection struct {
	Version    Version
	LatestWeek int
	Window     Window
	BuiltAt    time.Time

	// Panel is ordered by week, outlet and SKU.
	Panel []PanelRow
	// Baseline is ordered by SKU.
	Baseline []BaselineRow

	skus        map[domain.SKUID]domain.SKU
	baselineIdx map[domain.SKUID]int
}

// SKU returns reference data for id.
func (p *Projection) SKU(id domain.SKUID) (domain.SKU, bool) {
	s, ok := p.skus[id]
	return s, ok
}

// BaselineFor returns the baseline row of id.
func (p *Projection) BaselineFor(id domain.SKUID) (BaselineRow, bool) {
	i, ok := p.baselineIdx[id]
	if !ok {
		return BaselineRow{}, false
	}
	return p.Baseline[i], true
}

type panelKey struct {
	week   int
	outlet domain.OutletID
	sku    domain.SKUID
}

// BuildProjection joins the catalog tables into a Projection. Prices and
// demand pair on (week, outlet, SKU); costs, elasticities and attributes are
// optional per SKU. Own elasticities are normalized here, once.
func BuildProjection(ds *domain.Dataset, latest int, version Version, w Window) *Projection {
	w = w.normalized()
	p := &Projection{
		Version:     version,
		LatestWeek:  latest,
		Window:      w,
		BuiltAt:     time.Now(),
		skus:        make(map[domain.SKUID]domain.SKU, len(ds.SKUs)),
		baselineIdx: make(map[domain.SKUID]int),
	}
	for _, s := range ds.SKUs {
		p.skus[s.ID] = s
	}

	costs := make(map[domain.SKUID]float64, len(ds.Costs))
	for _, c := range ds.Costs {
		costs[c.SKUID] = c.UnitCost()
	}
	elast := make(map[domain.SKUID]domain.ElasticityRecord, len(ds.Elasticities))
	for _, e := range ds.Elasticities {
		elast[e.SKUID] = e
	}
	guards := make(map[domain.SKUID]domain.Guardrail, len(ds.Guardrails))
	for _, g := range ds.Guardrails {
		guards[g.SKUID] = g
	}
	ownElasticity := func(id domain.SKUID) float64 {
		e, ok := elast[id]
		return domain.NormalizeOwnElasticity(e.Own, ok)
	}

	demand := make(map[panelKey]domain.DemandObservation, len(ds.Demand))
	for _, d := range ds.Demand {
		demand[panelKey{d.Week, d.OutletID, d.SKUID}] = d
	}

	recentFrom := latest - w.RecentWeeks + 1
	baseFrom := latest - w.BaselineWeeks + 1

	basePrices := make(map[domain.SKUID][]float64)
	baseUnits := make(map[domain.SKUID][]float64)
	for _, d := range ds.Demand {
		if d.Week >= baseFrom && d.Week <= latest {
			baseUnits[d.SKUID] = append(baseUnits[d.SKUID], d.Units)
		}
	}

	for _, pr := range ds.Prices {
		if pr.Week > latest {
			continue
		}
		if pr.Week >= baseFrom {
			basePrices[pr.SKUID] = append(basePrices[pr.SKUID], pr.NetPrice)
		}
		if pr.Week < recentFrom {
			continue
		}
		d, ok := demand[panelKey{pr.Week, pr.OutletID, pr.SKUID}]
		if !ok {
			continue
		}
		sku := p.skus[pr.SKUID]
		p.Panel = append(p.Panel, PanelRow{
			Week:          pr.Week,
			OutletID:      pr.OutletID,
			SKUID:         pr.SKUID,
			Brand:         sku.Brand,
			PackSizeML:    sku.PackSizeML,
			Flavor:        sku.Flavor,
			NetPrice:      pr.NetPrice,
			Units:         d.Units,
			Revenue:       d.Revenue,
			UnitCost:      costs[pr.SKUID],
			OwnElasticity: ownElasticity(pr.SKUID),
			Cross:         elast[pr.SKUID].Cross,
		})
	}
	slices.SortFunc(p.Panel, func(a, b PanelRow) int {
		if c := cmp.Compare(a.Week, b.Week); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OutletID, b.OutletID); c != 0 {
			return c
		}
		return cmp.Compare(a.SKUID, b.SKUID)
	})

	for id, prices := range basePrices {
		units, ok := baseUnits[id]
		if !ok {
			continue
		}
		row := BaselineRow{
			SKUID:         id,
			Brand:         p.skus[id].Brand,
			P0:            stat.Mean(prices, nil),
			BaseUnits:     stat.Mean(units, nil),
			UnitCost:      costs[id],
			OwnElasticity: ownElasticity(id),
		}
		if g, ok := guards[id]; ok {
			row.Guardrail = &g
		}
		p.Baseline = append(p.Baseline, row)
	}
	slices.SortFunc(p.Baseline, func(a, b BaselineRow) int { return cmp.Compare(a.SKUID, b.SKUID) })
	for i, b := range p.Baseline {
		p.baselineIdx[b.SKUID] = i
	}

	return p
}
