package testing

import (
	"github.com/aristath/pricepack/internal/domain"
)

// CatalogBuilder assembles a domain.Dataset for tests.
type CatalogBuilder struct {
	ds domain.Dataset
}

// NewCatalogBuilder returns an empty builder.
func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{}
}

// SKU adds reference data for one SKU.
func (b *CatalogBuilder) SKU(id domain.SKUID, brand string, packSizeML int, flavor string) *CatalogBuilder {
	b.ds.SKUs = append(b.ds.SKUs, domain.SKU{
		ID:         id,
		Brand:      brand,
		PackSizeML: packSizeML,
		PackType:   "can",
		Tier:       "mainstream",
		Flavor:     flavor,
	})
	return b
}

// Cost sets the unit cost of a SKU.
func (b *CatalogBuilder) Cost(id domain.SKUID, cogs, logistics float64) *CatalogBuilder {
	b.ds.Costs = append(b.ds.Costs, domain.CostRecord{SKUID: id, COGSPerUnit: cogs, LogisticsPerUnit: logistics})
	return b
}

// Elasticity sets the own and cross elasticities of a SKU. cross may be nil.
func (b *CatalogBuilder) Elasticity(id domain.SKUID, own float64, cross map[string]float64) *CatalogBuilder {
	b.ds.Elasticities = append(b.ds.Elasticities, domain.ElasticityRecord{SKUID: id, Own: own, Cross: cross})
	return b
}

// Guardrail adds pricing bounds for a SKU.
func (b *CatalogBuilder) Guardrail(id domain.SKUID, minPrice, maxPrice, maxPct float64) *CatalogBuilder {
	b.ds.Guardrails = append(b.ds.Guardrails, domain.Guardrail{
		SKUID:        id,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		MaxPctChange: maxPct,
	})
	return b
}

// Observe adds a paired price and demand observation.
func (b *CatalogBuilder) Observe(week int, outlet domain.OutletID, id domain.SKUID, price, units float64) *CatalogBuilder {
	b.ds.Prices = append(b.ds.Prices, domain.PriceObservation{
		Week:      week,
		OutletID:  outlet,
		SKUID:     id,
		NetPrice:  price,
		ListPrice: price,
	})
	b.ds.Demand = append(b.ds.Demand, domain.DemandObservation{
		Week:     week,
		OutletID: outlet,
		SKUID:    id,
		Units:    units,
		Revenue:  price * units,
	})
	return b
}

// ObserveWeeks adds the same observation for every week in [from, to].
func (b *CatalogBuilder) ObserveWeeks(from, to int, outlet domain.OutletID, id domain.SKUID, price, units float64) *CatalogBuilder {
	for w := from; w <= to; w++ {
		b.Observe(w, outlet, id, price, units)
	}
	return b
}

// Build returns the assembled dataset.
func (b *CatalogBuilder) Build() *domain.Dataset {
	ds := b.ds
	return &ds
}

// SingleSKUCatalog is one SKU at one outlet over twelve weeks:
// price 10, 100 units, unit cost 6, own elasticity -1.
func SingleSKUCatalog() *domain.Dataset {
	return NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		Cost(1, 5, 1).
		Elasticity(1, -1.0, nil).
		Guardrail(1, 8, 12, 0.2).
		ObserveWeeks(1, 12, 1, 1, 10, 100).
		Build()
}

// FiveSKUCatalog is a small two-brand catalog at two outlets over twelve weeks.
func FiveSKUCatalog() *domain.Dataset {
	b := NewCatalogBuilder().
		SKU(101, "Fizz", 330, "cola").
		SKU(102, "Fizz", 500, "cola").
		SKU(103, "Fizz", 330, "lemon").
		SKU(201, "Bolt", 330, "cola").
		SKU(202, "Bolt", 500, "orange")

	type skuDef struct {
		id          domain.SKUID
		price       float64
		units       float64
		cogs        float64
		own         float64
		competitors map[string]float64
	}
	defs := []skuDef{
		{101, 1.20, 400, 0.55, -0.6, map[string]float64{"Bolt": 0.3}},
		{102, 1.80, 250, 0.80, -1.0, map[string]float64{"Bolt": 0.2}},
		{103, 1.20, 150, 0.60, -1.5, map[string]float64{"Bolt": 0.1}},
		{201, 1.10, 350, 0.50, -1.1, map[string]float64{"Fizz": 0.25}},
		{202, 1.70, 120, 0.75, -2.0, map[string]float64{"Fizz": 0.15}},
	}
	for _, s := range defs {
		b.Cost(s.id, s.cogs, 0.1).
			Elasticity(s.id, s.own, s.competitors).
			Guardrail(s.id, s.price*0.8, s.price*1.2, 0.2)
		for outlet := domain.OutletID(1); outlet <= 2; outlet++ {
			b.ObserveWeeks(1, 12, outlet, s.id, s.price, s.units*float64(outlet))
		}
	}
	return b.Build()
}

// DelistCatalog is one SKU (1) that shares brand and pack size with four
// survivors (2-5), plus an unrelated SKU (6), all at one outlet in week 1.
func DelistCatalog() *domain.Dataset {
	b := NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		SKU(2, "Fizz", 330, "cola").
		SKU(3, "Fizz", 330, "lemon").
		SKU(4, "Fizz", 330, "cherry").
		SKU(5, "Fizz", 330, "lime").
		SKU(6, "Bolt", 500, "orange")
	units := map[domain.SKUID]float64{1: 90, 2: 40, 3: 30, 4: 20, 5: 10, 6: 70}
	for id := domain.SKUID(1); id <= 6; id++ {
		b.Cost(id, 0.5, 0.1).Observe(1, 1, id, 1.0, units[id])
	}
	return b.Build()
}
