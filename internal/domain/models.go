// Package domain provides the catalog and planning models shared by the engine.
package domain

import "math"

const (
	// DefaultOwnElasticity replaces missing or degenerate own-price elasticities.
	DefaultOwnElasticity = -1.0
	// DegenerateElasticityTol is the magnitude below which an elasticity is treated as missing.
	DegenerateElasticityTol = 1e-4
)

// SKU is immutable product reference data.
type SKU struct {
	ID         SKUID  `json:"sku_id"`
	Brand      string `json:"brand"`
	PackSizeML int    `json:"pack_size_ml"`
	PackType   string `json:"pack_type"`
	Tier       string `json:"tier"`
	Flavor     string `json:"flavor"`
	SugarFree  bool   `json:"sugar_free"`
}

// PriceObservation is the weekly price of a SKU at one outlet.
type PriceObservation struct {
	Week          int      `json:"week"`
	OutletID      OutletID `json:"retailer_id"`
	SKUID         SKUID    `json:"sku_id"`
	NetPrice      float64  `json:"net_price"`
	ListPrice     float64  `json:"list_price"`
	PromoFlag     bool     `json:"promo_flag"`
	PromoDepth    float64  `json:"promo_depth"`
	DiscountSpend float64  `json:"discount_spend"`
}

// DemandObservation is the weekly sell-out of a SKU at one outlet.
// It pairs 1:1 with a PriceObservation on (Week, OutletID, SKUID).
type DemandObservation struct {
	Week     int      `json:"week"`
	OutletID OutletID `json:"retailer_id"`
	SKUID    SKUID    `json:"sku_id"`
	Units    float64  `json:"units"`
	Revenue  float64  `json:"revenue"`
}

// CostRecord is the per-unit cost of a SKU.
type CostRecord struct {
	SKUID            SKUID   `json:"sku_id"`
	COGSPerUnit      float64 `json:"cogs_per_unit"`
	LogisticsPerUnit float64 `json:"logistics_per_unit"`
}

// UnitCost is goods plus logistics.
func (c CostRecord) UnitCost() float64 {
	return c.COGSPerUnit + c.LogisticsPerUnit
}

// Guardrail holds per-SKU pricing policy bounds. The optimizer reports them
// alongside its proposals but does not enforce them.
type Guardrail struct {
	SKUID         SKUID   `json:"sku_id"`
	MinPrice      float64 `json:"min_price"`
	MaxPrice      float64 `json:"max_price"`
	MaxPctChange  float64 `json:"max_pct_change"`
	MinShelfShare float64 `json:"min_shelf_share"`
	MustStock     bool    `json:"must_stock_flag"`
}

// ElasticityRecord holds the own-price elasticity of a SKU and its
// cross-price elasticities keyed by competing brand.
type ElasticityRecord struct {
	SKUID SKUID              `json:"sku_id"`
	Own   float64            `json:"own_elast"`
	Cross map[string]float64 `json:"cross_elast"`
}

// NormalizeOwnElasticity returns e, or DefaultOwnElasticity when e is missing,
// not a number, or too close to zero to make demand respond to price.
func NormalizeOwnElasticity(e float64, ok bool) float64 {
	if !ok || math.IsNaN(e) || math.IsInf(e, 0) || math.Abs(e) < DegenerateElasticityTol {
		return DefaultOwnElasticity
	}
	return e
}

// Dataset is a complete catalog: the five logical tables plus SKU reference data.
type Dataset struct {
	SKUs         []SKU               `json:"sku_master"`
	Prices       []PriceObservation  `json:"price_weekly"`
	Demand       []DemandObservation `json:"demand_weekly"`
	Costs        []CostRecord        `json:"costs"`
	Guardrails   []Guardrail         `json:"guardrails"`
	Elasticities []ElasticityRecord  `json:"elasticities"`
}
