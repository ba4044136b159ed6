// Package catalog provides read access to the product catalog and the
// memoized projection the pricing engine works on.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/pricepack/internal/domain"
)

// ErrEmptyCatalog is returned when the catalog holds no price history.
var ErrEmptyCatalog = errors.New("catalog has no price history")

// Source is the read-only catalog the engine consumes.
type Source interface {
	// LatestWeek returns the most recent week with a price observation.
	LatestWeek(ctx context.Context) (int, error)
	SKUs(ctx context.Context) ([]domain.SKU, error)
	// Prices returns price observations with week >= sinceWeek.
	Prices(ctx context.Context, sinceWeek int) ([]domain.PriceObservation, error)
	// Demand returns demand observations with week >= sinceWeek.
	Demand(ctx context.Context, sinceWeek int) ([]domain.DemandObservation, error)
	Costs(ctx context.Context) ([]domain.CostRecord, error)
	Guardrails(ctx context.Context) ([]domain.Guardrail, error)
	Elasticities(ctx context.Context) ([]domain.ElasticityRecord, error)
	// Version fingerprints the current contents so callers can detect regeneration.
	Version(ctx context.Context) (Version, error)
}

// Version identifies one state of the catalog. Two equal versions describe
// the same data as far as the engine is concerned.
type Version struct {
	Generation int64 `json:"generation" msgpack:"generation"`
	LatestWeek int   `json:"latest_week" msgpack:"latest_week"`
	SKUs       int   `json:"skus" msgpack:"skus"`
	PriceRows  int   `json:"price_rows" msgpack:"price_rows"`
	DemandRows int   `json:"demand_rows" msgpack:"demand_rows"`
}

func (v Version) String() string {
	return fmt.Sprintf("gen=%d week=%d skus=%d prices=%d demand=%d",
		v.Generation, v.LatestWeek, v.SKUs, v.PriceRows, v.DemandRows)
}
