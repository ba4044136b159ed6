package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/aristath/pricepack/internal/domain"
)

// MemoryRepository serves a catalog held in memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	ds         domain.Dataset
	generation int64
}

// NewMemoryRepository wraps ds. The dataset must not be modified afterwards;
// use Replace to swap it.
func NewMemoryRepository(ds *domain.Dataset) *MemoryRepository {
	r := &MemoryRepository{}
	if ds != nil {
		r.ds = *ds
	}
	return r
}

// Replace swaps the dataset and bumps the generation.
func (r *MemoryRepository) Replace(_ context.Context, ds *domain.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ds = *ds
	r.generation++
	return nil
}

func (r *MemoryRepository) LatestWeek(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.ds.Prices) == 0 {
		return 0, ErrEmptyCatalog
	}
	latest := r.ds.Prices[0].Week
	for _, p := range r.ds.Prices[1:] {
		if p.Week > latest {
			latest = p.Week
		}
	}
	return latest, nil
}

func (r *MemoryRepository) SKUs(_ context.Context) ([]domain.SKU, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.SKU(nil), r.ds.SKUs...), nil
}

func (r *MemoryRepository) Prices(_ context.Context, sinceWeek int) ([]domain.PriceObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PriceObservation
	for _, p := range r.ds.Prices {
		if p.Week >= sinceWeek {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Demand(_ context.Context, sinceWeek int) ([]domain.DemandObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.DemandObservation
	for _, d := range r.ds.Demand {
		if d.Week >= sinceWeek {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Costs(_ context.Context) ([]domain.CostRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CostRecord(nil), r.ds.Costs...), nil
}

func (r *MemoryRepository) Guardrails(_ context.Context) ([]domain.Guardrail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Guardrail(nil), r.ds.Guardrails...), nil
}

func (r *MemoryRepository) Elasticities(_ context.Context) ([]domain.ElasticityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ElasticityRecord(nil), r.ds.Elasticities...), nil
}

func (r *MemoryRepository) Version(ctx context.Context) (Version, error) {
	latest, err := r.LatestWeek(ctx)
	if err != nil && !errors.Is(err, ErrEmptyCatalog) {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Version{
		Generation: r.generation,
		LatestWeek: latest,
		SKUs:       len(r.ds.SKUs),
		PriceRows:  len(r.ds.Prices),
		DemandRows: len(r.ds.Demand),
	}, nil
}
