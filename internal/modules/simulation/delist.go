package simulation

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// Similarity weights and the number of survivors that absorb a delisted SKU.
const (
	brandMatchWeight  = 0.6
	packMatchWeight   = 0.3
	flavorMatchWeight = 0.1
	substitutesPerSKU = 3
)

// DelistReallocator projects the effect of removing SKUs, moving their
// volume to the most similar survivors in the same week and outlet.
type DelistReallocator struct {
	projections ProjectionProvider
	log         zerolog.Logger
}

// NewDelistReallocator creates a delist simulator over the catalog projection.
func NewDelistReallocator(projections ProjectionProvider, log zerolog.Logger) *DelistReallocator {
	return &DelistReallocator{
		projections: projections,
		log:         log.With().Str("component", "delist_reallocator").Logger(),
	}
}

// SimulateDelist removes req.IDs from the recent panel and reallocates their volume.
func (d *DelistReallocator) SimulateDelist(ctx context.Context, req DelistRequest) (*DelistResult, error) {
	start := time.Now()
	proj, err := d.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}

	res := Reallocate(proj.Panel, req)

	ev := d.log.Debug()
	if res.DroppedUnits > 0 {
		ev = d.log.Info()
	}
	ev.Int("delisted", len(req.IDs)).
		Int("survivor_rows", len(res.Rows)).
		Float64("lost_units", res.LostUnits).
		Float64("dropped_units", res.DroppedUnits).
		Dur("elapsed", time.Since(start)).
		Msg("Delist simulation complete")
	return res, nil
}

// Similarity scores how well keep substitutes for lost: brand match 0.6,
// pack size match 0.3 and flavor match 0.1.
func Similarity(lost, keep catalog.PanelRow) float64 {
	sim := 0.0
	if lost.Brand == keep.Brand {
		sim += brandMatchWeight
	}
	if lost.PackSizeML == keep.PackSizeML {
		sim += packMatchWeight
	}
	if lost.Flavor == keep.Flavor {
		sim += flavorMatchWeight
	}
	return sim
}

// Reallocate is the pure delist simulation over a panel ordered by week and
// outlet. Delisted rows are removed. Within each (week, outlet) cell every lost
// SKU spreads its units over its three most similar survivors, weighted by
// similarity times survivor volume, or by similarity alone when no candidate
// has volume. Volume with no similar survivor is dropped and reported.
func Reallocate(panel []catalog.PanelRow, req DelistRequest) *DelistResult {
	delisted := make(map[domain.SKUID]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		delisted[id] = struct{}{}
	}
	inWeek := weekFilter(req.Weeks)

	res := &DelistResult{Rows: make([]DelistRow, 0, len(panel))}
	for start := 0; start < len(panel); {
		end := start + 1
		for end < len(panel) && sameCell(panel[start], panel[end]) {
			end++
		}
		if inWeek(panel[start].Week) {
			reallocateCell(panel[start:end], delisted, res)
		}
		start = end
	}
	return res
}

func sameCell(a, b catalog.PanelRow) bool {
	return a.Week == b.Week && a.OutletID == b.OutletID
}

// reallocateCell appends the survivors of one (week, outlet) cell to res and
// spreads the delisted volume over them.
func reallocateCell(cell []catalog.PanelRow, delisted map[domain.SKUID]struct{}, res *DelistResult) {
	first := len(res.Rows)
	var lost []catalog.PanelRow
	for _, p := range cell {
		if _, gone := delisted[p.SKUID]; gone {
			lost = append(lost, p)
			continue
		}
		res.Rows = append(res.Rows, DelistRow{PanelRow: p, NewUnits: p.Units})
	}

	survivors := res.Rows[first:]
	for _, l := range lost {
		moved := allocate(l, survivors)
		res.LostUnits += l.Units
		res.ReallocatedUnits += moved
		res.DroppedUnits += l.Units - moved
	}
}

type candidate struct {
	idx int
	sim float64
}

// allocate moves lost units onto the survivors of one cell and returns the
// amount moved.
func allocate(lost catalog.PanelRow, cell []DelistRow) float64 {
	if len(cell) == 0 {
		return 0
	}
	cands := make([]candidate, len(cell))
	for i, k := range cell {
		cands[i] = candidate{idx: i, sim: Similarity(lost, k.PanelRow)}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(b.sim, a.sim); c != 0 {
			return c
		}
		return cmp.Compare(cell[a.idx].SKUID, cell[b.idx].SKUID)
	})
	if len(cands) > substitutesPerSKU {
		cands = cands[:substitutesPerSKU]
	}

	weights := make([]float64, len(cands))
	for i, c := range cands {
		weights[i] = c.sim * math.Max(0, cell[c.idx].Units)
	}
	total := floats.Sum(weights)
	if total <= 0 {
		for i, c := range cands {
			weights[i] = math.Max(0, c.sim)
		}
		total = floats.Sum(weights)
	}
	if total <= 0 {
		return 0
	}

	moved := 0.0
	for i, c := range cands {
		share := lost.Units * weights[i] / total
		cell[c.idx].VolumeGain += share
		cell[c.idx].NewUnits += share
		moved += share
	}
	return moved
}
