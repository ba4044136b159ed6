package simulation

import (
	"context"
	"testing"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	testutil "github.com/aristath/pricepack/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gains(res *DelistResult) map[domain.SKUID]float64 {
	out := make(map[domain.SKUID]float64)
	for _, r := range res.Rows {
		out[r.SKUID] += r.VolumeGain
	}
	return out
}

func TestSimilarity(t *testing.T) {
	base := catalog.PanelRow{Brand: "Fizz", PackSizeML: 330, Flavor: "cola"}
	tests := []struct {
		name     string
		other    catalog.PanelRow
		expected float64
	}{
		{"identical", catalog.PanelRow{Brand: "Fizz", PackSizeML: 330, Flavor: "cola"}, 1.0},
		{"brand and pack", catalog.PanelRow{Brand: "Fizz", PackSizeML: 330, Flavor: "lime"}, 0.9},
		{"brand only", catalog.PanelRow{Brand: "Fizz", PackSizeML: 500, Flavor: "lime"}, 0.6},
		{"pack and flavor", catalog.PanelRow{Brand: "Bolt", PackSizeML: 330, Flavor: "cola"}, 0.4},
		{"nothing", catalog.PanelRow{Brand: "Bolt", PackSizeML: 500, Flavor: "lime"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Similarity(base, tt.other), 1e-12)
		})
	}
}

func TestReallocate_EmptyDelistKeepsEverything(t *testing.T) {
	panel := panelOf(t, testutil.DelistCatalog())

	res := Reallocate(panel, DelistRequest{})

	require.Len(t, res.Rows, len(panel))
	for i, r := range res.Rows {
		assert.Equal(t, panel[i].Units, r.NewUnits)
		assert.Zero(t, r.VolumeGain)
	}
	assert.Zero(t, res.LostUnits)
}

func TestReallocate_TopThreeSimilarSurvivorsShareLostUnits(t *testing.T) {
	panel := panelOf(t, testutil.DelistCatalog())

	res := Reallocate(panel, DelistRequest{IDs: []domain.SKUID{1}})

	require.Len(t, res.Rows, 5)
	for _, r := range res.Rows {
		assert.NotEqual(t, domain.SKUID(1), r.SKUID)
	}

	g := gains(res)
	// Similarities 1.0, 0.9, 0.9 (ties broken by id) weighted by 40, 30 and 20 units.
	total := 1.0*40 + 0.9*30 + 0.9*20
	assert.InDelta(t, 90*40/total, g[2], 1e-9)
	assert.InDelta(t, 90*0.9*30/total, g[3], 1e-9)
	assert.InDelta(t, 90*0.9*20/total, g[4], 1e-9)
	assert.Zero(t, g[5])
	assert.Zero(t, g[6])
	for id := domain.SKUID(2); id <= 4; id++ {
		assert.Greater(t, g[id], 0.0)
	}

	assert.InDelta(t, 90, g[2]+g[3]+g[4], 1e-9)
	assert.InDelta(t, 90, res.LostUnits, 1e-12)
	assert.InDelta(t, 90, res.ReallocatedUnits, 1e-9)
	assert.InDelta(t, 0, res.DroppedUnits, 1e-9)

	for _, r := range res.Rows {
		assert.InDelta(t, r.Units+r.VolumeGain, r.NewUnits, 1e-12)
	}
}

func TestReallocate_FallsBackToSimilarityWithoutVolume(t *testing.T) {
	ds := testutil.NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		SKU(2, "Fizz", 330, "lime").
		SKU(3, "Fizz", 500, "lime").
		Observe(1, 1, 1, 1.0, 30).
		Observe(1, 1, 2, 1.0, 0).
		Observe(1, 1, 3, 1.0, 0).
		Build()

	res := Reallocate(panelOf(t, ds), DelistRequest{IDs: []domain.SKUID{1}})

	g := gains(res)
	assert.InDelta(t, 30*0.9/1.5, g[2], 1e-9)
	assert.InDelta(t, 30*0.6/1.5, g[3], 1e-9)
	assert.InDelta(t, 0, res.DroppedUnits, 1e-9)
}

func TestReallocate_DropsVolumeWithoutSimilarSurvivor(t *testing.T) {
	ds := testutil.NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		SKU(2, "Bolt", 500, "orange").
		Observe(1, 1, 1, 1.0, 25).
		Observe(1, 1, 2, 1.0, 60).
		Build()

	res := Reallocate(panelOf(t, ds), DelistRequest{IDs: []domain.SKUID{1}})

	require.Len(t, res.Rows, 1)
	assert.Zero(t, res.Rows[0].VolumeGain)
	assert.InDelta(t, 25, res.LostUnits, 1e-12)
	assert.InDelta(t, 25, res.DroppedUnits, 1e-12)
	assert.Zero(t, res.ReallocatedUnits)
}

func TestReallocate_StaysWithinWeekAndOutlet(t *testing.T) {
	ds := testutil.NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		SKU(2, "Fizz", 330, "cola").
		Observe(1, 1, 1, 1.0, 10).
		Observe(1, 2, 2, 1.0, 50). // other outlet
		Observe(2, 1, 2, 1.0, 50). // other week
		Build()

	res := Reallocate(panelOf(t, ds), DelistRequest{IDs: []domain.SKUID{1}})

	require.Len(t, res.Rows, 2)
	for _, r := range res.Rows {
		assert.Zero(t, r.VolumeGain)
	}
	assert.InDelta(t, 10, res.DroppedUnits, 1e-12)
}

func TestReallocate_SeveralLostSKUsAccumulate(t *testing.T) {
	ds := testutil.NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		SKU(2, "Fizz", 500, "cola").
		SKU(3, "Fizz", 330, "cola").
		Observe(1, 1, 1, 1.0, 10).
		Observe(1, 1, 2, 1.0, 20).
		Observe(1, 1, 3, 1.0, 5).
		Build()

	res := Reallocate(panelOf(t, ds), DelistRequest{IDs: []domain.SKUID{1, 2}})

	require.Len(t, res.Rows, 1)
	assert.InDelta(t, 30, res.Rows[0].VolumeGain, 1e-9)
	assert.InDelta(t, 35, res.Rows[0].NewUnits, 1e-9)
}

func TestReallocate_WeekFilter(t *testing.T) {
	panel := panelOf(t, testutil.FiveSKUCatalog())

	res := Reallocate(panel, DelistRequest{IDs: []domain.SKUID{101}, Weeks: []int{12}})

	for _, r := range res.Rows {
		assert.Equal(t, 12, r.Week)
	}
	assert.Len(t, res.Rows, 2*4)
}

func TestDelistResult_Weekly(t *testing.T) {
	panel := panelOf(t, testutil.DelistCatalog())
	res := Reallocate(panel, DelistRequest{IDs: []domain.SKUID{1}})

	weekly := res.Weekly()
	require.Len(t, weekly, 1)
	assert.InDelta(t, 170+90, weekly[0].Units, 1e-9)
	assert.InDelta(t, 170, weekly[0].BaseUnits, 1e-9)
	// Every SKU sells at 1.0 with a unit cost of 0.6.
	assert.InDelta(t, 260, weekly[0].Revenue, 1e-9)
	assert.InDelta(t, 260*0.4, weekly[0].Margin, 1e-9)
}

func TestDelistReallocator_UsesSnapshot(t *testing.T) {
	snap := catalog.NewSnapshot(catalog.NewMemoryRepository(testutil.DelistCatalog()), catalog.DefaultWindow, zerolog.Nop())
	d := NewDelistReallocator(snap, zerolog.Nop())

	res, err := d.SimulateDelist(context.Background(), DelistRequest{IDs: []domain.SKUID{1}})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)
	assert.InDelta(t, 90, res.ReallocatedUnits, 1e-9)
}
