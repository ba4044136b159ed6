package optimization

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/aristath/pricepack/internal/config"
	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
	testutil "github.com/aristath/pricepack/internal/testing"
	"github.com/aristath/pricepack/pkg/milp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(ds *domain.Dataset) *catalog.Snapshot {
	return catalog.NewSnapshot(catalog.NewMemoryRepository(ds), catalog.DefaultWindow, zerolog.Nop())
}

func byID(res *Result) map[domain.SKUID]SKUResult {
	out := make(map[domain.SKUID]SKUResult, len(res.Rows))
	for _, r := range res.Rows {
		out[r.SKUID] = r
	}
	return out
}

func TestBoundForRound(t *testing.T) {
	b, err := BoundForRound(1)
	require.NoError(t, err)
	assert.Equal(t, 0.20, b)

	b, err = BoundForRound(2)
	require.NoError(t, err)
	assert.Equal(t, 0.40, b)

	_, err = BoundForRound(3)
	assert.ErrorIs(t, err, ErrInvalidRound)
}

func TestNearBoundCap(t *testing.T) {
	assert.Equal(t, 1, NearBoundCap(0))
	assert.Equal(t, 1, NearBoundCap(5))
	assert.Equal(t, 1, NearBoundCap(19))
	assert.Equal(t, 2, NearBoundCap(20))
	assert.Equal(t, 20, NearBoundCap(200))
}

func TestMILPOptimizer_FiveSKURoundOne(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 200, 0.05, 30*time.Second, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 1, 1e6)
	require.NoError(t, err)

	assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status)
	assert.LessOrEqual(t, res.KPIs.NNearBound, 1)
	assert.LessOrEqual(t, res.KPIs.SpendProxy, 1e6+1e-6)
	require.Len(t, res.Rows, 5)

	rows := byID(res)
	// Every SKU but 202 gains margin from a higher price; only one may sit at the bound.
	assert.InDelta(t, 0.20, rows[101].PctChange, 1e-6)
	assert.True(t, rows[101].NearBound)
	for _, id := range []domain.SKUID{102, 103, 201} {
		assert.InDelta(t, 0.18, rows[id].PctChange, 1e-6, "sku %d", id)
		assert.False(t, rows[id].NearBound)
	}
	assert.InDelta(t, 0, rows[202].PctChange, 1e-6)
	for _, r := range res.Rows {
		assert.LessOrEqual(t, r.PctChange, 0.20+1e-9)
		assert.GreaterOrEqual(t, r.PctChange, -0.20-1e-9)
	}

	assert.Equal(t, 1, res.Round)
	assert.Equal(t, "milp", res.Solver)
	assert.NotEmpty(t, res.RunID)
	assert.Greater(t, res.KPIs.MarginDelta, 0.0)
}

func TestMILPOptimizer_DerivedRows(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 200, 0.05, 30*time.Second, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 2, 1e6)
	require.NoError(t, err)

	var rev, margin, revBase float64
	for _, r := range res.Rows {
		assert.InDelta(t, r.P0*(1+r.PctChange), r.NewPrice, 1e-12)
		assert.InDelta(t, r.BaseUnits*(1+r.OwnElasticity*r.PctChange), r.NewUnits, 1e-12)
		assert.InDelta(t, (r.NewPrice-r.UnitCost)*r.NewUnits, r.Margin, 1e-9)
		assert.NotNil(t, r.Guardrail)
		rev += r.Revenue
		margin += r.Margin
		revBase += r.P0 * r.BaseUnits
	}
	assert.InDelta(t, rev, res.KPIs.Rev, 1e-6)
	assert.InDelta(t, margin, res.KPIs.Margin, 1e-6)
	assert.InDelta(t, revBase, res.KPIs.RevBase, 1e-6)
	assert.InDelta(t, res.KPIs.Rev-res.KPIs.RevBase, res.KPIs.RevDelta, 1e-9)
	assert.InDelta(t, res.KPIs.Margin-res.KPIs.MarginBase, res.KPIs.MarginDelta, 1e-9)
	assert.InDelta(t, res.KPIs.Vol-res.KPIs.VolBase, res.KPIs.VolDelta, 1e-9)
}

func elasticCatalog() *domain.Dataset {
	// Very elastic: margin rises when the price falls.
	return testutil.NewCatalogBuilder().
		SKU(1, "Fizz", 330, "cola").
		Cost(1, 2, 0).
		Elasticity(1, -3, nil).
		ObserveWeeks(1, 8, 1, 1, 10, 100).
		Build()
}

func TestMILPOptimizer_SpendBudgetLimitsDecreases(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(elasticCatalog()), 200, 0.05, 10*time.Second, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 1, 50)
	require.NoError(t, err)

	assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status)
	require.Len(t, res.Rows, 1)
	// Spend per unit of decrease is p0·units = 1000.
	assert.InDelta(t, -0.05, res.Rows[0].PctChange, 1e-6)
	assert.InDelta(t, 50, res.KPIs.SpendProxy, 1e-4)
	assert.LessOrEqual(t, res.KPIs.SpendProxy, 50+1e-6)
}

func TestMILPOptimizer_NegativeBudgetIsInfeasible(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(elasticCatalog()), 200, 0.05, 10*time.Second, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 1, -10)
	require.NoError(t, err)

	assert.Equal(t, string(milp.StatusInfeasible), res.KPIs.Status)
	require.Len(t, res.Rows, 1)
	assert.Zero(t, res.Rows[0].PctChange)
	assert.InDelta(t, res.KPIs.MarginBase, res.KPIs.Margin, 1e-9)
}

func TestMILPOptimizer_TimeLimitReturnsCompleteResult(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 200, 0.05, time.Nanosecond, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 1, 1e6)
	require.NoError(t, err)

	assert.Equal(t, string(milp.StatusTimeLimit), res.KPIs.Status)
	assert.Len(t, res.Rows, 5)
	assert.LessOrEqual(t, res.KPIs.NNearBound, 1)
}

func TestMILPOptimizer_MaxSKUsKeepsHighestRevenue(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 2, 0.05, 10*time.Second, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 1, 1e6)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.SKUID(101), res.Rows[0].SKUID)
	assert.Equal(t, domain.SKUID(102), res.Rows[1].SKUID)
}

func TestOptimizers_RejectInvalidRound(t *testing.T) {
	snap := snapshotOf(testutil.FiveSKUCatalog())
	heuristic := NewHeuristicOptimizer(snap, 200, zerolog.Nop())
	opts := []Optimizer{
		NewMILPOptimizer(snap, 200, 0.05, time.Second, zerolog.Nop()),
		heuristic,
		NewFallbackOptimizer(NewMILPOptimizer(snap, 200, 0.05, time.Second, zerolog.Nop()), heuristic, zerolog.Nop()),
	}
	for _, o := range opts {
		_, err := o.Optimize(context.Background(), 0, 1e6)
		assert.ErrorIs(t, err, ErrInvalidRound, o.Name())
	}
}

func TestHeuristicChange(t *testing.T) {
	tests := []struct {
		elasticity float64
		expected   float64
	}{
		{-0.5, 0.10},
		{-0.79, 0.10},
		{-0.8, 0.06},
		{-1.0, 0.06},
		{-1.2, 0},
		{-2.5, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, HeuristicChange(tt.elasticity, 0.20), 1e-12, "elasticity %.2f", tt.elasticity)
	}
}

func TestHeuristicOptimizer_RoundTwo(t *testing.T) {
	opt := NewHeuristicOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 200, zerolog.Nop())

	res, err := opt.Optimize(context.Background(), 2, 1e6)
	require.NoError(t, err)

	assert.Equal(t, StatusHeuristic, res.KPIs.Status)
	assert.Zero(t, res.KPIs.NNearBound)
	assert.Zero(t, res.KPIs.SpendProxy)
	rows := byID(res)
	assert.InDelta(t, 0.20, rows[101].PctChange, 1e-12)
	assert.InDelta(t, 0.12, rows[102].PctChange, 1e-12)
	assert.InDelta(t, 0, rows[103].PctChange, 1e-12)
	assert.InDelta(t, 0.12, rows[201].PctChange, 1e-12)
	assert.InDelta(t, 0, rows[202].PctChange, 1e-12)
}

type stubOptimizer struct {
	name  string
	res   *Result
	err   error
	panic bool
	calls int
}

func (s *stubOptimizer) Name() string { return s.name }

func (s *stubOptimizer) Optimize(context.Context, int, float64) (*Result, error) {
	s.calls++
	if s.panic {
		panic("singular basis")
	}
	return s.res, s.err
}

func TestFallbackOptimizer(t *testing.T) {
	ok := &Result{KPIs: KPIs{Status: "Optimal"}}

	t.Run("primary succeeds", func(t *testing.T) {
		fb := &stubOptimizer{name: "fb", res: &Result{}}
		o := NewFallbackOptimizer(&stubOptimizer{name: "p", res: ok}, fb, zerolog.Nop())
		res, err := o.Optimize(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Same(t, ok, res)
		assert.Zero(t, fb.calls)
		assert.Equal(t, "p+fb", o.Name())
	})

	t.Run("solver failure falls back", func(t *testing.T) {
		primary := &stubOptimizer{name: "p", err: milp.ErrSolverFailure}
		o := NewFallbackOptimizer(primary, &stubOptimizer{name: "fb", res: &Result{KPIs: KPIs{Status: StatusHeuristic}}}, zerolog.Nop())
		res, err := o.Optimize(context.Background(), 2, 0)
		require.NoError(t, err)
		assert.Equal(t, StatusHeuristic, res.KPIs.Status)
		assert.Contains(t, res.FallbackReason, "solver failure")
	})

	t.Run("panic falls back", func(t *testing.T) {
		o := NewFallbackOptimizer(&stubOptimizer{name: "p", panic: true}, &stubOptimizer{name: "fb", res: &Result{}}, zerolog.Nop())
		res, err := o.Optimize(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Contains(t, res.FallbackReason, "singular basis")
	})

	t.Run("both fail", func(t *testing.T) {
		o := NewFallbackOptimizer(
			&stubOptimizer{name: "p", err: milp.ErrSolverFailure},
			&stubOptimizer{name: "fb", err: catalog.ErrEmptyCatalog},
			zerolog.Nop())
		_, err := o.Optimize(context.Background(), 1, 0)
		assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
	})

	t.Run("invalid round is not retried", func(t *testing.T) {
		primary := &stubOptimizer{name: "p", res: ok}
		o := NewFallbackOptimizer(primary, &stubOptimizer{name: "fb"}, zerolog.Nop())
		_, err := o.Optimize(context.Background(), 5, 0)
		assert.ErrorIs(t, err, ErrInvalidRound)
		assert.Zero(t, primary.calls)
	})
}

func TestFallbackOptimizer_EmptyCatalogErrors(t *testing.T) {
	snap := snapshotOf(&domain.Dataset{})
	o := NewOptimizer(config.OptimizerConfig{Solver: config.SolverMILP, MaxSKUs: 10, TimeLimit: time.Second}, snap, zerolog.Nop())

	_, err := o.Optimize(context.Background(), 1, 0)
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}

func TestNewOptimizer_SelectsStrategy(t *testing.T) {
	snap := snapshotOf(testutil.FiveSKUCatalog())
	cfg := config.OptimizerConfig{MaxSKUs: 200, TimeLimit: time.Second, Lambda: 0.05}
	failing := func() error { return milp.ErrNoSolver }
	passing := func() error { return nil }

	cfg.Solver = config.SolverAuto
	assert.IsType(t, &FallbackOptimizer{}, newOptimizer(cfg, snap, passing, zerolog.Nop()))
	assert.IsType(t, &HeuristicOptimizer{}, newOptimizer(cfg, snap, failing, zerolog.Nop()))

	cfg.Solver = config.SolverMILP
	assert.IsType(t, &FallbackOptimizer{}, newOptimizer(cfg, snap, failing, zerolog.Nop()))

	cfg.Solver = config.SolverHeuristic
	assert.IsType(t, &HeuristicOptimizer{}, newOptimizer(cfg, snap, passing, zerolog.Nop()))

}

func TestMILPOptimizer_LargeBudgetsMatchUnconstrained(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(testutil.FiveSKUCatalog()), 200, 0.05, 30*time.Second, zerolog.Nop())

	ref, err := opt.Optimize(context.Background(), 1, 1e6)
	require.NoError(t, err)
	want := byID(ref)

	for _, budget := range []float64{1e8, 1e9, 1e12} {
		res, err := opt.Optimize(context.Background(), 1, budget)
		require.NoError(t, err)
		assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status, "budget %g", budget)
		for id, r := range byID(res) {
			assert.InDelta(t, want[id].PctChange, r.PctChange, 1e-9, "budget %g sku %d", budget, id)
			assert.Equal(t, want[id].NearBound, r.NearBound, "budget %g sku %d", budget, id)
		}
	}
}

func TestNewOptimizer_HugeBudgetSolvesWithoutFallback(t *testing.T) {
	cfg := config.OptimizerConfig{Solver: config.SolverMILP, MaxSKUs: 200, TimeLimit: 30 * time.Second, Lambda: 0.05}
	o := NewOptimizer(cfg, snapshotOf(testutil.FiveSKUCatalog()), zerolog.Nop())

	res, err := o.Optimize(context.Background(), 1, 1e9)
	require.NoError(t, err)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, "milp", res.Solver)
	assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status)
}

func TestOptimizers_RejectNonFiniteBudget(t *testing.T) {
	snap := snapshotOf(testutil.FiveSKUCatalog())
	heuristic := NewHeuristicOptimizer(snap, 200, zerolog.Nop())
	opts := []Optimizer{
		NewMILPOptimizer(snap, 200, 0.05, time.Second, zerolog.Nop()),
		heuristic,
		NewFallbackOptimizer(NewMILPOptimizer(snap, 200, 0.05, time.Second, zerolog.Nop()), heuristic, zerolog.Nop()),
	}
	for _, o := range opts {
		for _, budget := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := o.Optimize(context.Background(), 1, budget)
			assert.ErrorIs(t, err, ErrInvalidBudget, "%s budget %g", o.Name(), budget)
		}
	}
}

// randomCatalog builds n SKUs with prices in [1, 20), unit costs between 30%
// and 90% of price and own elasticities in [-3, -0.3).
func randomCatalog(seed int64, n int) *domain.Dataset {
	rng := rand.New(rand.NewSource(seed))
	b := testutil.NewCatalogBuilder()
	for i := 1; i <= n; i++ {
		id := domain.SKUID(i)
		price := 1 + 19*rng.Float64()
		units := 10 + 490*rng.Float64()
		b.SKU(id, fmt.Sprintf("Brand%d", i%7), 330, "cola").
			Cost(id, price*(0.3+0.6*rng.Float64()), 0).
			Elasticity(id, -3+2.7*rng.Float64(), nil).
			ObserveWeeks(1, 8, 1, id, price, units)
	}
	return b.Build()
}

func baselineOf(r SKUResult) catalog.BaselineRow {
	return catalog.BaselineRow{SKUID: r.SKUID, P0: r.P0, BaseUnits: r.BaseUnits, UnitCost: r.UnitCost, OwnElasticity: r.OwnElasticity}
}

// separableOptimum is the best objective when the spend budget cannot bind:
// every profitable SKU moves 0.9B in its better direction and the cap-many
// most profitable ones move the remaining 0.1B too.
func separableOptimum(rows []SKUResult, bound, lambda float64) float64 {
	var total float64
	var gains []float64
	for _, r := range rows {
		g := math.Abs(marginCoef(baselineOf(r))) - lambda
		if g <= 0 {
			continue
		}
		total += nearBoundThreshold * bound * g
		gains = append(gains, g)
	}
	slices.SortFunc(gains, func(a, b float64) int { return cmp.Compare(b, a) })
	for k := 0; k < len(gains) && k < NearBoundCap(len(rows)); k++ {
		total += (1 - nearBoundThreshold) * bound * gains[k]
	}
	return total
}

func TestMILPOptimizer_RandomCatalogs(t *testing.T) {
	const lambda = 0.05
	budgets := []float64{0, 10, 1e3, 1e6, 1e9, 1e12}

	for _, n := range []int{5, 12, 25, 50, 100, 200} {
		snap := snapshotOf(randomCatalog(int64(n), n))
		cfg := config.OptimizerConfig{Solver: config.SolverMILP, MaxSKUs: 200, TimeLimit: 20 * time.Second, Lambda: lambda}
		o := NewOptimizer(cfg, snap, zerolog.Nop())

		for _, budget := range budgets {
			t.Run(fmt.Sprintf("n=%d/budget=%g", n, budget), func(t *testing.T) {
				res, err := o.Optimize(context.Background(), 1, budget)
				require.NoError(t, err)
				require.Len(t, res.Rows, n)

				assert.Empty(t, res.FallbackReason)
				assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status)
				assert.LessOrEqual(t, res.KPIs.NNearBound, NearBoundCap(n))
				assert.LessOrEqual(t, res.KPIs.SpendProxy, budget+1e-6*math.Max(1, budget))

				var objective, maxSpend float64
				for _, r := range res.Rows {
					assert.LessOrEqual(t, math.Abs(r.PctChange), 0.20+1e-9, "sku %d", r.SKUID)
					objective += marginCoef(baselineOf(r))*r.PctChange - lambda*math.Abs(r.PctChange)
					maxSpend += spendWeight(baselineOf(r)) * 0.20
				}
				if budget >= maxSpend {
					want := separableOptimum(res.Rows, 0.20, lambda)
					assert.InEpsilon(t, want, objective, 1e-5)
				}
			})
		}
	}
}

func TestMILPOptimizer_TwoHundredSKUsSolveToOptimality(t *testing.T) {
	opt := NewMILPOptimizer(snapshotOf(randomCatalog(42, 200)), 200, 0.05, 30*time.Second, zerolog.Nop())

	for _, budget := range []float64{1e3, 1e6} {
		res, err := opt.Optimize(context.Background(), 2, budget)
		require.NoError(t, err)
		assert.Equal(t, string(milp.StatusOptimal), res.KPIs.Status, "budget %g", budget)
		assert.Less(t, res.Elapsed, 10*time.Second, "budget %g", budget)
		assert.LessOrEqual(t, res.KPIs.NNearBound, 20)
	}
}
