package milp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	require.NoError(t, Probe())
}

func TestSolve_BinaryKnapsack(t *testing.T) {
	p := NewProblem("knapsack", Maximize)
	values := []float64{8, 11, 6, 4}
	weights := []float64{5, 7, 4, 3}

	terms := make([]Term, len(values))
	for i := range values {
		v := p.AddBinary("item")
		p.SetObjective(v, values[i])
		terms[i] = Term{Var: v, Coef: weights[i]}
	}
	p.AddConstraint("capacity", terms, LessEq, 14)

	sol, err := NewSolver(10 * time.Second).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 21.0, sol.Objective, 1e-6)
	assert.InDeltaSlice(t, []float64{0, 1, 1, 1}, sol.X, 1e-6)
	assert.Greater(t, sol.Nodes, 1, "relaxation is fractional so the search must branch")
}

func TestSolve_ContinuousLP(t *testing.T) {
	// maximize 3x + 2y  s.t. x + y <= 4, x + 3y <= 6, x <= 3
	p := NewProblem("lp", Maximize)
	x := p.AddContinuous("x", 0, math.Inf(1))
	y := p.AddContinuous("y", 0, math.Inf(1))
	p.SetObjective(x, 3)
	p.SetObjective(y, 2)
	p.AddConstraint("c1", []Term{{x, 1}, {y, 1}}, LessEq, 4)
	p.AddConstraint("c2", []Term{{x, 1}, {y, 3}}, LessEq, 6)
	p.AddConstraint("c3", []Term{{x, 1}}, LessEq, 3)

	sol, err := NewSolver(0).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 11.0, sol.Objective, 1e-6)
	assert.InDelta(t, 3.0, sol.Value(x), 1e-6)
	assert.InDelta(t, 1.0, sol.Value(y), 1e-6)
	assert.Equal(t, 1, sol.Nodes)
}

func TestSolve_NegativeLowerBoundsAndMinimize(t *testing.T) {
	// minimize x + y with x in [-2, 5], y in [-1, 1] and x + y >= -2.5
	p := NewProblem("shifted", Minimize)
	x := p.AddContinuous("x", -2, 5)
	y := p.AddContinuous("y", -1, 1)
	p.SetObjective(x, 1)
	p.SetObjective(y, 1)
	p.AddConstraint("floor", []Term{{x, 1}, {y, 1}}, GreaterEq, -2.5)

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, -2.5, sol.Objective, 1e-6)
	assert.True(t, p.Feasible(sol.X, 1e-6))
}

func TestSolve_Infeasible(t *testing.T) {
	p := NewProblem("infeasible", Maximize)
	x := p.AddContinuous("x", 0, 1)
	y := p.AddContinuous("y", 0, 1)
	p.SetObjective(x, 1)
	p.AddConstraint("too_much", []Term{{x, 1}, {y, 1}}, GreaterEq, 3)

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.False(t, sol.HasSolution())
	assert.Zero(t, sol.Value(x))
}

func TestSolve_ContradictoryBoundsAreInfeasible(t *testing.T) {
	p := NewProblem("bounds", Maximize)
	x := p.AddVariable("x", 0.2, 0.8, true)
	p.SetObjective(x, 1)

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolve_Unbounded(t *testing.T) {
	p := NewProblem("unbounded", Maximize)
	x := p.AddContinuous("x", 0, math.Inf(1))
	p.SetObjective(x, 1)

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)
	assert.Equal(t, StatusUnbounded, sol.Status)
}

func TestSolve_WarmStartSurvivesWhenNothingBetter(t *testing.T) {
	p := NewProblem("start", Maximize)
	x := p.AddBinary("x")
	p.SetObjective(x, -1)
	require.NoError(t, p.SetStart([]float64{0}))

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 0.0, sol.Value(x), 1e-9)
}

func TestSetStart_RejectsInfeasiblePoint(t *testing.T) {
	p := NewProblem("start", Maximize)
	x := p.AddBinary("x")
	p.AddConstraint("zero", []Term{{x, 1}}, LessEq, 0)

	assert.Error(t, p.SetStart([]float64{1}))
	assert.Error(t, p.SetStart([]float64{0, 0}))
	assert.NoError(t, p.SetStart([]float64{0}))
}

func TestSolve_TimeLimitKeepsIncumbent(t *testing.T) {
	p := NewProblem("limited", Maximize)
	var terms []Term
	for i := 0; i < 30; i++ {
		v := p.AddBinary("v")
		p.SetObjective(v, float64(10+i%7))
		terms = append(terms, Term{Var: v, Coef: float64(3 + i%5)})
	}
	p.AddConstraint("capacity", terms, LessEq, 41.5)
	require.NoError(t, p.SetStart(make([]float64, 30)))

	sol, err := NewSolver(time.Nanosecond).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusTimeLimit, sol.Status)
	require.True(t, sol.HasSolution())
	assert.True(t, p.Feasible(sol.X, 1e-6))
}

func TestFeasible(t *testing.T) {
	p := NewProblem("check", Maximize)
	x := p.AddVariable("x", 0, 3, true)
	y := p.AddContinuous("y", -1, 1)
	p.AddConstraint("sum", []Term{{x, 1}, {y, 1}}, Equal, 2)

	assert.True(t, p.Feasible([]float64{2, 0}, 1e-9))
	assert.True(t, p.Feasible([]float64{3, -1}, 1e-9))
	assert.False(t, p.Feasible([]float64{1.5, 0.5}, 1e-9), "x must be integral")
	assert.False(t, p.Feasible([]float64{1, 0}, 1e-9), "sum must equal 2")
	assert.False(t, p.Feasible([]float64{4, -2}, 1e-9), "bounds")
}

func TestSolve_LargeCoefficientsAreScaled(t *testing.T) {
	// maximize 2x + 3y  s.t. 1e9x + 2e9y <= 2e9, 1e12x + 1e12y <= 1e15, x binary
	p := NewProblem("scaled", Maximize)
	x := p.AddBinary("x")
	y := p.AddContinuous("y", 0, 1)
	p.SetObjective(x, 2)
	p.SetObjective(y, 3)
	p.AddConstraint("budget", []Term{{x, 1e9}, {y, 2e9}}, LessEq, 2e9)
	p.AddConstraint("loose", []Term{{x, 1e12}, {y, 1e12}}, LessEq, 1e15)

	sol, err := NewSolver(10 * time.Second).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 3.5, sol.Objective, 1e-6)
	assert.InDelta(t, 1.0, sol.Value(x), 1e-9)
	assert.InDelta(t, 0.5, sol.Value(y), 1e-6)
	assert.InDelta(t, sol.Objective, sol.Bound, 1e-9)
	assert.True(t, p.Feasible(sol.X, 1e-6))
}

func TestSolve_InfiniteRightHandSide(t *testing.T) {
	p := NewProblem("inf_rhs", Maximize)
	x := p.AddContinuous("x", 0, 2)
	p.SetObjective(x, 1)
	p.AddConstraint("never_binds", []Term{{x, 1}}, LessEq, math.Inf(1))

	sol, err := NewSolver(time.Second).Solve(p)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 2.0, sol.Value(x), 1e-9)

	q := NewProblem("inf_rhs_infeasible", Maximize)
	y := q.AddContinuous("y", 0, 2)
	q.AddConstraint("impossible", []Term{{y, 1}}, GreaterEq, math.Inf(1))

	sol, err = NewSolver(time.Second).Solve(q)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolve_CardinalityCapManyVariables(t *testing.T) {
	// 200 pairs: y_i <= 0.9 + 0.1 z_i, sum z <= 20. The best 20 y reach 1.
	const n = 200
	p := NewProblem("cap", Maximize)
	flags := make([]Term, n)
	for i := 0; i < n; i++ {
		y := p.AddContinuous("y", 0, 1)
		z := p.AddBinary("z")
		p.SetObjective(y, 1+float64(i)/n)
		p.AddConstraint("near", []Term{{y, 1}, {z, -0.1}}, LessEq, 0.9)
		flags[i] = Term{Var: z, Coef: 1}
	}
	p.AddConstraint("cap", flags, LessEq, 20)

	sol, err := NewSolver(30 * time.Second).Solve(p)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	var want float64
	for i := 0; i < n; i++ {
		c := 1 + float64(i)/n
		want += 0.9 * c
		if i >= n-20 {
			want += 0.1 * c
		}
	}
	assert.InDelta(t, want, sol.Objective, 1e-6)
	assert.True(t, p.Feasible(sol.X, 1e-6))
}
