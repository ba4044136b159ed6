package optimization

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/pkg/milp"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// MILPOptimizer solves the price program with branch-and-bound.
//
// Per SKU i with bound B the change is split as x_i = up_i - down_i:
//
//	up_i, down_i in [0, B]  price increase and decrease
//	z_i in {0, 1}           near-bound flag, up_i + down_i - 0.9B <= M z_i
//
// subject to sum z_i <= max(1, floor(N/10)) and sum p0_i u_i down_i <= budget,
// maximizing sum c_i x_i - lambda sum (up_i + down_i) with c_i the margin
// sensitivity. up_i + down_i stands for |x_i|; with lambda > 0 at most one of
// the pair is positive at an optimum. M is 0.1B, the smallest value that lets
// a flagged SKU reach the bound, which keeps the relaxation tight.
type MILPOptimizer struct {
	projections ProjectionProvider
	maxSKUs     int
	lambda      float64
	timeLimit   time.Duration
	log         zerolog.Logger
}

// NewMILPOptimizer creates a MILP-backed optimizer.
func NewMILPOptimizer(projections ProjectionProvider, maxSKUs int, lambda float64, timeLimit time.Duration, log zerolog.Logger) *MILPOptimizer {
	return &MILPOptimizer{
		projections: projections,
		maxSKUs:     maxSKUs,
		lambda:      lambda,
		timeLimit:   timeLimit,
		log:         log.With().Str("component", "optimizer").Str("solver", "milp").Logger(),
	}
}

// Name identifies the strategy.
func (o *MILPOptimizer) Name() string { return "milp" }

// Optimize solves one round. Infeasible, unbounded and time-limited solves are
// reported through KPIs.Status; an infeasible solve proposes no change.
func (o *MILPOptimizer) Optimize(ctx context.Context, round int, spendBudget float64) (*Result, error) {
	bound, err := validateRequest(round, spendBudget)
	if err != nil {
		return nil, err
	}
	proj, err := o.projections.Projection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog projection: %w", err)
	}
	rows := selectSKUs(proj.Baseline, o.maxSKUs)

	start := time.Now()
	if len(rows) == 0 {
		res := newResult(rows, nil, nil, round, bound, spendBudget, string(milp.StatusOptimal))
		res.Solver = o.Name()
		return res, nil
	}

	f := o.formulate(rows, bound, spendBudget)
	sol, err := milp.NewSolver(o.timeLimit).Solve(f.problem)
	if err != nil {
		return nil, fmt.Errorf("failed to solve price program: %w", err)
	}

	pct := make([]float64, len(rows))
	near := make([]bool, len(rows))
	if sol.HasSolution() {
		for i := range rows {
			pct[i] = sol.Value(f.up[i]) - sol.Value(f.down[i])
			near[i] = sol.Value(f.z[i]) > 0.5 && isNearBound(pct[i], bound)
		}
	}

	res := newResult(rows, pct, near, round, bound, spendBudget, string(sol.Status))
	res.Solver = o.Name()
	res.Nodes = sol.Nodes
	res.Elapsed = time.Since(start)

	o.log.Info().
		Str("run_id", res.RunID).
		Int("round", round).
		Int("skus", len(rows)).
		Bool("spend_row", f.spendRow).
		Str("status", res.KPIs.Status).
		Int("nodes", sol.Nodes).
		Float64("objective", sol.Objective).
		Float64("bound", sol.Bound).
		Int("near_bound", res.KPIs.NNearBound).
		Float64("margin_delta", res.KPIs.MarginDelta).
		Dur("elapsed", res.Elapsed).
		Msg("Price optimization complete")
	return res, nil
}

type formulation struct {
	problem     *milp.Problem
	up, down, z []int
	spendRow    bool
}

func (o *MILPOptimizer) formulate(rows []catalog.BaselineRow, bound, budget float64) *formulation {
	n := len(rows)
	p := milp.NewProblem("price_optimizer", milp.Maximize)
	f := &formulation{
		problem: p,
		up:      make([]int, n),
		down:    make([]int, n),
		z:       make([]int, n),
	}
	m := nearBoundM(bound)

	for i, r := range rows {
		id := r.SKUID.String()
		f.up[i] = p.AddContinuous("up_"+id, 0, bound)
		f.down[i] = p.AddContinuous("down_"+id, 0, bound)
		f.z[i] = p.AddBinary("z_" + id)

		c := marginCoef(r)
		p.SetObjective(f.up[i], c-o.lambda)
		p.SetObjective(f.down[i], -c-o.lambda)

		p.AddConstraint("near_bound_"+id, []milp.Term{
			{Var: f.up[i], Coef: 1},
			{Var: f.down[i], Coef: 1},
			{Var: f.z[i], Coef: -m},
		}, milp.LessEq, nearBoundThreshold*bound)
	}

	flags := make([]milp.Term, n)
	for i := range rows {
		flags[i] = milp.Term{Var: f.z[i], Coef: 1}
	}
	p.AddConstraint("near_bound_cap", flags, milp.LessEq, float64(NearBoundCap(n)))

	// The spend row only binds below the cost of cutting every price by the
	// full bound. Coefficients are scaled to the largest one.
	weights := make([]float64, n)
	for i, r := range rows {
		weights[i] = math.Max(0, spendWeight(r))
	}
	maxSpend := floats.Sum(weights) * bound
	if budget < maxSpend {
		scale := floats.Max(weights)
		if scale == 0 {
			// Nothing can spend, so only a negative budget reaches here.
			scale = 1
		}
		spendTerms := make([]milp.Term, 0, n)
		for i, w := range weights {
			if w > 0 {
				spendTerms = append(spendTerms, milp.Term{Var: f.down[i], Coef: w / scale})
			}
		}
		p.AddConstraint("spend_budget", spendTerms, milp.LessEq, budget/scale)
		f.spendRow = true
	}

	if budget >= 0 {
		if err := p.SetStart(o.seed(f, rows, weights, bound, budget)); err != nil {
			o.log.Debug().Err(err).Msg("Greedy warm start rejected")
			if err := p.SetStart(make([]float64, p.NumVariables())); err != nil {
				o.log.Debug().Err(err).Msg("Zero warm start rejected")
			}
		}
	}
	return f
}

// seed builds a feasible starting point: every SKU moves in its profitable
// direction to 0.9B, the most profitable cap-many go to the full bound, and
// decreases are funded in order of gain per unit of spend until the budget
// runs out.
func (o *MILPOptimizer) seed(f *formulation, rows []catalog.BaselineRow, weights []float64, bound, budget float64) []float64 {
	x := make([]float64, f.problem.NumVariables())
	n := len(rows)

	gain := make([]float64, n)
	var movers []int
	for i, r := range rows {
		gain[i] = math.Abs(marginCoef(r)) - o.lambda
		if gain[i] > 0 {
			movers = append(movers, i)
		}
	}
	slices.SortStableFunc(movers, func(a, b int) int { return cmp.Compare(gain[b], gain[a]) })

	size := make([]float64, n)
	for rank, i := range movers {
		size[i] = nearBoundThreshold * bound
		if rank < NearBoundCap(n) {
			size[i] = bound
			x[f.z[i]] = 1
		}
	}

	var cuts []int
	for _, i := range movers {
		if marginCoef(rows[i]) > 0 {
			x[f.up[i]] = size[i]
		} else {
			cuts = append(cuts, i)
		}
	}
	perSpend := func(i int) float64 {
		if weights[i] == 0 {
			return math.Inf(1)
		}
		return gain[i] / weights[i]
	}
	slices.SortStableFunc(cuts, func(a, b int) int { return cmp.Compare(perSpend(b), perSpend(a)) })

	remaining := budget
	for _, i := range cuts {
		amount := size[i]
		if f.spendRow && weights[i] > 0 {
			amount = math.Min(amount, math.Max(0, remaining)/weights[i])
			// Stay strictly inside the scaled spend row.
			amount *= 1 - 1e-9
		}
		x[f.down[i]] = amount
		remaining -= weights[i] * amount
	}
	return x
}

// nearBoundM is the big-M of the near-bound rows: the distance from the
// near-bound threshold to the bound.
func nearBoundM(bound float64) float64 {
	return (1 - nearBoundThreshold) * bound
}
