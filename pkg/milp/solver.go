package milp

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the outcome of a solve, reported verbatim to callers.
type Status string

const (
	StatusOptimal    Status = "Optimal"
	StatusTimeLimit  Status = "TimeLimit"
	StatusInfeasible Status = "Infeasible"
	StatusUnbounded  Status = "Unbounded"
)

var (
	// ErrNoSolver means the LP backend failed its capability probe.
	ErrNoSolver = errors.New("milp: no working LP backend")
	// ErrSolverFailure means the root relaxation could not be solved.
	ErrSolverFailure = errors.New("milp: solver failure")
)

// Solution is the best point found by the search.
type Solution struct {
	Status    Status
	X         []float64
	Objective float64
	// Bound is the best objective any unexplored node could still reach. It
	// equals Objective once the search is complete.
	Bound   float64
	Nodes   int
	Elapsed time.Duration
}

// HasSolution reports whether X holds a feasible point.
func (s *Solution) HasSolution() bool { return len(s.X) > 0 }

// Value returns variable v of the solution, or 0 without one.
func (s *Solution) Value(v int) float64 {
	if !s.HasSolution() {
		return 0
	}
	return s.X[v]
}

// Solver is a best-bound branch-and-bound search. It is single threaded per
// Solve call and stops at TimeLimit, returning the best incumbent found.
type Solver struct {
	TimeLimit            time.Duration
	IntegralityTolerance float64
	// RelativeGap stops the search once no open node can beat the incumbent
	// by more than this fraction.
	RelativeGap float64
}

// NewSolver creates a solver with the given wall-clock limit (0 = unbounded).
func NewSolver(timeLimit time.Duration) *Solver {
	return &Solver{
		TimeLimit:            timeLimit,
		IntegralityTolerance: 1e-6,
		RelativeGap:          1e-7,
	}
}

// node is a solved relaxation waiting to be branched on.
type node struct {
	lo, hi []float64
	x      []float64
	score  float64
	depth  int
}

// nodeQueue pops the node with the highest relaxation score first, preferring
// deeper nodes on ties.
type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].score != q[j].score {
		return q[i].score > q[j].score
	}
	return q[i].depth > q[j].depth
}
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	nd := old[len(old)-1]
	*q = old[:len(old)-1]
	return nd
}

// search holds the state of one Solve call.
type search struct {
	p        *Problem
	solver   *Solver
	deadline time.Time
	intTol   float64
	dir      float64

	incumbent []float64
	incScore  float64
	nodes     int
}

// Solve runs branch-and-bound. Infeasible, unbounded and time-limited outcomes
// are statuses; an error means the root relaxation itself could not be solved.
func (s *Solver) Solve(p *Problem) (*Solution, error) {
	start := time.Now()
	sr := &search{
		p:        p,
		solver:   s,
		intTol:   s.IntegralityTolerance,
		dir:      p.direction(),
		incScore: math.Inf(-1),
	}
	if sr.intTol <= 0 {
		sr.intTol = 1e-6
	}
	if s.TimeLimit > 0 {
		sr.deadline = start.Add(s.TimeLimit)
	}
	if p.start != nil {
		sr.incumbent = append([]float64(nil), p.start...)
		sr.incScore = sr.dir * p.Evaluate(sr.incumbent)
	}

	n := len(p.vars)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for j, v := range p.vars {
		lo[j], hi[j] = v.Lower, v.Upper
		if v.Integer {
			lo[j] = math.Ceil(lo[j] - sr.intTol)
			hi[j] = math.Floor(hi[j] + sr.intTol)
		}
	}

	sol := &Solution{}
	finish := func(status Status, bound float64) (*Solution, error) {
		sol.Status = status
		sol.Nodes = sr.nodes
		sol.Elapsed = time.Since(start)
		if sr.incumbent != nil {
			sol.X = sr.incumbent
			sol.Objective = p.Evaluate(sr.incumbent)
		}
		sol.Bound = sr.dir * bound
		if status == StatusOptimal {
			sol.Bound = sol.Objective
		}
		return sol, nil
	}

	root, err := sr.solveNode(lo, hi, 0)
	switch {
	case errors.Is(err, errDeadline):
		return finish(StatusTimeLimit, math.Inf(1))
	case errors.Is(err, errUnbounded):
		sol.Status, sol.Nodes, sol.Elapsed = StatusUnbounded, sr.nodes, time.Since(start)
		return sol, nil
	case errors.Is(err, errInfeasible):
		if sr.incumbent != nil {
			return finish(StatusOptimal, sr.incScore)
		}
		return finish(StatusInfeasible, math.Inf(-1))
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrSolverFailure, err)
	}

	queue := &nodeQueue{}
	if root != nil {
		if err := sr.roundRoot(root); errors.Is(err, errDeadline) {
			return finish(StatusTimeLimit, root.score)
		}
		if !sr.pruned(root.score) {
			heap.Push(queue, root)
		}
	}

	for queue.Len() > 0 {
		best := (*queue)[0]
		if sr.pruned(best.score) {
			break
		}
		if sr.expired() {
			return finish(StatusTimeLimit, best.score)
		}
		heap.Pop(queue)

		j := sr.mostFractional(best)
		if j < 0 {
			continue
		}
		v := best.x[j]
		for _, child := range branch(best, j, v) {
			nd, err := sr.solveNode(child.lo, child.hi, best.depth+1)
			switch {
			case errors.Is(err, errDeadline):
				heap.Push(queue, best)
				return finish(StatusTimeLimit, best.score)
			case err != nil:
				// Infeasible, unbounded below the root or numerically troubled
				// subtrees are pruned; the incumbent stays valid.
				continue
			}
			if nd != nil && !sr.pruned(nd.score) {
				heap.Push(queue, nd)
			}
		}
	}

	if sr.incumbent == nil {
		return finish(StatusInfeasible, math.Inf(-1))
	}
	return finish(StatusOptimal, sr.incScore)
}

// solveNode solves the relaxation over [lo, hi]. An integral solution becomes
// the incumbent when it improves on it and nil is returned; otherwise the node
// is returned for branching.
func (sr *search) solveNode(lo, hi []float64, depth int) (*node, error) {
	if sr.expired() {
		return nil, errDeadline
	}
	sr.nodes++
	x, err := solveRelaxation(sr.p, lo, hi, sr.deadline)
	if err != nil {
		return nil, err
	}
	nd := &node{lo: lo, hi: hi, x: x, score: sr.dir * sr.p.Evaluate(x), depth: depth}
	if sr.mostFractional(nd) >= 0 {
		return nd, nil
	}
	sr.offer(x)
	return nil, nil
}

// roundRoot fixes the integer variables of the root relaxation at their
// rounded-down and nearest values and re-solves the continuous part, seeding
// an incumbent before any branching.
func (sr *search) roundRoot(root *node) error {
	floor := func(v float64) float64 { return math.Floor(v + sr.intTol) }
	for _, round := range []func(float64) float64{floor, math.Round} {
		lo := append([]float64(nil), root.lo...)
		hi := append([]float64(nil), root.hi...)
		for j, v := range sr.p.vars {
			if !v.Integer {
				continue
			}
			fixed := math.Max(root.lo[j], math.Min(root.hi[j], round(root.x[j])))
			lo[j], hi[j] = fixed, fixed
		}
		sr.nodes++
		x, err := solveRelaxation(sr.p, lo, hi, sr.deadline)
		switch {
		case errors.Is(err, errDeadline):
			return err
		case err != nil:
			continue
		}
		sr.offer(x)
	}
	return nil
}

// offer rounds the integer variables of an integral point and keeps it when
// it beats the incumbent.
func (sr *search) offer(x []float64) {
	for j, v := range sr.p.vars {
		if v.Integer {
			x[j] = math.Round(x[j])
		}
	}
	if score := sr.dir * sr.p.Evaluate(x); sr.incumbent == nil || score > sr.incScore {
		sr.incumbent, sr.incScore = x, score
	}
}

// pruned reports whether a node scoring score cannot improve the incumbent by
// more than the relative gap.
func (sr *search) pruned(score float64) bool {
	if sr.incumbent == nil {
		return false
	}
	gap := sr.solver.RelativeGap
	if gap <= 0 {
		gap = 1e-9
	}
	return score <= sr.incScore+gap*(1+math.Abs(sr.incScore))
}

func (sr *search) expired() bool {
	return !sr.deadline.IsZero() && time.Now().After(sr.deadline)
}

func (sr *search) mostFractional(nd *node) int {
	best, bestDist := -1, sr.intTol
	for j, v := range sr.p.vars {
		if !v.Integer || nd.hi[j]-nd.lo[j] < 0.5 {
			continue
		}
		f := nd.x[j] - math.Floor(nd.x[j])
		dist := math.Min(f, 1-f)
		if dist > bestDist {
			best, bestDist = j, dist
		}
	}
	return best
}

type bounds struct {
	lo, hi []float64
}

// branch splits nd on variable j at value v. The child nearer to v comes first.
func branch(nd *node, j int, v float64) []bounds {
	down := bounds{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
	up := bounds{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...)}
	down.hi[j] = math.Floor(v)
	up.lo[j] = math.Ceil(v)
	if v-math.Floor(v) < 0.5 {
		return []bounds{down, up}
	}
	return []bounds{up, down}
}

// Probe checks that the LP backend solves a trivial program.
func Probe() error {
	p := NewProblem("probe", Maximize)
	x := p.AddContinuous("x", 0, 2)
	p.SetObjective(x, 1)
	p.AddConstraint("cap", []Term{{Var: x, Coef: 1}}, LessEq, 1)

	sol, err := NewSolver(time.Second).Solve(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoSolver, err)
	}
	if sol.Status != StatusOptimal || math.Abs(sol.Value(x)-1) > 1e-6 {
		return fmt.Errorf("%w: probe returned %s x=%g", ErrNoSolver, sol.Status, sol.Value(x))
	}
	return nil
}
