package milp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	boundTol       = 1e-9
	feasibilityTol = 1e-7
	pivotTol       = 1e-9
	optimalityTol  = 1e-9

	// Pricing switches to Bland's rule after this many degenerate pivots in a row.
	maxDegenerate = 50
)

var (
	errInfeasible = errors.New("relaxation infeasible")
	errUnbounded  = errors.New("relaxation unbounded")
	errDeadline   = errors.New("relaxation exceeded time limit")
)

// tableau is a dense bounded-variable simplex over one node relaxation.
//
// Columns are the model variables, one slack per row and one artificial per
// row whose starting point violates the slack bounds. Row i reads
// Σ_j t[i,j]·x_j = beta[i], and the basic column of row i has coefficient 1.
// Nonbasic columns sit at a finite bound, or at zero when free.
type tableau struct {
	n, m, k int

	t    *mat.Dense // nil when there are no rows
	rows [][]float64
	beta []float64

	lo, hi []float64
	val    []float64
	cost   []float64
	d      []float64 // reduced costs of cost

	basis   []int
	isBasic []bool
	art     []int
}

// newTableau scales every row by its largest coefficient, drops rows that
// cannot bind and builds a starting basis of slacks and artificials.
func newTableau(p *Problem, lo, hi []float64) (*tableau, error) {
	n := len(p.vars)
	for j := 0; j < n; j++ {
		if lo[j] > hi[j]+boundTol {
			return nil, errInfeasible
		}
	}

	type row struct {
		coef     []float64
		rhs      float64
		slackLo  float64
		slackHi  float64
		slackVal float64
		artSign  float64
	}
	var rowsIn []row

	for _, c := range p.cons {
		if math.IsNaN(c.RHS) {
			return nil, fmt.Errorf("constraint %s has a NaN right-hand side", c.Name)
		}
		coef := make([]float64, n)
		for _, term := range c.Terms {
			coef[term.Var] += term.Coef
		}
		scale := floats.Norm(coef, math.Inf(1))
		if math.IsNaN(scale) || math.IsInf(scale, 0) {
			return nil, fmt.Errorf("constraint %s has a non-finite coefficient", c.Name)
		}

		if math.IsInf(c.RHS, 0) {
			slackOK := (c.Op == LessEq && c.RHS > 0) || (c.Op == GreaterEq && c.RHS < 0)
			if !slackOK {
				return nil, errInfeasible
			}
			continue
		}
		if scale == 0 {
			tol := feasibilityTol * (1 + math.Abs(c.RHS))
			switch {
			case c.Op == LessEq && c.RHS < -tol,
				c.Op == GreaterEq && c.RHS > tol,
				c.Op == Equal && math.Abs(c.RHS) > tol:
				return nil, errInfeasible
			}
			continue
		}

		floats.Scale(1/scale, coef)
		r := row{coef: coef, rhs: c.RHS / scale}
		switch c.Op {
		case LessEq:
			r.slackLo, r.slackHi = 0, math.Inf(1)
		case GreaterEq:
			r.slackLo, r.slackHi = math.Inf(-1), 0
		case Equal:
			r.slackLo, r.slackHi = 0, 0
		}
		rowsIn = append(rowsIn, r)
	}

	m := len(rowsIn)
	tb := &tableau{n: n, m: m}

	// Nonbasic model variables start at a finite bound, or zero when free.
	xN := make([]float64, n)
	for j := 0; j < n; j++ {
		switch {
		case !math.IsInf(lo[j], -1):
			xN[j] = lo[j]
		case !math.IsInf(hi[j], 1):
			xN[j] = hi[j]
		}
	}

	nArt := 0
	for i := range rowsIn {
		r := &rowsIn[i]
		resid := r.rhs - floats.Dot(r.coef, xN)
		if resid >= r.slackLo-feasibilityTol && resid <= r.slackHi+feasibilityTol {
			r.slackVal = resid
			continue
		}
		r.slackVal = math.Max(r.slackLo, math.Min(r.slackHi, resid))
		r.artSign = 1
		if resid-r.slackVal < 0 {
			r.artSign = -1
		}
		nArt++
	}

	k := n + m + nArt
	tb.k = k
	tb.lo = make([]float64, k)
	tb.hi = make([]float64, k)
	tb.val = make([]float64, k)
	tb.cost = make([]float64, k)
	tb.d = make([]float64, k)
	tb.beta = make([]float64, m)
	tb.basis = make([]int, m)
	tb.isBasic = make([]bool, k)

	copy(tb.lo, lo)
	copy(tb.hi, hi)
	copy(tb.val, xN)

	if m > 0 {
		tb.t = mat.NewDense(m, k, nil)
		tb.rows = make([][]float64, m)
		for i := 0; i < m; i++ {
			tb.rows[i] = tb.t.RawRowView(i)
		}
	}

	next := n + m
	for i, r := range rowsIn {
		slack := n + i
		tb.lo[slack], tb.hi[slack] = r.slackLo, r.slackHi
		tb.val[slack] = r.slackVal

		sign := 1.0
		if r.artSign != 0 {
			sign = r.artSign
		}
		row := tb.rows[i]
		copy(row, r.coef)
		row[slack] = 1
		floats.Scale(sign, row[:n+m])
		tb.beta[i] = sign * r.rhs

		if r.artSign == 0 {
			tb.setBasic(i, slack)
			continue
		}
		a := next
		next++
		row[a] = 1
		tb.lo[a], tb.hi[a] = 0, math.Inf(1)
		tb.val[a] = math.Abs(r.rhs - floats.Dot(r.coef, xN) - r.slackVal)
		tb.art = append(tb.art, a)
		tb.setBasic(i, a)
	}
	return tb, nil
}

func (tb *tableau) setBasic(i, j int) {
	tb.basis[i] = j
	tb.isBasic[j] = true
}

// solve runs both phases and returns the values of the model variables.
func (tb *tableau) solve(p *Problem, deadline time.Time) ([]float64, error) {
	if len(tb.art) > 0 {
		for j := range tb.cost {
			tb.cost[j] = 0
		}
		for _, a := range tb.art {
			tb.cost[a] = 1
		}
		if err := tb.iterate(deadline); err != nil {
			if errors.Is(err, errUnbounded) {
				return nil, fmt.Errorf("phase one diverged")
			}
			return nil, err
		}
		tb.refresh()
		infeasibility := 0.0
		for _, a := range tb.art {
			infeasibility += tb.val[a]
		}
		if infeasibility > 1e-6 {
			return nil, errInfeasible
		}
		// Artificials stay in the tableau pinned at zero; basic ones leave on
		// the first pivot through their row.
		for _, a := range tb.art {
			tb.hi[a] = 0
			if !tb.isBasic[a] {
				tb.val[a] = 0
			}
		}
	}

	dir := p.direction()
	for j := range tb.cost {
		tb.cost[j] = 0
	}
	for j := 0; j < tb.n; j++ {
		// The tableau minimizes; maximization flips the sign.
		tb.cost[j] = -dir * p.obj[j]
	}
	if err := tb.iterate(deadline); err != nil {
		return nil, err
	}
	tb.refresh()

	x := make([]float64, tb.n)
	for j := range x {
		x[j] = math.Max(tb.lo[j], math.Min(tb.hi[j], tb.val[j]))
	}
	return x, nil
}

func (tb *tableau) reducedCosts() {
	copy(tb.d, tb.cost)
	for i, b := range tb.basis {
		if cb := tb.cost[b]; cb != 0 {
			floats.AddScaled(tb.d, -cb, tb.rows[i])
		}
	}
}

// refresh recomputes basic values from beta and the nonbasic values.
func (tb *tableau) refresh() {
	for i, b := range tb.basis {
		v := tb.beta[i]
		row := tb.rows[i]
		for j := 0; j < tb.k; j++ {
			if !tb.isBasic[j] && row[j] != 0 {
				v -= row[j] * tb.val[j]
			}
		}
		tb.val[b] = v
	}
}

func (tb *tableau) iterate(deadline time.Time) error {
	tb.reducedCosts()
	maxIter := 50 * (tb.m + tb.k + 10)
	degenerate := 0
	for iter := 0; ; iter++ {
		if iter%32 == 0 && !deadline.IsZero() && time.Now().After(deadline) {
			return errDeadline
		}
		if iter > maxIter {
			return fmt.Errorf("simplex iteration limit %d reached", maxIter)
		}

		q, dir := tb.price(degenerate > maxDegenerate)
		if q < 0 {
			return nil
		}
		r, step, toUpper := tb.ratio(q, dir)
		if math.IsInf(step, 1) {
			return errUnbounded
		}
		if step <= boundTol {
			degenerate++
		} else {
			degenerate = 0
		}

		if step > 0 {
			tb.val[q] += dir * step
			for i, b := range tb.basis {
				if a := tb.rows[i][q]; a != 0 {
					tb.val[b] -= dir * step * a
				}
			}
		}
		if r >= 0 {
			tb.pivot(r, q, toUpper)
		}
	}
}

// price picks the entering column and its direction (+1 up, -1 down), or -1
// at optimality. Dantzig's rule is used unless bland is set.
func (tb *tableau) price(bland bool) (int, float64) {
	best, bestDir, bestScore := -1, 0.0, 0.0
	for j := 0; j < tb.k; j++ {
		if tb.isBasic[j] || tb.hi[j]-tb.lo[j] <= boundTol {
			continue
		}
		dj := tb.d[j]
		var dir float64
		switch {
		case dj < -optimalityTol && (math.IsInf(tb.hi[j], 1) || tb.val[j] < tb.hi[j]-boundTol):
			dir = 1
		case dj > optimalityTol && (math.IsInf(tb.lo[j], -1) || tb.val[j] > tb.lo[j]+boundTol):
			dir = -1
		default:
			continue
		}
		if bland {
			return j, dir
		}
		if s := math.Abs(dj); s > bestScore {
			best, bestDir, bestScore = j, dir, s
		}
	}
	return best, bestDir
}

// ratio finds how far column q can move in direction dir. It returns the
// blocking row (-1 when q reaches its own opposite bound first), the step and
// whether the leaving column exits at its upper bound.
func (tb *tableau) ratio(q int, dir float64) (int, float64, bool) {
	step := math.Inf(1)
	if !math.IsInf(tb.lo[q], -1) && !math.IsInf(tb.hi[q], 1) {
		step = tb.hi[q] - tb.lo[q]
	}
	row, toUpper, bestAlpha := -1, false, 0.0
	for i, b := range tb.basis {
		alpha := dir * tb.rows[i][q]
		if math.Abs(alpha) <= pivotTol {
			continue
		}
		var limit float64
		var up bool
		if alpha > 0 {
			if math.IsInf(tb.lo[b], -1) {
				continue
			}
			limit = (tb.val[b] - tb.lo[b]) / alpha
		} else {
			if math.IsInf(tb.hi[b], 1) {
				continue
			}
			limit = (tb.hi[b] - tb.val[b]) / -alpha
			up = true
		}
		limit = math.Max(0, limit)
		switch {
		case limit < step-1e-12:
		case row >= 0 && limit <= step+1e-12 && math.Abs(alpha) > bestAlpha:
		default:
			continue
		}
		step, row, toUpper, bestAlpha = limit, i, up, math.Abs(alpha)
	}
	return row, step, toUpper
}

func (tb *tableau) pivot(r, q int, toUpper bool) {
	leaving := tb.basis[r]
	pr := tb.rows[r]
	piv := pr[q]
	floats.Scale(1/piv, pr)
	pr[q] = 1
	tb.beta[r] /= piv

	for i, row := range tb.rows {
		if i == r {
			continue
		}
		if f := row[q]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[q] = 0
			tb.beta[i] -= f * tb.beta[r]
		}
	}
	if f := tb.d[q]; f != 0 {
		floats.AddScaled(tb.d, -f, pr)
		tb.d[q] = 0
	}

	tb.isBasic[leaving] = false
	if toUpper {
		tb.val[leaving] = tb.hi[leaving]
	} else {
		tb.val[leaving] = tb.lo[leaving]
	}
	tb.setBasic(r, q)
}

// solveRelaxation solves the LP relaxation of p restricted to [lo, hi].
func solveRelaxation(p *Problem, lo, hi []float64, deadline time.Time) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			x, err = nil, fmt.Errorf("simplex panic: %v", r)
		}
	}()
	tb, err := newTableau(p, lo, hi)
	if err != nil {
		return nil, err
	}
	return tb.solve(p, deadline)
}
