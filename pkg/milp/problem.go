// Package milp solves small mixed-integer linear programs with a time-bounded
// best-bound search over LP relaxations. Relaxations are solved by a
// bounded-variable simplex on gonum dense matrices.
package milp

import (
	"fmt"
	"math"
)

// Sense selects the direction of the objective.
type Sense int

const (
	// Maximize the objective.
	Maximize Sense = iota
	// Minimize the objective.
	Minimize
)

// Op is the relation of a linear constraint.
type Op int

const (
	// LessEq is Σ a·x <= rhs.
	LessEq Op = iota
	// GreaterEq is Σ a·x >= rhs.
	GreaterEq
	// Equal is Σ a·x == rhs.
	Equal
)

// Variable is a bounded decision variable. Lower may be -Inf and Upper +Inf.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Term is one coefficient of a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear row of the model.
type Constraint struct {
	Name  string
	Terms []Term
	Op    Op
	RHS   float64
}

// Problem is a mixed-integer linear model built incrementally.
type Problem struct {
	Name  string
	Sense Sense

	vars  []Variable
	obj   []float64
	cons  []Constraint
	start []float64
}

// NewProblem creates an empty model.
func NewProblem(name string, sense Sense) *Problem {
	return &Problem{Name: name, Sense: sense}
}

// AddVariable appends a variable and returns its index.
func (p *Problem) AddVariable(name string, lower, upper float64, integer bool) int {
	p.vars = append(p.vars, Variable{Name: name, Lower: lower, Upper: upper, Integer: integer})
	p.obj = append(p.obj, 0)
	return len(p.vars) - 1
}

// AddContinuous appends a continuous variable.
func (p *Problem) AddContinuous(name string, lower, upper float64) int {
	return p.AddVariable(name, lower, upper, false)
}

// AddBinary appends a {0,1} variable.
func (p *Problem) AddBinary(name string) int {
	return p.AddVariable(name, 0, 1, true)
}

// SetObjective sets the objective coefficient of variable v.
func (p *Problem) SetObjective(v int, coef float64) {
	p.obj[v] = coef
}

// AddConstraint appends a linear constraint.
func (p *Problem) AddConstraint(name string, terms []Term, op Op, rhs float64) {
	p.cons = append(p.cons, Constraint{Name: name, Terms: terms, Op: op, RHS: rhs})
}

// NumVariables returns the number of variables.
func (p *Problem) NumVariables() int { return len(p.vars) }

// NumConstraints returns the number of constraints.
func (p *Problem) NumConstraints() int { return len(p.cons) }

// Variable returns the definition of variable v.
func (p *Problem) Variable(v int) Variable { return p.vars[v] }

// SetStart installs a feasible warm-start incumbent. The search keeps it as the
// answer when nothing better is found before the time limit.
func (p *Problem) SetStart(x []float64) error {
	if len(x) != len(p.vars) {
		return fmt.Errorf("start has %d values, problem has %d variables", len(x), len(p.vars))
	}
	if !p.Feasible(x, feasibilityTol) {
		return fmt.Errorf("start point is not feasible for %s", p.Name)
	}
	p.start = append([]float64(nil), x...)
	return nil
}

// Evaluate returns the objective value at x.
func (p *Problem) Evaluate(x []float64) float64 {
	var total float64
	for j, c := range p.obj {
		total += c * x[j]
	}
	return total
}

// Feasible reports whether x satisfies bounds, integrality and every constraint.
func (p *Problem) Feasible(x []float64, tol float64) bool {
	if len(x) != len(p.vars) {
		return false
	}
	for j, v := range p.vars {
		if x[j] < v.Lower-tol || x[j] > v.Upper+tol {
			return false
		}
		if v.Integer && math.Abs(x[j]-math.Round(x[j])) > tol {
			return false
		}
	}
	for _, c := range p.cons {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		slack := tol * (1 + math.Abs(c.RHS))
		switch c.Op {
		case LessEq:
			if lhs > c.RHS+slack {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-slack {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > slack {
				return false
			}
		}
	}
	return true
}

// direction is +1 when maximizing, -1 when minimizing; scores are always maximized.
func (p *Problem) direction() float64 {
	if p.Sense == Minimize {
		return -1
	}
	return 1
}
