// Package solver maximizes a linear objective over binary variables
// subject to linear constraints. It presolves the model by bound
// propagation and splits it into independent components. A component is
// searched depth first with combinatorial bounds; when coupling rows tie
// otherwise separate blocks together they are relaxed into the objective
// with Lagrange multipliers and the blocks are solved one at a time.
package solver

import (
	"fmt"
	"math"
)

type Sense int

const (
	LessEqual Sense = iota
	Equal
)

func (s Sense) String() string {
	if s == Equal {
		return "="
	}
	return "<="
}

type Term struct {
	Var  int
	Coef float64
}

// Constraint is a row of the model. A coupling row ties variables that
// belong to otherwise independent blocks, such as a seat limit shared by
// many students. It must be a <= row with nonnegative coefficients and
// right hand side to be relaxed; other coupling rows are kept as plain
// rows.
type Constraint struct {
	Name     string
	Terms    []Term
	Sense    Sense
	RHS      float64
	Coupling bool
}

// Problem is a maximization over binary variables. Variables are created
// with AddVar and may be fixed before solving.
type Problem struct {
	names []string
	obj   []float64
	fixed []int8
	rows  []Constraint
}

const free int8 = -1

func NewProblem() *Problem {
	return &Problem{}
}

// AddVar adds a binary variable with objective coefficient obj and returns
// its index.
func (p *Problem) AddVar(name string, obj float64) int {
	p.names = append(p.names, name)
	p.obj = append(p.obj, obj)
	p.fixed = append(p.fixed, free)
	return len(p.names) - 1
}

// Fix pins a variable to 0 or 1.
func (p *Problem) Fix(v int, value int) {
	if value != 0 {
		value = 1
	}
	p.fixed[v] = int8(value)
}

// IsFixed reports whether v was pinned by Fix and to which value.
func (p *Problem) IsFixed(v int) (int, bool) {
	if p.fixed[v] == free {
		return 0, false
	}
	return int(p.fixed[v]), true
}

// AddConstraint adds a row. Terms with a zero coefficient are dropped and
// repeated variables are merged.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	p.add(Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// AddCoupling adds a <= row shared between blocks of the model.
func (p *Problem) AddCoupling(name string, terms []Term, rhs float64) {
	p.add(Constraint{Name: name, Terms: terms, Sense: LessEqual, RHS: rhs, Coupling: true})
}

func (p *Problem) add(c Constraint) {
	name, terms := c.Name, c.Terms
	merged := make([]Term, 0, len(terms))
	seen := make(map[int]int, len(terms))
	for _, t := range terms {
		if t.Var < 0 || t.Var >= len(p.names) {
			panic(fmt.Sprintf("solver: constraint %s references unknown variable %d", name, t.Var))
		}
		if i, ok := seen[t.Var]; ok {
			merged[i].Coef += t.Coef
			continue
		}
		seen[t.Var] = len(merged)
		merged = append(merged, t)
	}
	out := merged[:0]
	for _, t := range merged {
		if t.Coef != 0 {
			out = append(out, t)
		}
	}
	c.Terms = out
	p.rows = append(p.rows, c)
}

func (p *Problem) NumVars() int {
	return len(p.names)
}

func (p *Problem) NumConstraints() int {
	return len(p.rows)
}

// NumFixed counts the variables pinned by Fix.
func (p *Problem) NumFixed() int {
	n := 0
	for _, f := range p.fixed {
		if f != free {
			n++
		}
	}
	return n
}

func (p *Problem) Name(v int) string {
	return p.names[v]
}

func (p *Problem) Objective(v int) float64 {
	return p.obj[v]
}

// Evaluate returns the objective value of x.
func (p *Problem) Evaluate(x []float64) float64 {
	total := 0.0
	for v, c := range p.obj {
		total += c * x[v]
	}
	return total
}

// Check returns an error naming the first constraint or fixing that x
// violates by more than tol.
func (p *Problem) Check(x []float64, tol float64) error {
	if len(x) != len(p.names) {
		return fmt.Errorf("solution has %d values, problem has %d variables", len(x), len(p.names))
	}
	for v, f := range p.fixed {
		if f != free && math.Abs(x[v]-float64(f)) > tol {
			return fmt.Errorf("variable %s fixed to %d has value %g", p.names[v], f, x[v])
		}
	}
	for _, row := range p.rows {
		lhs := 0.0
		for _, t := range row.Terms {
			lhs += t.Coef * x[t.Var]
		}
		switch row.Sense {
		case LessEqual:
			if lhs > row.RHS+tol {
				return fmt.Errorf("constraint %s violated: %g > %g", row.Name, lhs, row.RHS)
			}
		case Equal:
			if math.Abs(lhs-row.RHS) > tol {
				return fmt.Errorf("constraint %s violated: %g != %g", row.Name, lhs, row.RHS)
			}
		}
	}
	return nil
}

// Status tells how a search ended.
type Status int

const (
	// Optimal means the objective is within the gap of the bound.
	Optimal Status = iota
	// TimeLimit means the time limit stopped the search and the best
	// assignment found so far was kept.
	TimeLimit
)

func (s Status) String() string {
	if s == TimeLimit {
		return "time limit"
	}
	return "optimal"
}

// Solution holds a solved assignment. Bound is a proven upper bound on the
// optimal objective.
type Solution struct {
	Values     []float64
	Objective  float64
	Bound      float64
	Status     Status
	Nodes      int
	Components int
}

// Selected reports whether a variable is 1 in the solution.
func (s *Solution) Selected(v int) bool {
	return s.Values[v] > 0.5
}

// Gap is the relative distance between objective and bound.
func (s *Solution) Gap() float64 {
	if s.Bound <= s.Objective {
		return 0
	}
	return (s.Bound - s.Objective) / math.Max(math.Abs(s.Objective), 1e-9)
}
