package solver

import (
	"context"
	"math"
	"slices"
)

// checkEvery is the number of nodes between two looks at the context.
const checkEvery = 64

// enumeration is a depth first search over a space. Every node propagates
// the rows, bounds the completions and branches on the free variable with
// the largest cost, taking it first.
type enumeration struct {
	ctx   context.Context
	sp    *space
	cost  []float64
	prune func(bound, incumbent float64) bool
	// tick is called every checkEvery nodes.
	tick func(nodes int)

	best  []int8
	value float64
	// bound is the largest bound of a pruned node.
	bound float64
	nodes int
	err   error
}

func newEnumeration(ctx context.Context, sp *space, cost []float64, prune func(float64, float64) bool) *enumeration {
	return &enumeration{
		ctx:   ctx,
		sp:    sp,
		cost:  cost,
		prune: prune,
		value: math.Inf(-1),
		bound: math.Inf(-1),
	}
}

// exact prunes only the nodes that cannot beat the incumbent.
func exact(bound, incumbent float64) bool {
	return bound <= incumbent+feasTol
}

// seed offers x as the starting incumbent when it is feasible.
func (e *enumeration) seed(x []int8, fix []int8) {
	if x == nil {
		return
	}
	for v, f := range fix {
		if f != free && x[v] != f {
			return
		}
	}
	if e.sp.violated(x) < 0 {
		e.offer(x)
	}
}

// run searches the completions of fix, which it modifies.
func (e *enumeration) run(fix []int8) error {
	e.visit(fix, nil)
	return e.err
}

// upper is a bound on every completion searched so far.
func (e *enumeration) upper() float64 {
	return max(e.bound, e.value)
}

func (e *enumeration) visit(fix []int8, queue []int) {
	if e.err != nil {
		return
	}
	e.nodes++
	if e.nodes%checkEvery == 0 {
		if e.tick != nil {
			e.tick(checkEvery)
		}
		if err := e.ctx.Err(); err != nil {
			e.err = err
			return
		}
	}
	if propagate(e.sp.rows, e.sp.byVar, fix, queue) >= 0 {
		return
	}
	bound := e.sp.bound(fix, e.cost)
	if e.prune(bound, e.value) {
		e.bound = max(e.bound, bound)
		return
	}

	v, most := -1, 0.0
	for u, f := range fix {
		if f == free && e.cost[u] > most {
			v, most = u, e.cost[u]
		}
	}
	if v < 0 {
		// Nothing left adds value, so the zero completion is best if it holds.
		r := e.sp.violated(fix)
		if r < 0 {
			e.offer(fix)
			return
		}
		for _, u := range e.sp.rows[r].vars {
			if fix[u] == free {
				v = u
				break
			}
		}
		if v < 0 {
			return
		}
	}

	up := slices.Clone(fix)
	up[v] = 1
	e.visit(up, slices.Clone(e.sp.byVar[v]))
	fix[v] = 0
	e.visit(fix, slices.Clone(e.sp.byVar[v]))
}

// offer records fix, with its free variables at 0, when it beats the
// incumbent.
func (e *enumeration) offer(fix []int8) {
	val := 0.0
	for v, f := range fix {
		if f == 1 {
			val += e.cost[v]
		}
	}
	if val <= e.value {
		return
	}
	e.value = val
	e.best = make([]int8, len(fix))
	for v, f := range fix {
		if f == 1 {
			e.best[v] = 1
		}
	}
}

// violated returns the first row broken by fix with its free variables at
// 0, or -1.
func (s *space) violated(fix []int8) int {
	for i := range s.rows {
		r := &s.rows[i]
		rhs := r.rhs
		for k, v := range r.vars {
			if fix[v] == 1 {
				rhs -= r.coefs[k]
			}
		}
		if rhs < -feasTol || (r.sense == Equal && rhs > feasTol) {
			return i
		}
	}
	return -1
}

// value sums obj over the variables set in x.
func (s *space) value(x []int8) float64 {
	total := 0.0
	for v, xv := range x {
		if xv == 1 {
			total += s.obj[v]
		}
	}
	return total
}
