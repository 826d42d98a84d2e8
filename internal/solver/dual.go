package solver

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Subgradient iterations spent on the root and on every other node.
const (
	rootIterations = 60
	nodeIterations = 12
)

// block is a part of a component that only coupling rows tie to the rest.
// Its space holds the block's own rows over block indices.
type block struct {
	space
	vars  []int
	links []link
}

// link is the share of one coupling row that falls in a block.
type link struct {
	row   int
	vars  []int
	coefs []float64
}

// split picks the coupling rows of c that can be relaxed and the blocks
// the remaining rows leave. c stays whole unless there are two blocks.
func (c *component) split() {
	uf := newUnionFind(len(c.vars))
	relaxed := make([]bool, len(c.rows))
	var coupling []int
	for i := range c.rows {
		r := &c.rows[i]
		if r.coupling && r.sense == LessEqual && r.rhs >= 0 && slices.Min(r.coefs) > 0 {
			relaxed[i] = true
			coupling = append(coupling, i)
			continue
		}
		for _, v := range r.vars {
			uf.union(r.vars[0], v)
		}
	}
	if len(coupling) == 0 {
		return
	}

	byRoot := make(map[int]*block)
	var blocks []*block
	owner := make([]*block, len(c.vars))
	pos := make([]int, len(c.vars))
	for v := range c.vars {
		root := uf.find(v)
		b, ok := byRoot[root]
		if !ok {
			b = &block{}
			byRoot[root] = b
			blocks = append(blocks, b)
		}
		owner[v], pos[v] = b, len(b.vars)
		b.vars = append(b.vars, v)
		b.obj = append(b.obj, c.obj[v])
	}
	if len(blocks) < 2 {
		return
	}

	for i := range c.rows {
		if relaxed[i] {
			continue
		}
		r := &c.rows[i]
		lr := row{name: r.name, sense: r.sense, rhs: r.rhs, coefs: r.coefs, vars: make([]int, len(r.vars))}
		for k, v := range r.vars {
			lr.vars[k] = pos[v]
		}
		b := owner[r.vars[0]]
		b.rows = append(b.rows, lr)
	}
	for k, i := range coupling {
		r := &c.rows[i]
		at := make(map[*block]int)
		for n, v := range r.vars {
			b := owner[v]
			j, ok := at[b]
			if !ok {
				j = len(b.links)
				at[b] = j
				b.links = append(b.links, link{row: k})
			}
			l := &b.links[j]
			l.vars = append(l.vars, pos[v])
			l.coefs = append(l.coefs, r.coefs[n])
		}
	}
	for _, b := range blocks {
		b.index()
	}
	c.coupling, c.blocks = coupling, blocks
}

// part restricts a component vector to the block.
func (b *block) part(x []int8) []int8 {
	out := make([]int8, len(b.vars))
	for i, v := range b.vars {
		out[i] = x[v]
	}
	return out
}

// solve maximizes cost over the block's completions of fix. Extra rows
// over block indices may further restrict it. It returns nil when the
// block has no feasible completion.
func (b *block) solve(cs *componentSearch, fix []int8, cost []float64, warm []int8, extra []row) ([]int8, float64, error) {
	sp := &b.space
	if len(extra) > 0 {
		sp = newSpace(b.obj, append(slices.Clone(b.rows), extra...))
	}
	local := make([]float64, len(b.vars))
	for i, v := range b.vars {
		local[i] = cost[v]
	}
	bf := b.part(fix)
	e := newEnumeration(cs.ctx, sp, local, exact)
	e.tick = cs.tick
	e.seed(warm, bf)
	err := e.run(bf)
	cs.tick(e.nodes % checkEvery)
	return e.best, e.upper(), err
}

// moved reports whether a multiplier on one of the block's links changed.
func (b *block) moved(lambda, prev []float64) bool {
	for _, l := range b.links {
		if lambda[l.row] != prev[l.row] {
			return true
		}
	}
	return false
}

// usage adds sign times the block's share of every coupling row under
// part to used.
func (b *block) usage(part []int8, used []float64, sign float64) {
	for _, l := range b.links {
		for n, v := range l.vars {
			if part[v] == 1 {
				used[l.row] += sign * l.coefs[n]
			}
		}
	}
}

// limits turns what is left of every linked coupling row into rows over
// the block.
func (b *block) limits(c *component, used []float64) []row {
	out := make([]row, len(b.links))
	for n, l := range b.links {
		r := &c.rows[c.coupling[l.row]]
		out[n] = row{name: r.name, vars: l.vars, coefs: l.coefs, sense: LessEqual, rhs: r.rhs - used[l.row]}
	}
	return out
}

func (c *component) assemble(parts [][]int8) []int8 {
	x := make([]int8, len(c.vars))
	for bi, b := range c.blocks {
		for i, v := range b.vars {
			x[v] = parts[bi][i]
		}
	}
	return x
}

// relaxation is the Lagrangian dual of a node at the best multipliers
// found: bound is valid for every completion, x takes each block at its
// optimum under the relaxed costs.
type relaxation struct {
	bound      float64
	lambda     []float64
	x          []int8
	feasible   bool
	infeasible bool
}

// relax runs projected subgradient steps on the multipliers of the coupling
// rows that still bind under fix. Feasible block combinations met on the way
// are offered as incumbents.
func (cs *componentSearch) relax(fix []int8, start []float64, iters int) (*relaxation, error) {
	c := cs.c
	n := len(c.coupling)
	rhs := make([]float64, n)
	active := make([]bool, n)
	lambda := slices.Clone(start)
	for k, i := range c.coupling {
		r := &c.rows[i]
		rhs[k] = r.rhs
		left, _, maxAct, nfree := r.activity(fix)
		active[k] = nfree > 0 && maxAct > left+feasTol
		if !active[k] {
			lambda[k] = 0
		}
	}

	out := &relaxation{bound: math.Inf(1)}
	parts := make([][]int8, len(c.blocks))
	uppers := make([]float64, len(c.blocks))
	prev := make([]float64, n)
	cost := make([]float64, len(c.vars))
	g := make([]float64, n)
	theta, stall := 2.0, 0
	for it := 0; it < iters; it++ {
		if err := cs.ctx.Err(); err != nil {
			return nil, err
		}
		copy(cost, c.obj)
		for k, i := range c.coupling {
			if lambda[k] == 0 {
				continue
			}
			r := &c.rows[i]
			for m, v := range r.vars {
				cost[v] -= lambda[k] * r.coefs[m]
			}
		}
		bound := floats.Dot(lambda, rhs)
		for bi, b := range c.blocks {
			if err := cs.ctx.Err(); err != nil {
				return nil, err
			}
			if it > 0 && !b.moved(lambda, prev) {
				bound += uppers[bi]
				continue
			}
			part, upper, err := b.solve(cs, fix, cost, parts[bi], nil)
			if err != nil {
				return nil, err
			}
			if part == nil {
				out.infeasible = true
				return out, nil
			}
			parts[bi], uppers[bi] = part, upper
			bound += upper
		}
		copy(prev, lambda)

		x := c.assemble(parts)
		feasible := true
		for k, i := range c.coupling {
			left, _, _, _ := c.rows[i].activity(x)
			g[k] = left
			if active[k] && left < -feasTol {
				feasible = false
			}
		}
		if feasible && c.violated(x) < 0 {
			cs.res.offer(x, c.value(x))
		} else if it == 0 {
			// An early incumbent gives the step size a target.
			fixed, err := cs.repair(fix, x)
			if err != nil {
				return nil, err
			}
			if fixed != nil && c.violated(fixed) < 0 {
				cs.res.offer(fixed, c.value(fixed))
			}
		}
		if bound < out.bound {
			out.bound, out.lambda, out.x, out.feasible = bound, slices.Clone(lambda), x, feasible
			stall = 0
		} else if stall++; stall >= 3 {
			theta, stall = theta/2, 0
		}
		if cs.prune(bound, cs.res.value) {
			break
		}

		for k := range g {
			if !active[k] || (lambda[k] == 0 && g[k] > 0) {
				g[k] = 0
			}
		}
		norm := floats.Dot(g, g)
		target := cs.res.value
		if math.IsInf(target, -1) {
			target = bound - max(1, math.Abs(bound)*0.05)
		}
		if norm == 0 || bound <= target {
			break
		}
		step := theta * (bound - target) / norm
		for k := range lambda {
			if active[k] {
				lambda[k] = max(0, lambda[k]-step*g[k])
			}
		}
	}
	return out, nil
}

// repair builds a feasible assignment from x. Blocks are placed in order,
// keeping their part of x when it fits in what the earlier blocks left of
// the coupling rows and solving them at their true costs otherwise. A
// second pass solves every block again against all the others. It returns
// nil when some block cannot be placed.
func (cs *componentSearch) repair(fix, x []int8) ([]int8, error) {
	c := cs.c
	used := make([]float64, len(c.coupling))
	parts := make([][]int8, len(c.blocks))
	for bi, b := range c.blocks {
		if err := cs.ctx.Err(); err != nil {
			return nil, err
		}
		part := b.part(x)
		if !b.fits(c, part, used) {
			var err error
			part, _, err = b.solve(cs, fix, c.obj, nil, b.limits(c, used))
			if err != nil || part == nil {
				return nil, err
			}
		}
		parts[bi] = part
		b.usage(part, used, 1)
	}
	for bi, b := range c.blocks {
		if err := cs.ctx.Err(); err != nil {
			return nil, err
		}
		b.usage(parts[bi], used, -1)
		part, _, err := b.solve(cs, fix, c.obj, parts[bi], b.limits(c, used))
		if err != nil {
			return nil, err
		}
		if part != nil {
			parts[bi] = part
		}
		b.usage(parts[bi], used, 1)
	}
	return c.assemble(parts), nil
}

func (b *block) fits(c *component, part []int8, used []float64) bool {
	for _, l := range b.links {
		left := c.rows[c.coupling[l.row]].rhs - used[l.row]
		for n, v := range l.vars {
			if part[v] == 1 {
				left -= l.coefs[n]
			}
		}
		if left < -feasTol {
			return false
		}
	}
	return true
}

// branching picks the variable to split a node on and the value to try
// first: the least valuable variable taken in the most overfull coupling
// row, or else the most valuable one left out of a row whose multiplier is
// positive. It returns -1 when no variable is free.
func (c *component) branching(fix []int8, rel *relaxation) (int, int8) {
	worst, over := -feasTol, -1
	for k, i := range c.coupling {
		if left, _, _, _ := c.rows[i].activity(rel.x); left < worst {
			worst, over = left, k
		}
	}
	if over >= 0 {
		r := &c.rows[c.coupling[over]]
		v := -1
		for _, u := range r.vars {
			if fix[u] == free && rel.x[u] == 1 && (v < 0 || c.obj[u] < c.obj[v]) {
				v = u
			}
		}
		if v >= 0 {
			return v, 0
		}
	}

	v := -1
	for k, i := range c.coupling {
		if rel.lambda[k] == 0 {
			continue
		}
		for _, u := range c.rows[i].vars {
			if fix[u] == free && rel.x[u] == 0 && (v < 0 || c.obj[u] > c.obj[v]) {
				v = u
			}
		}
	}
	if v < 0 {
		for _, i := range c.coupling {
			for _, u := range c.rows[i].vars {
				if fix[u] == free && (v < 0 || c.obj[u] > c.obj[v]) {
					v = u
				}
			}
		}
	}
	if v < 0 {
		v = slices.Index(fix, free)
	}
	return v, 1
}

type dualNode struct {
	fix    []int8
	lambda []float64
	bound  float64
	branch int
}

// coupled searches a component whose blocks share coupling rows. Every
// node is bounded by its Lagrangian dual, repaired into an incumbent and
// split on a variable of a coupling row.
func (cs *componentSearch) coupled(root []int8) error {
	c, res := cs.c, cs.res
	stack := []dualNode{{fix: root, lambda: make([]float64, len(c.coupling)), bound: math.Inf(1), branch: -1}}
	for len(stack) > 0 {
		if err := cs.ctx.Err(); err != nil {
			return err
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cs.tick(1)

		var queue []int
		if nd.branch >= 0 {
			queue = slices.Clone(c.byVar[nd.branch])
		}
		if propagate(c.rows, c.byVar, nd.fix, queue) >= 0 {
			continue
		}
		if cs.prune(nd.bound, res.value) {
			res.bound = max(res.bound, nd.bound)
			continue
		}
		iters := nodeIterations
		if nd.branch < 0 {
			iters = rootIterations
		}
		rel, err := cs.relax(nd.fix, nd.lambda, iters)
		if err != nil {
			return err
		}
		if rel.infeasible {
			continue
		}
		bound := min(rel.bound, nd.bound)
		if nd.branch < 0 {
			res.root = min(res.root, bound)
		}
		if cs.prune(bound, res.value) {
			res.bound = max(res.bound, bound)
			continue
		}
		if !rel.feasible {
			x, err := cs.repair(nd.fix, rel.x)
			if err != nil {
				return err
			}
			if x != nil && c.violated(x) < 0 {
				res.offer(x, c.value(x))
			}
			if cs.prune(bound, res.value) {
				res.bound = max(res.bound, bound)
				continue
			}
		}

		v, first := c.branching(nd.fix, rel)
		if v < 0 {
			res.bound = max(res.bound, bound)
			continue
		}
		second := slices.Clone(nd.fix)
		second[v] = 1 - first
		nd.fix[v] = first
		stack = append(stack,
			dualNode{fix: second, lambda: rel.lambda, bound: bound, branch: v},
			dualNode{fix: nd.fix, lambda: rel.lambda, bound: bound, branch: v})
	}
	return nil
}
