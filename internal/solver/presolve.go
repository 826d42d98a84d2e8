package solver

import (
	"cmp"
	"slices"
)

const feasTol = 1e-9

// row is a constraint over the variables of one search space. Variables are
// indices into that space's fix vector.
type row struct {
	name     string
	vars     []int
	coefs    []float64
	sense    Sense
	rhs      float64
	coupling bool
}

// activity sums a row under a partial fixing. rhs is reduced by the fixed
// ones and min/max are the extreme contributions of the free variables.
func (r *row) activity(fix []int8) (rhs, minAct, maxAct float64, nfree int) {
	rhs = r.rhs
	for k, v := range r.vars {
		c := r.coefs[k]
		switch fix[v] {
		case free:
			nfree++
			if c < 0 {
				minAct += c
			} else {
				maxAct += c
			}
		case 1:
			rhs -= c
		}
	}
	return rhs, minAct, maxAct, nfree
}

// tighten fixes every free variable of r whose value is implied by the
// other variables' bounds. It appends fixed variables to changed and
// reports false when the row cannot be satisfied.
func (r *row) tighten(fix []int8, changed []int) ([]int, bool) {
	rhs, minAct, maxAct, nfree := r.activity(fix)
	if minAct > rhs+feasTol {
		return changed, false
	}
	if r.sense == Equal && maxAct < rhs-feasTol {
		return changed, false
	}
	if nfree == 0 {
		return changed, true
	}
	for k, v := range r.vars {
		if fix[v] != free {
			continue
		}
		c := r.coefs[k]
		switch {
		case c > 0 && minAct+c > rhs+feasTol:
			fix[v] = 0
		case c < 0 && minAct-c > rhs+feasTol:
			fix[v] = 1
		case r.sense == Equal && c > 0 && maxAct-c < rhs-feasTol:
			fix[v] = 1
		case r.sense == Equal && c < 0 && maxAct+c < rhs-feasTol:
			fix[v] = 0
		default:
			continue
		}
		changed = append(changed, v)
	}
	return changed, true
}

// redundant reports whether r holds for every completion of fix.
func (r *row) redundant(fix []int8) bool {
	rhs, _, maxAct, nfree := r.activity(fix)
	if nfree == 0 {
		return true
	}
	return r.sense == LessEqual && maxAct <= rhs+feasTol
}

// propagate runs row tightening to a fixpoint. It returns the index of a
// row proven infeasible, or -1.
func propagate(rows []row, byVar [][]int, fix []int8, queue []int) int {
	queued := make([]bool, len(rows))
	if queue == nil {
		queue = make([]int, len(rows))
		for i := range rows {
			queue[i] = i
		}
	}
	for _, i := range queue {
		queued[i] = true
	}
	var changed []int
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		queued[i] = false
		var ok bool
		changed, ok = rows[i].tighten(fix, changed[:0])
		if !ok {
			return i
		}
		for _, v := range changed {
			for _, j := range byVar[v] {
				if !queued[j] {
					queued[j] = true
					queue = append(queue, j)
				}
			}
		}
	}
	return -1
}

func indexRows(rows []row, n int) [][]int {
	byVar := make([][]int, n)
	for i, r := range rows {
		for _, v := range r.vars {
			byVar[v] = append(byVar[v], i)
		}
	}
	return byVar
}

// space is a set of binary variables and the rows over them. Variables are
// local indices.
type space struct {
	obj   []float64
	rows  []row
	byVar [][]int
	// cliques are rows that admit at most one variable at 1, knapsacks the
	// other rows with nonnegative coefficients.
	cliques   []int
	knapsacks []int
}

func newSpace(obj []float64, rows []row) *space {
	s := &space{obj: obj, rows: rows}
	s.index()
	return s
}

func (s *space) index() {
	s.byVar = indexRows(s.rows, len(s.obj))
	s.cliques, s.knapsacks = s.cliques[:0], s.knapsacks[:0]
	for i := range s.rows {
		r := &s.rows[i]
		if len(r.coefs) < 2 || slices.Min(r.coefs) <= 0 {
			continue
		}
		// Any two variables together overflow the row.
		low := slices.Clone(r.coefs)
		slices.Sort(low)
		if low[0]+low[1] > r.rhs+feasTol {
			s.cliques = append(s.cliques, i)
			continue
		}
		s.knapsacks = append(s.knapsacks, i)
	}
	// Larger cliques first so they claim variables before the small ones.
	slices.SortStableFunc(s.cliques, func(a, b int) int {
		return cmp.Compare(len(s.rows[b].vars), len(s.rows[a].vars))
	})
}

// component is an independent part of the presolved problem. Its variables
// are local indices; vars maps them back to the problem.
type component struct {
	space
	id   int
	vars []int
	// coupling lists the rows relaxed by the dual search and blocks the
	// parts they tie together. Both are empty when the component is
	// searched directly.
	coupling []int
	blocks   []*block
}

// reduction is the outcome of presolve: a full fixing for every variable
// outside the components.
type reduction struct {
	fix        []int8
	components []*component
	dropped    int
}

func presolve(p *Problem) (*reduction, error) {
	rows := make([]row, len(p.rows))
	for i, c := range p.rows {
		r := row{name: c.Name, sense: c.Sense, rhs: c.RHS, coupling: c.Coupling}
		for _, t := range c.Terms {
			r.vars = append(r.vars, t.Var)
			r.coefs = append(r.coefs, t.Coef)
		}
		rows[i] = r
	}
	fix := slices.Clone(p.fixed)
	if bad := propagate(rows, indexRows(rows, len(fix)), fix, nil); bad >= 0 {
		return nil, infeasibleRow(p, rows[bad])
	}

	// Keep the rows that still bind and substitute the fixed variables.
	var active []row
	dropped := 0
	for _, r := range rows {
		if r.redundant(fix) {
			dropped++
			continue
		}
		rhs, _, _, _ := r.activity(fix)
		reduced := row{name: r.name, sense: r.sense, rhs: rhs, coupling: r.coupling}
		for k, v := range r.vars {
			if fix[v] == free {
				reduced.vars = append(reduced.vars, v)
				reduced.coefs = append(reduced.coefs, r.coefs[k])
			}
		}
		active = append(active, reduced)
	}

	uf := newUnionFind(len(fix))
	bound := make([]bool, len(fix))
	for _, r := range active {
		for _, v := range r.vars {
			bound[v] = true
			uf.union(r.vars[0], v)
		}
	}
	// An unconstrained free variable takes its better value.
	for v, f := range fix {
		if f == free && !bound[v] {
			fix[v] = 0
			if p.obj[v] > 0 {
				fix[v] = 1
			}
		}
	}

	byRoot := make(map[int]*component)
	var comps []*component
	local := make([]int, len(fix))
	for v, f := range fix {
		if f != free {
			continue
		}
		root := uf.find(v)
		c, ok := byRoot[root]
		if !ok {
			c = &component{}
			byRoot[root] = c
			comps = append(comps, c)
		}
		local[v] = len(c.vars)
		c.vars = append(c.vars, v)
		c.obj = append(c.obj, p.obj[v])
	}
	for _, r := range active {
		c := byRoot[uf.find(r.vars[0])]
		lr := row{name: r.name, sense: r.sense, rhs: r.rhs, coupling: r.coupling, coefs: r.coefs, vars: make([]int, len(r.vars))}
		for k, v := range r.vars {
			lr.vars[k] = local[v]
		}
		c.rows = append(c.rows, lr)
	}
	// Largest first so the long searches start early.
	slices.SortStableFunc(comps, func(a, b *component) int {
		return cmp.Compare(len(b.vars), len(a.vars))
	})
	for i, c := range comps {
		c.id = i
		c.index()
		c.split()
	}
	return &reduction{fix: fix, components: comps, dropped: dropped}, nil
}

func infeasibleRow(p *Problem, r row) *InfeasibleModelError {
	e := &InfeasibleModelError{Component: -1, Constraints: []string{r.name}}
	for _, v := range r.vars {
		e.Vars = append(e.Vars, v)
		e.Variables = append(e.Variables, p.names[v])
	}
	return e
}

type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]uint8, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
