package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/rhyrak/go-registrar/internal/logging"
)

// Solver maximizes a Problem.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// BranchAndBound is a depth first branch and bound. Gap is the relative
// optimality gap at which a node is pruned; zero asks for a proven optimum.
// A zero TimeLimit leaves the deadline to ctx. When the time limit runs out
// the search fails with ErrTimeLimit unless KeepIncumbent is set, in which
// case the best assignment found so far is returned with status TimeLimit.
type BranchAndBound struct {
	Gap              float64
	TimeLimit        time.Duration
	KeepIncumbent    bool
	Workers          int
	Tolerance        float64
	ProgressInterval time.Duration
}

var _ Solver = (*BranchAndBound)(nil)

const defaultTolerance = 1e-6

type searchResult struct {
	x     []int8
	value float64
	bound float64
	// root bounds the whole component and stands in for the open nodes
	// when the search is stopped early.
	root    float64
	nodes   int
	stopped bool
}

func (r *searchResult) offer(x []int8, value float64) {
	if value > r.value {
		r.x, r.value = slices.Clone(x), value
	}
}

func (s *BranchAndBound) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	logger := logging.FromContext(ctx).WithName("solver")
	if s.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.TimeLimit, ErrTimeLimit)
		defer cancel()
	}
	start := time.Now()

	red, err := presolve(p)
	if err != nil {
		return nil, err
	}
	freeVars, coupled := 0, 0
	for _, c := range red.components {
		freeVars += len(c.vars)
		if len(c.blocks) > 0 {
			coupled++
		}
	}
	logger.Info("presolved model",
		"variables", p.NumVars(), "constraints", p.NumConstraints(),
		"free", freeVars, "redundant", red.dropped,
		"components", len(red.components), "coupled", coupled)

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*searchResult, len(red.components))
	var nodes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range red.components {
		g.Go(func() error {
			res, err := s.search(gctx, p, c, &nodes)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := make([]float64, p.NumVars())
	for v, f := range red.fix {
		if f == 1 {
			values[v] = 1
		}
	}
	status := Optimal
	slack := 0.0
	for i, c := range red.components {
		for k, v := range c.vars {
			values[v] = float64(results[i].x[k])
		}
		slack += results[i].bound - results[i].value
		if results[i].stopped {
			status = TimeLimit
		}
	}
	if err := p.Check(values, defaultTolerance); err != nil {
		return nil, fmt.Errorf("solver: assignment violates the model: %w", err)
	}
	sol := &Solution{
		Values:     values,
		Objective:  p.Evaluate(values),
		Status:     status,
		Nodes:      int(nodes.Load()),
		Components: len(red.components),
	}
	sol.Bound = sol.Objective + slack
	logger.Info("solved model",
		"status", sol.Status, "objective", sol.Objective, "bound", sol.Bound,
		"nodes", sol.Nodes, "elapsed", time.Since(start))
	return sol, nil
}

// componentSearch is the state of one component's search.
type componentSearch struct {
	*BranchAndBound
	ctx     context.Context
	c       *component
	res     *searchResult
	total   *atomic.Int64
	logger  logr.Logger
	lastLog time.Time
}

func (s *BranchAndBound) search(ctx context.Context, p *Problem, c *component, total *atomic.Int64) (*searchResult, error) {
	cs := &componentSearch{
		BranchAndBound: s,
		ctx:            ctx,
		c:              c,
		res:            &searchResult{value: math.Inf(-1), bound: math.Inf(-1)},
		total:          total,
		lastLog:        time.Now(),
		logger: logging.FromContext(ctx).WithName("solver").WithValues(
			"component", c.id, "variables", len(c.vars), "constraints", len(c.rows), "blocks", len(c.blocks)),
	}
	res := cs.res
	root := make([]int8, len(c.vars))
	for v := range root {
		root[v] = free
	}
	res.root = c.bound(root, c.obj)
	zero := make([]int8, len(c.vars))
	if c.violated(zero) < 0 {
		res.x, res.value = zero, 0
	}

	err := ctx.Err()
	if err == nil {
		if len(c.blocks) > 0 {
			err = cs.coupled(root)
		} else {
			err = cs.direct(root)
		}
	}
	if err != nil {
		return s.stopped(ctx, cs, err)
	}

	if res.x == nil {
		e := &InfeasibleModelError{Component: c.id}
		for _, v := range c.vars {
			e.Vars = append(e.Vars, v)
			e.Variables = append(e.Variables, p.names[v])
		}
		for _, r := range c.rows {
			e.Constraints = append(e.Constraints, r.name)
		}
		return nil, e
	}
	res.bound = max(res.bound, res.value)
	cs.logger.V(logging.DEBUG).Info("component solved", "objective", res.value, "bound", res.bound, "nodes", res.nodes)
	return res, nil
}

// stopped turns the end of ctx into the outcome of a component. The
// incumbent survives only when the solver's own time limit ran out and
// KeepIncumbent is set.
func (s *BranchAndBound) stopped(ctx context.Context, cs *componentSearch, err error) (*searchResult, error) {
	res := cs.res
	if s.KeepIncumbent && res.x != nil && errors.Is(context.Cause(ctx), ErrTimeLimit) {
		res.stopped = true
		res.bound = max(res.bound, res.root, res.value)
		cs.logger.Info("time limit reached, keeping incumbent", "objective", res.value, "bound", res.bound, "nodes", res.nodes)
		return res, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrTimeLimit, err)
}

// tick accounts for searched nodes and logs progress.
func (cs *componentSearch) tick(n int) {
	cs.res.nodes += n
	cs.total.Add(int64(n))
	if cs.ProgressInterval > 0 && time.Since(cs.lastLog) >= cs.ProgressInterval {
		cs.lastLog = time.Now()
		cs.logger.Info("search progress", "nodes", cs.res.nodes, "incumbent", cs.res.value)
	}
}

// direct enumerates a component that has no coupling rows to relax.
func (cs *componentSearch) direct(root []int8) error {
	e := newEnumeration(cs.ctx, &cs.c.space, cs.c.obj, cs.prune)
	e.seed(cs.res.x, root)
	e.tick = cs.tick
	err := e.run(root)
	cs.tick(e.nodes % checkEvery)
	if e.best != nil {
		cs.res.offer(e.best, e.value)
	}
	cs.res.bound = max(cs.res.bound, e.upper())
	return err
}

// prune reports whether a node bounded by bound cannot improve on the
// incumbent by more than the gap allows.
func (s *BranchAndBound) prune(bound, incumbent float64) bool {
	if math.IsInf(incumbent, -1) {
		return false
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	return bound <= incumbent+max(tol, s.Gap*math.Abs(incumbent))
}
