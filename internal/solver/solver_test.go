package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knapsack(p *Problem, prefix string) []int {
	a := p.AddVar(prefix+"a", 5)
	b := p.AddVar(prefix+"b", 4)
	c := p.AddVar(prefix+"c", 3)
	p.AddConstraint(prefix+"r1", []Term{{a, 2}, {b, 3}, {c, 1}}, LessEqual, 5)
	p.AddConstraint(prefix+"r2", []Term{{a, 4}, {b, 1}, {c, 2}}, LessEqual, 11)
	p.AddConstraint(prefix+"r3", []Term{{a, 3}, {b, 4}, {c, 2}}, LessEqual, 8)
	return []int{a, b, c}
}

func solve(t *testing.T, p *Problem) *Solution {
	t.Helper()
	sol, err := (&BranchAndBound{Workers: 2}).Solve(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, p.Check(sol.Values, 1e-9))
	return sol
}

func TestKnapsack(t *testing.T) {
	p := NewProblem()
	vars := knapsack(p, "")

	sol := solve(t, p)
	assert.InDelta(t, 9, sol.Objective, 1e-9)
	assert.GreaterOrEqual(t, sol.Bound, sol.Objective)
	assert.True(t, sol.Selected(vars[0]))
	assert.True(t, sol.Selected(vars[1]))
	assert.False(t, sol.Selected(vars[2]))
	assert.InDelta(t, 0, sol.Gap(), 1e-6)
}

func TestEquality(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 3)
	y := p.AddVar("y", 2)
	z := p.AddVar("z", 1)
	p.AddConstraint("pick two", []Term{{x, 1}, {y, 1}, {z, 1}}, Equal, 2)
	p.AddConstraint("x or y", []Term{{x, 1}, {y, 1}}, LessEqual, 1)

	sol := solve(t, p)
	assert.InDelta(t, 4, sol.Objective, 1e-9)
}

func TestFixedAndUnconstrained(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 10)
	y := p.AddVar("y", 1)
	loose := p.AddVar("loose", 2)
	unwanted := p.AddVar("unwanted", -1)
	p.AddConstraint("one", []Term{{x, 1}, {y, 1}}, LessEqual, 1)
	p.Fix(x, 0)

	sol := solve(t, p)
	assert.False(t, sol.Selected(x))
	assert.True(t, sol.Selected(y))
	assert.True(t, sol.Selected(loose))
	assert.False(t, sol.Selected(unwanted))
	assert.InDelta(t, 3, sol.Objective, 1e-9)
}

func TestComponents(t *testing.T) {
	p := NewProblem()
	knapsack(p, "first.")
	knapsack(p, "second.")

	sol := solve(t, p)
	assert.Equal(t, 2, sol.Components)
	assert.InDelta(t, 18, sol.Objective, 1e-9)
}

func TestInfeasibleInPresolve(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1)
	y := p.AddVar("y", 1)
	p.AddConstraint("too many", []Term{{x, 1}, {y, 1}}, Equal, 3)

	_, err := (&BranchAndBound{}).Solve(context.Background(), p)
	var infeasible *InfeasibleModelError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, []string{"too many"}, infeasible.Constraints)
	assert.ElementsMatch(t, []string{"x", "y"}, infeasible.Variables)
}

func TestInfeasibleInSearch(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1)
	y := p.AddVar("y", 1)
	z := p.AddVar("z", 1)
	p.AddConstraint("xy", []Term{{x, 1}, {y, 1}}, LessEqual, 1)
	p.AddConstraint("yz", []Term{{y, 1}, {z, 1}}, LessEqual, 1)
	p.AddConstraint("xz", []Term{{x, 1}, {z, 1}}, LessEqual, 1)
	p.AddConstraint("two", []Term{{x, 1}, {y, 1}, {z, 1}}, Equal, 2)

	_, err := (&BranchAndBound{}).Solve(context.Background(), p)
	var infeasible *InfeasibleModelError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, 0, infeasible.Component)
	assert.Equal(t, []int{x, y, z}, infeasible.Vars)
	assert.Contains(t, err.Error(), "component 0")
}

func TestTimeLimit(t *testing.T) {
	p := NewProblem()
	knapsack(p, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&BranchAndBound{}).Solve(ctx, p)
	assert.ErrorIs(t, err, ErrTimeLimit)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = (&BranchAndBound{TimeLimit: time.Nanosecond}).Solve(context.Background(), p)
	assert.ErrorIs(t, err, ErrTimeLimit)
}

func TestGap(t *testing.T) {
	p := NewProblem()
	knapsack(p, "")

	sol, err := (&BranchAndBound{Gap: 0.5}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sol.Objective*1.5+1e-6, sol.Bound)
	assert.GreaterOrEqual(t, sol.Bound, 9-1e-6)
}

func TestPropagation(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1)
	y := p.AddVar("y", 5)
	z := p.AddVar("z", 1)
	p.AddConstraint("pair", []Term{{x, 1}, {y, 1}}, LessEqual, 1)
	p.AddConstraint("link", []Term{{z, 1}, {x, -1}}, Equal, 0)
	p.AddConstraint("loose", []Term{{x, 1}, {z, 1}}, LessEqual, 2)
	p.Fix(x, 1)

	red, err := presolve(p)
	require.NoError(t, err)
	assert.Equal(t, []int8{1, 0, 1}, red.fix)
	assert.Empty(t, red.components)
	assert.Equal(t, 3, red.dropped)
}

func TestAddConstraintMergesTerms(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1)
	y := p.AddVar("y", 1)
	p.AddConstraint("merged", []Term{{x, 1}, {y, 2}, {x, 2}, {y, -2}}, LessEqual, 3)

	require.Equal(t, 1, p.NumConstraints())
	assert.Equal(t, []Term{{x, 3}}, p.rows[0].Terms)
	assert.Panics(t, func() { p.AddConstraint("bad", []Term{{7, 1}}, LessEqual, 1) })
}

func TestCheck(t *testing.T) {
	p := NewProblem()
	vars := knapsack(p, "")
	p.Fix(vars[2], 0)

	assert.NoError(t, p.Check([]float64{1, 1, 0}, 1e-9))
	assert.ErrorContains(t, p.Check([]float64{1, 1, 1}, 1e-9), "fixed")
	assert.ErrorContains(t, p.Check([]float64{1, 1}, 1e-9), "2 values")

	q := NewProblem()
	knapsack(q, "")
	assert.ErrorContains(t, q.Check([]float64{1, 1, 1}, 1e-9), "r1")
}

// bruteForce enumerates every assignment of a small problem.
func bruteForce(p *Problem) (float64, bool) {
	n := p.NumVars()
	best, found := math.Inf(-1), false
	x := make([]float64, n)
	for mask := 0; mask < 1<<n; mask++ {
		for v := range x {
			x[v] = float64(mask >> v & 1)
		}
		if p.Check(x, 1e-9) != nil {
			continue
		}
		if val := p.Evaluate(x); val > best {
			best, found = val, true
		}
	}
	return best, found
}

func TestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 25; trial++ {
		t.Run(fmt.Sprint(trial), func(t *testing.T) {
			p := NewProblem()
			n := 6 + rng.IntN(7)
			for v := 0; v < n; v++ {
				p.AddVar(fmt.Sprintf("v%d", v), float64(rng.IntN(25)+1))
			}
			for r := 0; r < n/2+1; r++ {
				var terms []Term
				total := 0.0
				for v := 0; v < n; v++ {
					if rng.IntN(3) == 0 {
						c := float64(rng.IntN(5) + 1)
						terms = append(terms, Term{v, c})
						total += c
					}
				}
				p.AddConstraint(fmt.Sprintf("cap%d", r), terms, LessEqual, math.Floor(total/2))
			}
			if trial%3 == 0 {
				p.AddConstraint("link", []Term{{0, 1}, {1, 1}, {2, -1}}, Equal, 1)
			}

			want, ok := bruteForce(p)
			sol, err := (&BranchAndBound{Workers: 1}).Solve(context.Background(), p)
			if !ok {
				var infeasible *InfeasibleModelError
				assert.True(t, errors.As(err, &infeasible), "expected infeasible, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, want, sol.Objective, 1e-6)
			assert.NoError(t, p.Check(sol.Values, 1e-9))
		})
	}
}

func TestWriteLP(t *testing.T) {
	p := NewProblem()
	a := p.AddVar("a", 5)
	b := p.AddVar("b", 4)
	c := p.AddVar("x[S1,LUNCH M]", 0)
	p.AddConstraint("cap", []Term{{a, 2}, {b, 3}}, LessEqual, 5)
	p.AddConstraint("link", []Term{{c, 1}, {a, -1}}, Equal, 0)
	p.Fix(b, 0)

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, p))
	out := buf.String()
	assert.Contains(t, out, "Maximize\n obj: 5 x_a#0 + 4 x_b#1\n")
	assert.Contains(t, out, " c_cap#0: 2 x_a#0 + 3 x_b#1 <= 5\n")
	assert.Contains(t, out, " c_link#1: x_x_S1,LUNCH_M_#2 - x_a#0 = 0\n")
	assert.Contains(t, out, "Bounds\n x_b#1 = 0\n")
	assert.Contains(t, out, "Binaries\n x_a#0 x_b#1 x_x_S1,LUNCH_M_#2\nEnd\n")

	assert.Error(t, WriteLP(&buf, NewProblem()))
}

func TestBound(t *testing.T) {
	sp := newSpace([]float64{5, 4, 3, 2}, []row{
		{name: "pick one", vars: []int{0, 1}, coefs: []float64{1, 1}, rhs: 1},
		{name: "load", vars: []int{0, 1, 2, 3}, coefs: []float64{1, 1, 1, 1}, rhs: 2},
	})
	require.Equal(t, []int{0}, sp.cliques)
	require.Equal(t, []int{1}, sp.knapsacks)

	fix := []int8{free, free, free, free}
	assert.InDelta(t, 8, sp.bound(fix, sp.obj), 1e-9)
	fix[0] = 0
	assert.InDelta(t, 7, sp.bound(fix, sp.obj), 1e-9)
	fix[2] = 1
	assert.InDelta(t, 7, sp.bound(fix, sp.obj), 1e-9)
	fix[1], fix[3] = 0, 0
	assert.InDelta(t, 3, sp.bound(fix, sp.obj), 1e-9)
}

func TestCoupledSeats(t *testing.T) {
	p := NewProblem()
	var popular []Term
	for s := 0; s < 3; s++ {
		a := p.AddVar(fmt.Sprintf("x[S%d,A]", s), 5)
		b := p.AddVar(fmt.Sprintf("x[S%d,B]", s), 3)
		p.AddConstraint(fmt.Sprintf("one[S%d]", s), []Term{{a, 1}, {b, 1}}, LessEqual, 1)
		popular = append(popular, Term{a, 1})
	}
	p.AddCoupling("seats[A]", popular, 1)

	red, err := presolve(p)
	require.NoError(t, err)
	require.Len(t, red.components, 1)
	assert.Len(t, red.components[0].blocks, 3)
	assert.Equal(t, []int{3}, red.components[0].coupling)

	sol := solve(t, p)
	assert.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 11, sol.Objective, 1e-9)
	assert.GreaterOrEqual(t, sol.Bound, sol.Objective-1e-9)
}

func TestCouplingWithNegativeTermsStaysWhole(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 2)
	y := p.AddVar("y", 3)
	p.AddCoupling("mixed", []Term{{x, 1}, {y, -1}}, 0)
	p.AddConstraint("cap", []Term{{x, 1}, {y, 1}}, LessEqual, 1)

	red, err := presolve(p)
	require.NoError(t, err)
	require.Len(t, red.components, 1)
	assert.Empty(t, red.components[0].blocks)

	sol := solve(t, p)
	assert.InDelta(t, 3, sol.Objective, 1e-9)
}

func TestCoupledMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	const per = 3
	for trial := 0; trial < 20; trial++ {
		t.Run(fmt.Sprint(trial), func(t *testing.T) {
			p := NewProblem()
			blocks := 2 + rng.IntN(3)
			for b := 0; b < blocks; b++ {
				var local []Term
				for k := 0; k < per; k++ {
					v := p.AddVar(fmt.Sprintf("b%dv%d", b, k), float64(rng.IntN(20)+1))
					local = append(local, Term{v, float64(rng.IntN(3) + 1)})
				}
				p.AddConstraint(fmt.Sprintf("local%d", b), local, LessEqual, float64(2+rng.IntN(3)))
			}
			for k := 0; k < per; k++ {
				var shared []Term
				for b := 0; b < blocks; b++ {
					if rng.IntN(4) > 0 {
						shared = append(shared, Term{b*per + k, float64(rng.IntN(2) + 1)})
					}
				}
				p.AddCoupling(fmt.Sprintf("seats%d", k), shared, float64(rng.IntN(3)+1))
			}
			if trial%4 == 0 {
				p.AddConstraint("link", []Term{{0, 1}, {1, -1}}, Equal, 0)
			}

			want, ok := bruteForce(p)
			require.True(t, ok)
			sol, err := (&BranchAndBound{Workers: 1}).Solve(context.Background(), p)
			require.NoError(t, err)
			assert.InDelta(t, want, sol.Objective, 1e-6)
			assert.GreaterOrEqual(t, sol.Bound, want-1e-6)
			assert.NoError(t, p.Check(sol.Values, 1e-9))
		})
	}
}

func TestTimeLimitInsideSearch(t *testing.T) {
	p := NewProblem()
	var terms []Term
	for v := 0; v < 40; v++ {
		terms = append(terms, Term{p.AddVar(fmt.Sprintf("v%d", v), 1), 2})
	}
	// Even coefficients never add up to an odd total, which no bound sees,
	// so a single search runs far past the limit.
	p.AddConstraint("odd", terms, Equal, 41)

	for _, keep := range []bool{false, true} {
		start := time.Now()
		_, err := (&BranchAndBound{TimeLimit: 50 * time.Millisecond, KeepIncumbent: keep}).Solve(context.Background(), p)
		assert.ErrorIs(t, err, ErrTimeLimit)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	}
}

func TestKeepIncumbent(t *testing.T) {
	p := NewProblem()
	knapsack(p, "")
	s := &BranchAndBound{TimeLimit: time.Nanosecond, KeepIncumbent: true}

	sol, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, TimeLimit, sol.Status)
	assert.Equal(t, "time limit", sol.Status.String())
	assert.NoError(t, p.Check(sol.Values, 1e-9))
	assert.GreaterOrEqual(t, sol.Bound, 9.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Solve(ctx, p)
	assert.ErrorIs(t, err, ErrTimeLimit)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoupledTimeLimit(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const students, sections = 60, 30
	p := NewProblem()
	seats := make([][]Term, sections)
	for s := 0; s < students; s++ {
		var load []Term
		for j := 0; j < sections; j++ {
			v := p.AddVar(fmt.Sprintf("x[%d,%d]", s, j), float64(rng.IntN(25)+1))
			load = append(load, Term{v, 1})
			seats[j] = append(seats[j], Term{v, 1})
		}
		p.AddConstraint(fmt.Sprintf("load[%d]", s), load, LessEqual, 4)
	}
	for j := range seats {
		p.AddCoupling(fmt.Sprintf("seats[%d]", j), seats[j], 5)
	}

	limit := 200 * time.Millisecond
	start := time.Now()
	sol, err := (&BranchAndBound{TimeLimit: limit, KeepIncumbent: true, Workers: 2}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), limit+2*time.Second)
	assert.NoError(t, p.Check(sol.Values, 1e-9))
	assert.Positive(t, sol.Objective)
	assert.GreaterOrEqual(t, sol.Bound, sol.Objective-1e-6)
}
