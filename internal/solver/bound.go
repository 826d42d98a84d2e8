package solver

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// item is a set of free variables of which at most one can be 1.
type item struct {
	value float64
	size  int
}

// bound is an upper bound on cost·x over every completion of fix.
//
// Free variables with a positive cost are grouped by clique rows into
// items worth their best member. Without further rows the bound is the sum
// of the items; each knapsack row then caps the items it weighs by a
// fractional knapsack, and the smallest cap wins.
func (s *space) bound(fix []int8, cost []float64) float64 {
	base := 0.0
	for v, f := range fix {
		if f == 1 {
			base += cost[v]
		}
	}

	itemOf := make([]int, len(fix))
	for v := range itemOf {
		itemOf[v] = -1
	}
	var items []item
	for _, i := range s.cliques {
		k := -1
		for _, v := range s.rows[i].vars {
			if fix[v] != free || cost[v] <= 0 || itemOf[v] >= 0 {
				continue
			}
			if k < 0 {
				k = len(items)
				items = append(items, item{})
			}
			itemOf[v] = k
			items[k].value = max(items[k].value, cost[v])
			items[k].size++
		}
	}
	for v, f := range fix {
		if f == free && cost[v] > 0 && itemOf[v] < 0 {
			itemOf[v] = len(items)
			items = append(items, item{value: cost[v], size: 1})
		}
	}
	if len(items) == 0 {
		return base
	}
	values := make([]float64, len(items))
	for k, it := range items {
		values[k] = it.value
	}
	total := floats.Sum(values)

	best := total
	seen := make([]int, len(items))
	weight := make([]float64, len(items))
	var touched []int
	for _, i := range s.knapsacks {
		r := &s.rows[i]
		capacity := r.rhs
		touched = touched[:0]
		for n, v := range r.vars {
			switch {
			case fix[v] == 1:
				capacity -= r.coefs[n]
			case fix[v] == free && itemOf[v] >= 0:
				k := itemOf[v]
				if seen[k] == 0 {
					touched = append(touched, k)
					weight[k] = math.Inf(1)
				}
				seen[k]++
				weight[k] = min(weight[k], r.coefs[n])
			}
		}
		if len(touched) > 0 {
			best = min(best, knapsack(total, items, touched, seen, weight, max(capacity, 0)))
		}
		for _, k := range touched {
			seen[k] = 0
		}
	}
	return base + best
}

// knapsack bounds the items when those in touched that are fully covered
// by the row share capacity. Items the row does not fully weigh are free.
func knapsack(total float64, items []item, touched, seen []int, weight []float64, capacity float64) float64 {
	var weighed []int
	for _, k := range touched {
		if seen[k] == items[k].size && weight[k] > 0 {
			weighed = append(weighed, k)
			total -= items[k].value
		}
	}
	slices.SortFunc(weighed, func(a, b int) int {
		return cmp.Compare(items[b].value/weight[b], items[a].value/weight[a])
	})
	for _, k := range weighed {
		if capacity <= 0 {
			break
		}
		take := min(1, capacity/weight[k])
		total += take * items[k].value
		capacity -= take * weight[k]
	}
	return total
}
