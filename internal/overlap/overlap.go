// Package overlap precomputes which sections meet at the same time.
package overlap

import (
	"context"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Index holds the symmetric conflict relation of a catalog. It is read-only
// after Build and safe for concurrent use.
type Index struct {
	ids       []model.SectionID
	pos       map[model.SectionID]int
	conflicts [][]int
	pairs     int
}

// Build compares every pair of sections. Rows are computed concurrently by
// up to workers goroutines; workers <= 0 uses GOMAXPROCS.
func Build(ctx context.Context, sections []*model.Section, workers int) (*Index, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	x := &Index{
		ids:       make([]model.SectionID, len(sections)),
		pos:       make(map[model.SectionID]int, len(sections)),
		conflicts: make([][]int, len(sections)),
	}
	for i, s := range sections {
		x.ids[i] = s.ID
		x.pos[s.ID] = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sections {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := sections[i]
			if !a.HasMeetings() {
				return nil
			}
			var row []int
			for j, b := range sections {
				if i != j && a.Overlaps(b) {
					row = append(row, j)
				}
			}
			x.conflicts[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, row := range x.conflicts {
		x.pairs += len(row)
	}
	x.pairs /= 2

	logging.FromContext(ctx).WithName("overlap").V(logging.DEBUG).Info("overlap index built",
		"sections", len(sections), "conflictingPairs", x.pairs)
	return x, nil
}

// Conflicts returns the sections that meet at the same time as id, in
// catalog order.
func (x *Index) Conflicts(id model.SectionID) []model.SectionID {
	i, ok := x.pos[id]
	if !ok {
		return nil
	}
	out := make([]model.SectionID, len(x.conflicts[i]))
	for k, j := range x.conflicts[i] {
		out[k] = x.ids[j]
	}
	return out
}

// Conflict reports whether a and b cannot both be taken.
func (x *Index) Conflict(a, b model.SectionID) bool {
	i, ok := x.pos[a]
	if !ok {
		return false
	}
	j, ok := x.pos[b]
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(x.conflicts[i], j)
	return found
}

// Pairs is the number of unordered conflicting pairs.
func (x *Index) Pairs() int {
	return x.pairs
}

func (x *Index) Len() int {
	return len(x.ids)
}
