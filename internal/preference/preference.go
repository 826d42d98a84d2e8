// Package preference converts each student's ranked requests into per
// section priority weights, applying placement precedence and rank
// compaction.
package preference

import (
	"context"
	"math"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/internal/placement"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Miscalibration flags a special placement that pointed a request at a
// course the student should not be offered.
type Miscalibration struct {
	Placement string
	Choice    int
	Request   string
}

// Result is the derived, read-only view of one student.
type Result struct {
	Student *model.Student
	// Priority holds the nonzero ranks; lunch blocks included.
	Priority map[model.SectionID]float64
	// RequestedAs maps each ranked section to the request text that named it.
	RequestedAs map[model.SectionID]string
	// Departments is the catalog department map with cross-listed courses
	// filed under the department the student used.
	Departments   map[string][]model.SectionID
	Placements    []placement.Placement
	Unresolved    []string
	Miscalibrated []Miscalibration
}

// Rank returns the priority of a section, 0 when not wanted.
func (r *Result) Rank(id model.SectionID) float64 {
	return r.Priority[id]
}

type deptState int

const (
	deptOpen deptState = iota
	deptResolved
)

// deptStates tracks placement precedence per department. A department
// moves from open to resolved once and never back.
type deptStates map[string]deptState

func (d deptStates) resolve(dept string) bool {
	if d[dept] == deptResolved {
		return false
	}
	d[dept] = deptResolved
	return true
}

// Normalizer is safe for concurrent use; all per-student state is local to
// Normalize.
type Normalizer struct {
	cat       *catalog.Catalog
	rules     *rules.Rules
	placement *placement.Resolver
	slots     int
}

func NewNormalizer(cat *catalog.Catalog, r *rules.Rules, resolver *placement.Resolver, slots int) *Normalizer {
	if slots <= 0 {
		slots = model.MaxRankedRequests
	}
	return &Normalizer{cat: cat, rules: r, placement: resolver, slots: slots}
}

// Normalize walks the ranked requests from most to least preferred. The
// first request is worth slots, the next one less; a skipped request bumps
// the adjustment so the following ranks stay contiguous.
func (n *Normalizer) Normalize(ctx context.Context, s *model.Student) *Result {
	logger := logging.FromContext(ctx).WithName("preference").WithValues("student", s.ID)

	res := &Result{
		Student:     s,
		Priority:    make(map[model.SectionID]float64),
		RequestedAs: make(map[model.SectionID]string),
		Departments: n.cat.Departments(),
		Placements:  n.placement.Resolve(s.PlacementText, s.ExamMap()),
	}
	n.addLunches(res)

	explored := make(map[model.SectionID]bool)
	depts := make(deptStates)
	adjustment := 0

	for i := 0; i < n.slots; i++ {
		var raw string
		if i < len(s.Requests) {
			raw = strings.ToUpper(strings.TrimSpace(s.Requests[i]))
		}
		if raw == "" {
			adjustment++
			continue
		}
		dept := raw
		if f := strings.Fields(raw); len(f) > 0 {
			dept = f[0]
		}

		found := n.cat.ResolveFirst(raw, raw+n.rules.Markers.RequestQualifier, trimLast(raw))
		if !found.Found() {
			logger.Info("request not found in catalog", "request", raw)
			res.Unresolved = append(res.Unresolved, raw)
			adjustment++
			continue
		}
		course := found.Course
		if explored[course] || n.cat.IsLab(course) {
			adjustment++
			continue
		}
		rank := n.slots - i + adjustment
		if found.Raw != raw {
			logger.V(logging.DEBUG).Info("adjusted request", "request", raw, "as", found.Raw, "rank", rank)
		}
		explored[course] = true

		if n.placement.HasLevels(dept, n.title(course)) {
			if !depts.resolve(dept) {
				adjustment++
				continue
			}
			d := n.placement.Decide(dept, n.title(course), res.Placements)
			switch d.Outcome {
			case placement.UsePlacement, placement.DefaultLevel:
				course = model.SectionID(d.Course)
				explored[course] = true
			case placement.FanOut:
				for _, t := range d.Special.Targets {
					if t.Multiplier == 0 {
						adjustment++
						res.Miscalibrated = append(res.Miscalibrated, Miscalibration{
							Placement: d.Special.Label,
							Choice:    n.slots + 1 - rank,
							Request:   raw,
						})
						logger.Info("possible placement miscalibration",
							"placement", d.Special.Label, "request", raw, "target", t.Course)
					}
					w := math.RoundToEven(float64(rank) * t.Multiplier)
					target := model.SectionID(t.Course)
					for _, sec := range n.targetSections(target) {
						res.set(sec, w, raw)
					}
					explored[target] = true
				}
				rank = 0
			case placement.Drop:
				logger.V(logging.DEBUG).Info("request dropped, placement required", "request", raw, "department", dept)
				adjustment++
				continue
			}
		}

		if len(n.cat.CrossListing(course)) > 0 && !slices.Contains(res.Departments[dept], course) {
			res.Departments[dept] = append(res.Departments[dept], course)
		}
		if rank == 0 {
			continue
		}
		for _, sec := range n.cat.Members(course) {
			res.set(sec, float64(rank), raw)
		}
	}
	return res
}

func (r *Result) set(id model.SectionID, w float64, raw string) {
	if w == 0 {
		delete(r.Priority, id)
	} else {
		r.Priority[id] = w
	}
	r.RequestedAs[id] = raw
}

func (n *Normalizer) addLunches(res *Result) {
	blocks := n.rules.LunchBlocks()
	days := n.rules.Lunch.Days
	for i := 0; i < len(days); i++ {
		for _, b := range blocks {
			id := catalog.LunchID(days[i], b.Start)
			if _, ok := n.cat.Section(id); ok {
				res.Priority[id] = n.rules.LunchWeight(b)
			}
		}
	}
}

// targetSections expands a group id to all of its sections; a single
// section id stands for itself.
func (n *Normalizer) targetSections(id model.SectionID) []model.SectionID {
	s, ok := n.cat.Section(id)
	if !ok {
		return nil
	}
	if s.Group == s.ID {
		return n.cat.Members(id)
	}
	return []model.SectionID{id}
}

func (n *Normalizer) title(id model.SectionID) string {
	if s, ok := n.cat.Section(id); ok {
		return s.Title
	}
	return string(id)
}

// NormalizeAll normalizes students concurrently. Results keep input order.
func (n *Normalizer) NormalizeAll(ctx context.Context, students []*model.Student, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]*Result, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range students {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = n.Normalize(gctx, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func trimLast(s string) string {
	r := []rune(s)
	if len(r) <= 1 {
		return ""
	}
	return string(r[:len(r)-1])
}
