package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/internal/metrics"
	"github.com/rhyrak/go-registrar/internal/overlap"
	"github.com/rhyrak/go-registrar/internal/placement"
	"github.com/rhyrak/go-registrar/internal/preference"
	"github.com/rhyrak/go-registrar/internal/result"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/internal/solver"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Plan holds everything derived from the inputs before the model is built.
type Plan struct {
	Config       *Configuration
	Rules        *rules.Rules
	Catalog      *catalog.Catalog
	Overlap      *overlap.Index
	Preferences  []*preference.Result
	NoPriorities []*model.Student
	Metrics      *metrics.Recorder
}

// Prepare builds the catalog, the overlap index and the priorities of every
// student with at least one request.
func Prepare(ctx context.Context, cfg *Configuration, r *rules.Rules, records []model.CatalogRecord, students []*model.Student, rec *metrics.Recorder) (*Plan, error) {
	logger := logging.FromContext(ctx).WithName("scheduler")
	p := &Plan{Config: cfg, Rules: r, Metrics: rec}

	start := time.Now()
	cat, err := catalog.Build(ctx, records, r)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	p.Catalog = cat
	rec.Sections(cat.Len())
	rec.Diagnostic("no_meetings", len(cat.NoMeetings()))
	rec.Phase("catalog", start)

	start = time.Now()
	over, err := overlap.Build(ctx, cat.Sections(), cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("building overlap index: %w", err)
	}
	p.Overlap = over
	rec.Phase("overlap", start)

	start = time.Now()
	var ranked []*model.Student
	for _, s := range students {
		if !s.HasRequests() {
			logger.Info("student has no priorities", "student", s.ID, "name", s.Name)
			p.NoPriorities = append(p.NoPriorities, s)
			continue
		}
		ranked = append(ranked, s)
	}
	n := preference.NewNormalizer(cat, r, placement.NewResolver(cat, r), cfg.RankedSlots)
	prefs, err := n.NormalizeAll(ctx, ranked, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("normalizing preferences: %w", err)
	}
	p.Preferences = prefs
	rec.Students("loaded", len(students))
	rec.Students("no_priorities", len(p.NoPriorities))
	rec.Students("scheduled", len(prefs))
	rec.Phase("preferences", start)

	d := p.Diagnostics()
	rec.Diagnostic("unresolved_request", d.UnresolvedRequests)
	rec.Diagnostic("unresolved_placement", d.UnresolvedPlacements)
	rec.Diagnostic("miscalibrated_placement", len(d.Miscalibrated))
	logger.Info("preferences normalized",
		"students", len(prefs), "noPriorities", len(p.NoPriorities),
		"unresolvedRequests", d.UnresolvedRequests, "unresolvedPlacements", d.UnresolvedPlacements,
		"miscalibrated", len(d.Miscalibrated))
	return p, nil
}

// Diagnostics counts the non-fatal findings of a plan.
type Diagnostics struct {
	UnresolvedRequests   int
	UnresolvedPlacements int
	Miscalibrated        map[string][]preference.Miscalibration
}

func (p *Plan) Diagnostics() Diagnostics {
	d := Diagnostics{Miscalibrated: make(map[string][]preference.Miscalibration)}
	for _, pr := range p.Preferences {
		d.UnresolvedRequests += len(pr.Unresolved)
		for _, pl := range pr.Placements {
			if !pl.Found {
				d.UnresolvedPlacements++
			}
		}
		if len(pr.Miscalibrated) > 0 {
			d.Miscalibrated[pr.Student.ID] = pr.Miscalibrated
		}
	}
	return d
}

// Build creates the assignment model of the plan.
func (p *Plan) Build(ctx context.Context) (*Model, error) {
	start := time.Now()
	m, err := NewBuilder(p.Config, p.Catalog, p.Overlap, p.Rules).Build(ctx, p.Preferences)
	if err != nil {
		return nil, fmt.Errorf("building model: %w", err)
	}
	p.Metrics.ModelSize("variables", m.Problem.NumVars())
	p.Metrics.ModelSize("fixed", m.Problem.NumFixed())
	p.Metrics.ModelSize("constraints", m.Problem.NumConstraints())
	p.Metrics.Phase("build", start)
	return m, nil
}

// Outcome is the result of a successful solve.
type Outcome struct {
	Solution   *solver.Solution
	Assignment *model.Assignment
	Reporter   *result.Reporter
	Summaries  []*result.Summary
	Stats      *result.Stats
	Validation *Validation
}

// Solve runs s on the model and derives the assignment. Infeasibility is
// reported with the students involved. A timeout is terminal unless the
// solver was told to keep its incumbent.
func (p *Plan) Solve(ctx context.Context, m *Model, s solver.Solver) (*Outcome, error) {
	logger := logging.FromContext(ctx).WithName("scheduler")

	start := time.Now()
	sol, err := s.Solve(ctx, m.Problem)
	if err != nil {
		var infeasible *solver.InfeasibleModelError
		if errors.As(err, &infeasible) {
			return nil, &InfeasibleError{Students: m.StudentsOf(infeasible.Vars), Err: infeasible}
		}
		return nil, fmt.Errorf("solving model: %w", err)
	}
	p.Metrics.Solve(sol.Components, sol.Nodes, sol.Objective, sol.Bound)
	p.Metrics.Phase("solve", start)
	if sol.Status == solver.TimeLimit {
		logger.Info("time limit reached, using the best assignment found",
			"objective", sol.Objective, "bound", sol.Bound, "gap", sol.Gap())
	}

	a := result.Extract(m.Variables, sol.Values)
	rep := result.NewReporter(p.Catalog, p.Config.RankedSlots, p.Config.FullLoad(), len(p.Rules.Lunch.Days))
	sums := rep.Summarize(p.Preferences, a)
	stats := rep.Stats(sums, a)
	p.Metrics.Result(stats.Assignments, stats.EmptySeats, stats.AverageChoice)

	v := Validate(p.Config, p.Catalog, p.Overlap, p.Rules, p.Preferences, a)
	p.Metrics.ValidationFailures(v.Failed())
	if v.Failed() > 0 {
		logger.Error(nil, "assignment failed validation", "failed", v.Failed())
	}
	logger.Info("assignment extracted",
		"status", sol.Status, "objective", sol.Objective, "bound", sol.Bound, "gap", sol.Gap(),
		"assignments", stats.Assignments, "averageChoice", stats.AverageChoice,
		"emptySeats", stats.EmptySeats)

	return &Outcome{
		Solution:   sol,
		Assignment: a,
		Reporter:   rep,
		Summaries:  sums,
		Stats:      stats,
		Validation: v,
	}, nil
}

// NewSolver returns the branch and bound solver configured for the run.
func NewSolver(cfg *Configuration) *solver.BranchAndBound {
	return &solver.BranchAndBound{
		Gap:              cfg.Gap,
		TimeLimit:        cfg.TimeLimit,
		KeepIncumbent:    cfg.KeepIncumbent,
		Workers:          cfg.Workers,
		ProgressInterval: cfg.ProgressInterval,
	}
}
