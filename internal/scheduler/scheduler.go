package scheduler

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/internal/overlap"
	"github.com/rhyrak/go-registrar/internal/preference"
	"github.com/rhyrak/go-registrar/internal/result"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/internal/solver"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Model is the assignment model of one run. Variables are laid out student
// major: student i, section j is variable i*len(Sections)+j.
type Model struct {
	Problem   *solver.Problem
	Students  []*preference.Result
	Sections  []*model.Section
	Variables []result.Variable
	index     map[model.SectionID]int
}

// Var returns the variable of a student and section.
func (m *Model) Var(student int, id model.SectionID) (int, bool) {
	j, ok := m.index[id]
	if !ok {
		return -1, false
	}
	return student*len(m.Sections) + j, true
}

// StudentsOf returns the distinct students owning the given variables.
func (m *Model) StudentsOf(vars []int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range vars {
		id := m.Variables[v].Student
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// terms sums the free variables of student i over ids. Variables fixed to
// zero and zero coefficients are left out.
func (m *Model) terms(i int, ids []model.SectionID, coef func(*model.Section) float64) []solver.Term {
	var out []solver.Term
	for _, id := range ids {
		v, ok := m.Var(i, id)
		if !ok {
			continue
		}
		if val, fixed := m.Problem.IsFixed(v); fixed && val == 0 {
			continue
		}
		c := 1.0
		if coef != nil {
			c = coef(m.Sections[m.index[id]])
		}
		if c != 0 {
			out = append(out, solver.Term{Var: v, Coef: c})
		}
	}
	return out
}

// addRow skips rows that no assignment can violate.
func (m *Model) addRow(name string, terms []solver.Term, sense solver.Sense, rhs float64) {
	if !slack(terms, sense, rhs) {
		m.Problem.AddConstraint(name, terms, sense, rhs)
	}
}

// addCoupling adds a limit shared by the students, which the solver may
// relax to solve them apart.
func (m *Model) addCoupling(name string, terms []solver.Term, rhs float64) {
	if !slack(terms, solver.LessEqual, rhs) {
		m.Problem.AddCoupling(name, terms, rhs)
	}
}

func slack(terms []solver.Term, sense solver.Sense, rhs float64) bool {
	if len(terms) == 0 {
		return true
	}
	if sense != solver.LessEqual {
		return false
	}
	most := 0.0
	for _, t := range terms {
		most += max(t.Coef, 0)
	}
	return most <= rhs
}

// Builder turns normalized students into the assignment model.
type Builder struct {
	cfg   *Configuration
	cat   *catalog.Catalog
	over  *overlap.Index
	rules *rules.Rules
}

func NewBuilder(cfg *Configuration, cat *catalog.Catalog, over *overlap.Index, r *rules.Rules) *Builder {
	return &Builder{cfg: cfg, cat: cat, over: over, rules: r}
}

// Objective is the objective coefficient of a section for a student: the
// weighted rank times the credit rounded up, so low credit sections that
// come with a lab are not avoided.
func (b *Builder) Objective(pref *preference.Result, s *model.Section) float64 {
	return b.rules.Weight(pref.Rank(s.ID)) * math.Ceil(s.Credit)
}

// Build creates one binary variable per student and section and every
// registration constraint.
func (b *Builder) Build(ctx context.Context, prefs []*preference.Result) (*Model, error) {
	logger := logging.FromContext(ctx).WithName("scheduler")
	start := time.Now()

	sections := b.cat.Sections()
	m := &Model{
		Problem:  solver.NewProblem(),
		Students: prefs,
		Sections: sections,
		index:    make(map[model.SectionID]int, len(sections)),
	}
	for j, s := range sections {
		m.index[s.ID] = j
	}

	// Lab sections are only reachable through a link to their lecture.
	linked := make(map[model.SectionID]bool)
	links := b.cat.LabLinks()
	for _, l := range links {
		if l.Orphan() {
			continue
		}
		for _, id := range l.Sections {
			linked[id] = true
		}
	}

	for _, p := range prefs {
		for _, s := range sections {
			v := m.Problem.AddVar(fmt.Sprintf("x[%s,%s]", p.Student.ID, s.ID), b.Objective(p, s))
			m.Variables = append(m.Variables, result.Variable{Student: p.Student.ID, Section: s.ID})
			if (s.Lab && !linked[s.ID]) || (!s.Lab && p.Rank(s.ID) == 0) {
				m.Problem.Fix(v, 0)
			}
		}
	}
	logger.V(logging.DEBUG).Info("variables created", "variables", m.Problem.NumVars(), "fixed", m.Problem.NumFixed())

	all := make([]model.SectionID, len(sections))
	var labs, writing, composition, exclusive []model.SectionID
	for j, s := range sections {
		all[j] = s.ID
		if s.Lab {
			labs = append(labs, s.ID)
		}
		if s.WritingIntensive {
			writing = append(writing, s.ID)
		}
		if s.FirstYearComposition {
			composition = append(composition, s.ID)
		}
		if b.rules.IsExclusive(s.Title) {
			exclusive = append(exclusive, s.ID)
		}
	}
	groups := b.cat.Groups()
	credit := func(s *model.Section) float64 { return s.Credit }

	lastLog := time.Now()
	for i, p := range prefs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sid := p.Student.ID
		name := func(kind string, key ...any) string {
			if len(key) == 0 {
				return fmt.Sprintf("%s[%s]", kind, sid)
			}
			return fmt.Sprintf("%s[%s,%v]", kind, sid, key[0])
		}

		m.addRow(name("credit"), m.terms(i, all, credit), solver.LessEqual, b.cfg.CreditCeiling)
		m.addRow(name("labs"), m.terms(i, labs, nil), solver.LessEqual, float64(b.cfg.MaxLabs))
		for _, g := range groups {
			m.addRow(name("group", g.ID), m.terms(i, g.Members, nil), solver.LessEqual, 1)
		}
		for _, l := range links {
			if l.Orphan() {
				continue
			}
			row := m.terms(i, l.Sections, nil)
			for _, t := range m.terms(i, l.Parents, nil) {
				row = append(row, solver.Term{Var: t.Var, Coef: -t.Coef})
			}
			m.addRow(name("lab", l.Lab), row, solver.Equal, 0)
		}

		depts := make([]string, 0, len(p.Departments))
		for d := range p.Departments {
			depts = append(depts, d)
		}
		slices.Sort(depts)
		for _, d := range depts {
			m.addRow(name("department", d), m.terms(i, p.Departments[d], nil), solver.LessEqual, float64(b.cfg.MaxPerDepartment))
		}
		for _, div := range b.rules.Divisions {
			var ids []model.SectionID
			for _, d := range div.Departments {
				ids = append(ids, p.Departments[d]...)
			}
			m.addRow(name("division", div.Name), m.terms(i, ids, nil), solver.LessEqual, float64(b.cfg.MaxPerDivision))
		}
		m.addRow(name("writing"), m.terms(i, writing, nil), solver.LessEqual, float64(b.cfg.MaxWritingIntensive))
		m.addRow(name("composition"), m.terms(i, composition, nil), solver.LessEqual, float64(b.cfg.MaxFirstYearComposition))
		m.addRow(name("exclusive"), m.terms(i, exclusive, nil), solver.LessEqual, float64(b.cfg.MaxExclusive))

		b.addOverlaps(m, i, name)

		if b.cfg.ProgressInterval > 0 && time.Since(lastLog) >= b.cfg.ProgressInterval {
			lastLog = time.Now()
			logger.Info("building overlap constraints", "percent", (i+1)*100/len(prefs))
		}
	}

	for j, s := range sections {
		var col []solver.Term
		for i := range prefs {
			v := i*len(sections) + j
			if val, fixed := m.Problem.IsFixed(v); fixed && val == 0 {
				continue
			}
			col = append(col, solver.Term{Var: v, Coef: 1})
		}
		m.addCoupling(fmt.Sprintf("capacity[%s]", s.ID), col, float64(s.Seats))
	}

	logger.Info("model built",
		"students", len(prefs), "sections", len(sections),
		"variables", m.Problem.NumVars(), "fixed", m.Problem.NumFixed(),
		"constraints", m.Problem.NumConstraints(), "encoding", b.cfg.OverlapEncoding,
		"elapsed", time.Since(start))
	return m, nil
}

// addOverlaps forbids two conflicting sections for student i. The big-M
// form has one row per selectable section: taking it leaves no room for
// any section it conflicts with.
func (b *Builder) addOverlaps(m *Model, i int, name func(string, ...any) string) {
	for j, s := range m.Sections {
		v := i*len(m.Sections) + j
		if val, fixed := m.Problem.IsFixed(v); fixed && val == 0 {
			continue
		}
		conflicts := m.terms(i, b.over.Conflicts(s.ID), nil)
		if len(conflicts) == 0 {
			continue
		}
		switch b.cfg.OverlapEncoding {
		case OverlapPairwise:
			for _, t := range conflicts {
				if t.Var > v {
					m.addRow(name("overlap", pairKey(s.ID, m.Variables[t.Var].Section)),
						[]solver.Term{{Var: v, Coef: 1}, t}, solver.LessEqual, 1)
				}
			}
		default:
			bigM := float64(len(conflicts))
			row := append(conflicts, solver.Term{Var: v, Coef: bigM})
			m.addRow(name("overlap", s.ID), row, solver.LessEqual, bigM)
		}
	}
}

func pairKey(a, b model.SectionID) string {
	return strings.Join([]string{string(a), string(b)}, "|")
}

// InfeasibleError names the students involved in an infeasible component.
type InfeasibleError struct {
	Students []string
	Err      *solver.InfeasibleModelError
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no feasible assignment for students %s: %v", strings.Join(e.Students, ", "), e.Err)
}

func (e *InfeasibleError) Unwrap() error {
	return e.Err
}
