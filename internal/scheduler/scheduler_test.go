package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rhyrak/go-registrar/internal/catalog/catalogtest"
	"github.com/rhyrak/go-registrar/internal/metrics"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/internal/solver"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// records extends the standard catalog with a one-seat seminar and a course
// meeting at the same time as INTRO TO PHILOSOPHY.
func records() []model.CatalogRecord {
	rows := catalogtest.Standard()
	rows = append(rows,
		catalogtest.Record("SEMNR", "100", "TINY SEMINAR", "01", 1, "1", "", catalogtest.Lecture("F", "2:00PM", "3:00PM")),
		catalogtest.Record("CLASS", "101", "GREEK MYTHOLOGY", "01", 20, "1", "", catalogtest.Lecture("MW", "1:00PM", "2:15PM")),
	)
	for i := range rows {
		rows[i].Row = i + 2
	}
	return rows
}

// cohort builds a catalog of single section courses, four to a
// department, and students who each request a random set of them.
func cohort(sections, students, requests int) ([]model.CatalogRecord, []*model.Student) {
	slots := []struct{ days, start, end string }{
		{"MWF", "8:00AM", "8:50AM"}, {"MWF", "9:00AM", "9:50AM"}, {"MWF", "10:00AM", "10:50AM"},
		{"MWF", "11:00AM", "11:50AM"}, {"MWF", "1:00PM", "1:50PM"}, {"MWF", "2:00PM", "2:50PM"},
		{"MWF", "3:00PM", "3:50PM"}, {"TR", "8:00AM", "9:15AM"}, {"TR", "9:30AM", "10:45AM"},
		{"TR", "11:00AM", "12:15PM"}, {"TR", "1:00PM", "2:15PM"}, {"TR", "2:30PM", "3:45PM"},
		{"TR", "4:00PM", "5:15PM"},
	}
	rng := rand.New(rand.NewPCG(2024, 9))
	var rows []model.CatalogRecord
	var courses []string
	for j := 0; j < sections; j++ {
		dept, num := fmt.Sprintf("DEPT%02d", j/4), fmt.Sprint(101+j%4)
		slot := slots[rng.IntN(len(slots))]
		rows = append(rows, catalogtest.Record(dept, num, fmt.Sprintf("COURSE %s-%s", dept, num), "01",
			5+rng.IntN(10), "1", "", catalogtest.Lecture(slot.days, slot.start, slot.end)))
		rows[j].Row = j + 2
		courses = append(courses, dept+" "+num)
	}
	var out []*model.Student
	for i := 0; i < students; i++ {
		st := &model.Student{ID: fmt.Sprintf("C%03d", i), Name: fmt.Sprintf("Student %d", i)}
		for _, k := range rng.Perm(len(courses))[:requests] {
			st.Requests = append(st.Requests, courses[k])
		}
		out = append(out, st)
	}
	return rows, out
}

type infeasibleSolver struct{ vars []int }

func (s infeasibleSolver) Solve(context.Context, *solver.Problem) (*solver.Solution, error) {
	return nil, &solver.InfeasibleModelError{Component: 0, Vars: s.vars}
}

var _ = Describe("Scheduler", func() {
	var (
		ctx      context.Context
		cfg      *Configuration
		r        *rules.Rules
		students []*model.Student
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = NewDefaultConfiguration()
		cfg.Workers = 2
		var err error
		r, err = rules.Default()
		Expect(err).NotTo(HaveOccurred())
		students = []*model.Student{
			{ID: "S1", Name: "Ada", Requests: []string{"CLASS 101", "PHIL 101", "SEMNR 100"}},
			{ID: "S2", Name: "Ben", Requests: []string{"SEMNR 100", "PHYS 190"}},
			{ID: "S3", Name: "Cy"},
		}
	})

	prepare := func() *Plan {
		p, err := Prepare(ctx, cfg, r, records(), students, metrics.New("test"))
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	solve := func(p *Plan) *Outcome {
		m, err := p.Build(ctx)
		Expect(err).NotTo(HaveOccurred())
		out, err := p.Solve(ctx, m, NewSolver(cfg))
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Context("preparing a run", func() {
		It("should set aside students without priorities", func() {
			p := prepare()
			Expect(p.NoPriorities).To(HaveLen(1))
			Expect(p.NoPriorities[0].ID).To(Equal("S3"))
			Expect(p.Preferences).To(HaveLen(2))
		})

		It("should count unresolved requests", func() {
			students[0].Requests = append(students[0].Requests, "NOPE 999")
			d := prepare().Diagnostics()
			Expect(d.UnresolvedRequests).To(Equal(1))
			Expect(d.Miscalibrated).To(BeEmpty())
		})
	})

	Context("building the model", func() {
		It("should fix unrequested sections to zero and leave linked labs free", func() {
			p := prepare()
			m, err := p.Build(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Problem.NumVars()).To(Equal(2 * p.Catalog.Len()))

			v, ok := m.Var(0, "CALCULUS I")
			Expect(ok).To(BeTrue())
			val, fixed := m.Problem.IsFixed(v)
			Expect(fixed).To(BeTrue())
			Expect(val).To(BeZero())

			v, ok = m.Var(1, "MECHANICS LAB")
			Expect(ok).To(BeTrue())
			_, fixed = m.Problem.IsFixed(v)
			Expect(fixed).To(BeFalse())

			_, ok = m.Var(0, "PHYSICS PREVIEW")
			Expect(ok).To(BeFalse())
		})

		It("should weight a section by rank and rounded up credit", func() {
			p := prepare()
			b := NewBuilder(cfg, p.Catalog, p.Overlap, p.Rules)
			s, ok := p.Catalog.Section("GREEK MYTHOLOGY")
			Expect(ok).To(BeTrue())
			Expect(b.Objective(p.Preferences[0], s)).To(Equal(25.0))
			lab, ok := p.Catalog.Section("MECHANICS LAB")
			Expect(ok).To(BeTrue())
			Expect(b.Objective(p.Preferences[1], lab)).To(BeZero())
		})

		It("should honor cancellation", func() {
			p := prepare()
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := p.Build(canceled)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Context("solving", func() {
		It("should produce an assignment that passes validation", func() {
			out := solve(prepare())
			Expect(out.Validation.Valid()).To(BeTrue(), out.Validation.String())
			Expect(out.Solution.Objective).To(BeNumerically(">", 0))
			Expect(out.Solution.Bound).To(BeNumerically(">=", out.Solution.Objective-1e-6))
		})

		It("should never give both sides of a time conflict", func() {
			a := solve(prepare()).Assignment
			Expect(a.Assigned("S1", "GREEK MYTHOLOGY")).To(BeTrue())
			Expect(a.Assigned("S1", "INTRO TO PHILOSOPHY")).To(BeFalse())
		})

		It("should respect a one seat section", func() {
			a := solve(prepare()).Assignment
			Expect(a.Count("TINY SEMINAR")).To(Equal(1))
		})

		It("should enroll a lecture together with its lab", func() {
			a := solve(prepare()).Assignment
			Expect(a.Assigned("S2", "MECHANICS")).To(BeTrue())
			Expect(a.Assigned("S2", "MECHANICS LAB")).To(BeTrue())
		})

		It("should give one lunch per day when the schedule allows it", func() {
			out := solve(prepare())
			for _, s := range out.Summaries {
				Expect(s.Lunches).To(Equal(len(r.Lunch.Days)), s.Student)
			}
			Expect(out.Stats.FewLunches).To(BeEmpty())
		})

		It("should reach the same optimum with either overlap encoding", func() {
			big := solve(prepare()).Solution.Objective
			cfg.OverlapEncoding = OverlapPairwise
			pair := solve(prepare()).Solution.Objective
			Expect(pair).To(BeNumerically("~", big, 1e-6))
		})

		It("should name the students of an infeasible component", func() {
			p := prepare()
			m, err := p.Build(ctx)
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Solve(ctx, m, infeasibleSolver{vars: []int{len(m.Sections) + 1, 0, 1}})

			var infeasible *InfeasibleError
			Expect(errors.As(err, &infeasible)).To(BeTrue())
			Expect(infeasible.Students).To(Equal([]string{"S1", "S2"}))
			Expect(errors.Is(err, infeasible.Err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("S1, S2"))
		})

		It("should stop at the time limit", func() {
			p := prepare()
			m, err := p.Build(ctx)
			Expect(err).NotTo(HaveOccurred())
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = p.Solve(canceled, m, NewSolver(cfg))
			Expect(err).To(MatchError(solver.ErrTimeLimit))
		})
	})
})

var _ = Describe("Cohort", func() {
	var (
		ctx  context.Context
		cfg  *Configuration
		plan *Plan
		m    *Model
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = NewDefaultConfiguration()
		cfg.Workers = 2
		cfg.ProgressInterval = 0
		r, err := rules.Default()
		Expect(err).NotTo(HaveOccurred())
		records, students := cohort(100, 100, 12)
		plan, err = Prepare(ctx, cfg, r, records, students, nil)
		Expect(err).NotTo(HaveOccurred())
		m, err = plan.Build(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should return a valid assignment within the time limit", func() {
		cfg.TimeLimit = 2 * time.Second
		cfg.KeepIncumbent = true
		start := time.Now()
		out, err := plan.Solve(ctx, m, NewSolver(cfg))
		Expect(time.Since(start)).To(BeNumerically("<", cfg.TimeLimit+3*time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Validation.Valid()).To(BeTrue(), out.Validation.String())
		Expect(out.Solution.Objective).To(BeNumerically(">", 0))
		Expect(out.Solution.Bound).To(BeNumerically(">=", out.Solution.Objective-1e-6))
	})

	It("should fail at the time limit unless told to keep the incumbent", func() {
		cfg.TimeLimit = time.Microsecond
		start := time.Now()
		_, err := plan.Solve(ctx, m, NewSolver(cfg))
		Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
		Expect(err).To(MatchError(solver.ErrTimeLimit))
	})
})

var _ = Describe("Validate", func() {
	var (
		cfg  *Configuration
		plan *Plan
	)

	BeforeEach(func() {
		cfg = NewDefaultConfiguration()
		r, err := rules.Default()
		Expect(err).NotTo(HaveOccurred())
		students := []*model.Student{
			{ID: "S1", Name: "Ada", Requests: []string{"CLASS 101", "PHIL 101", "HIST 110"}},
		}
		plan, err = Prepare(context.Background(), cfg, r, records(), students, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	validate := func(ids ...model.SectionID) *Validation {
		a := model.NewAssignment(map[string][]model.SectionID{"S1": ids})
		return Validate(cfg, plan.Catalog, plan.Overlap, plan.Rules, plan.Preferences, a)
	}

	failed := func(v *Validation) []string {
		var names []string
		for _, c := range v.Checks {
			if len(c.Violations) > 0 {
				names = append(names, c.Name)
			}
		}
		return names
	}

	It("should pass a clean schedule", func() {
		v := validate("GREEK MYTHOLOGY", "FIRST YEAR SEMINAR", "LUNCH M 11:00AM")
		Expect(v.Valid()).To(BeTrue())
		Expect(strings.Count(v.String(), "[  OK]")).To(Equal(len(v.Checks)))
	})

	It("should flag a time conflict and two writing intensive sections", func() {
		v := validate("GREEK MYTHOLOGY", "INTRO TO PHILOSOPHY", "FIRST YEAR SEMINAR")
		Expect(failed(v)).To(ConsistOf("Course collision", "Writing intensive"))
		Expect(v.String()).To(ContainSubstring("[FAIL]: Course collision check."))
	})

	It("should flag unrequested sections and a lab without its lecture", func() {
		v := validate("MECHANICS LAB")
		Expect(failed(v)).To(ConsistOf("Lab linkage"))
		v = validate("ECON THEORY & EVIDENCE")
		Expect(failed(v)).To(ConsistOf("Requested sections"))
	})

	It("should flag two lunches on one day", func() {
		v := validate("LUNCH M 11:00AM", "LUNCH M 12:00PM")
		Expect(failed(v)).To(ConsistOf("Multi-section"))
	})

	It("should flag an overfull section", func() {
		a := model.NewAssignment(map[string][]model.SectionID{
			"S1": {"TINY SEMINAR"},
			"S2": {"TINY SEMINAR"},
		})
		v := Validate(cfg, plan.Catalog, plan.Overlap, plan.Rules, plan.Preferences, a)
		Expect(failed(v)).To(ContainElement("Seat capacity"))
	})
})
