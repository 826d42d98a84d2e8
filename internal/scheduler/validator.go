package scheduler

import (
	"fmt"
	"strings"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/overlap"
	"github.com/rhyrak/go-registrar/internal/preference"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

const creditTol = 1e-9

// Check is one validation rule and the violations it found.
type Check struct {
	Name       string
	Violations []string
}

func (c *Check) failf(format string, args ...any) {
	c.Violations = append(c.Violations, fmt.Sprintf(format, args...))
}

// Validation is the outcome of re-checking an assignment against every
// registration rule, independently of the model that produced it.
type Validation struct {
	Checks []*Check
}

// Valid is true when no check failed.
func (v *Validation) Valid() bool {
	return v.Failed() == 0
}

func (v *Validation) Failed() int {
	n := 0
	for _, c := range v.Checks {
		if len(c.Violations) > 0 {
			n++
		}
	}
	return n
}

// String renders one status line per check followed by its violations.
func (v *Validation) String() string {
	var b strings.Builder
	for _, c := range v.Checks {
		if len(c.Violations) == 0 {
			fmt.Fprintf(&b, "[  OK]: %s check.\n", c.Name)
			continue
		}
		fmt.Fprintf(&b, "[FAIL]: %s check.\n", c.Name)
		for _, msg := range c.Violations {
			b.WriteString("    - " + msg + "\n")
		}
	}
	return b.String()
}

// Validate checks the assignment for rule violations.
func Validate(cfg *Configuration, cat *catalog.Catalog, over *overlap.Index, r *rules.Rules, prefs []*preference.Result, a *model.Assignment) *Validation {
	credit := &Check{Name: "Credit ceiling"}
	labs := &Check{Name: "Lab limit"}
	groups := &Check{Name: "Multi-section"}
	collision := &Check{Name: "Course collision"}
	capacity := &Check{Name: "Seat capacity"}
	linkage := &Check{Name: "Lab linkage"}
	writing := &Check{Name: "Writing intensive"}
	composition := &Check{Name: "First year composition"}
	department := &Check{Name: "Department limit"}
	division := &Check{Name: "Division limit"}
	exclusive := &Check{Name: "Exclusive titles"}
	wanted := &Check{Name: "Requested sections"}

	groupOf := make(map[model.SectionID]model.SectionID)
	for _, g := range cat.Groups() {
		for _, m := range g.Members {
			groupOf[m] = g.ID
		}
	}
	links := cat.LabLinks()

	for _, p := range prefs {
		id := p.Student.ID
		got := a.SectionsOf(id)

		var credits float64
		var nLabs, nWriting, nComposition, nExclusive int
		perGroup := make(map[model.SectionID]int)
		for _, sid := range got {
			s, ok := cat.Section(sid)
			if !ok {
				wanted.failf("%s assigned unknown section %s", id, sid)
				continue
			}
			credits += s.Credit
			if s.Lab {
				nLabs++
			} else if p.Rank(sid) == 0 {
				wanted.failf("%s assigned %s without requesting it", id, sid)
			}
			if s.WritingIntensive {
				nWriting++
			}
			if s.FirstYearComposition {
				nComposition++
			}
			if r.IsExclusive(s.Title) {
				nExclusive++
			}
			if g, ok := groupOf[sid]; ok {
				perGroup[g]++
			}
		}
		if credits > cfg.CreditCeiling+creditTol {
			credit.failf("%s has %g credits", id, credits)
		}
		if nLabs > cfg.MaxLabs {
			labs.failf("%s has %d labs", id, nLabs)
		}
		for g, n := range perGroup {
			if n > 1 {
				groups.failf("%s has %d sections of %s", id, n, g)
			}
		}
		for i := 0; i < len(got); i++ {
			for j := i + 1; j < len(got); j++ {
				if over.Conflict(got[i], got[j]) {
					collision.failf("%s has %s and %s at the same time", id, got[i], got[j])
				}
			}
		}
		for _, l := range links {
			inLab, inParent := count(a, id, l.Sections), count(a, id, l.Parents)
			if inLab != inParent {
				linkage.failf("%s has %d sections of %s and %d of its lecture", id, inLab, l.Lab, inParent)
			}
		}
		if nWriting > cfg.MaxWritingIntensive {
			writing.failf("%s has %d writing intensive sections", id, nWriting)
		}
		if nComposition > cfg.MaxFirstYearComposition {
			composition.failf("%s has %d first year composition sections", id, nComposition)
		}
		if nExclusive > cfg.MaxExclusive {
			exclusive.failf("%s has %d mutually exclusive sections", id, nExclusive)
		}
		for d, ids := range p.Departments {
			if n := count(a, id, ids); n > cfg.MaxPerDepartment {
				department.failf("%s has %d sections in %s", id, n, d)
			}
		}
		for _, div := range r.Divisions {
			n := 0
			for _, d := range div.Departments {
				n += count(a, id, p.Departments[d])
			}
			if n > cfg.MaxPerDivision {
				division.failf("%s has %d sections in %s", id, n, div.Name)
			}
		}
	}

	for _, s := range cat.Sections() {
		if n := a.Count(s.ID); n > s.Seats {
			capacity.failf("%s has %d students for %d seats", s.ID, n, s.Seats)
		}
	}

	return &Validation{Checks: []*Check{
		credit, labs, groups, collision, capacity, linkage,
		writing, composition, department, division, exclusive, wanted,
	}}
}

func count(a *model.Assignment, student string, ids []model.SectionID) int {
	n := 0
	for _, id := range ids {
		if a.Assigned(student, id) {
			n++
		}
	}
	return n
}
