// Package result reads a solved model back into the assignment relation and
// derives the per-student summaries, run statistics and remaining seats.
// Nothing here mutates the catalog or the assignment.
package result

import (
	"math"
	"slices"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/preference"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Threshold is the fraction above which a value counts as the next whole
// number: a solver value as assigned, a fractional rank as the higher
// rank.
const Threshold = 0.5

// round applies Threshold to the fractional part of x.
func round(x float64) int {
	whole, frac := math.Modf(x)
	n := int(whole)
	if frac > Threshold {
		n++
	}
	return n
}

// Variable names the student and section behind one decision variable.
type Variable struct {
	Student string
	Section model.SectionID
}

// Extract builds the assignment from solver values. Every student that owns
// a variable appears, even with nothing assigned.
func Extract(vars []Variable, values []float64) *model.Assignment {
	rel := make(map[string][]model.SectionID)
	for i, v := range vars {
		if _, ok := rel[v.Student]; !ok {
			rel[v.Student] = nil
		}
		if round(values[i]) >= 1 {
			rel[v.Student] = append(rel[v.Student], v.Section)
		}
	}
	return model.NewAssignment(rel)
}

// Summary is the derived view of one student's assignment.
type Summary struct {
	Student  *model.Student
	Sections []model.SectionID
	// Choices holds the choice number of each ranked section, 1 being the
	// first choice. Labs and lunch blocks have none.
	Choices map[model.SectionID]int
	Credits float64
	Lunches int
}

func (s *Summary) hasChoiceWithin(n int) bool {
	for _, c := range s.Choices {
		if c >= 1 && c <= n {
			return true
		}
	}
	return false
}

func (s *Summary) FirstChoice() bool { return s.hasChoiceWithin(1) }
func (s *Summary) TopTwo() bool      { return s.hasChoiceWithin(2) }
func (s *Summary) TopFour() bool     { return s.hasChoiceWithin(4) }

// Reporter derives summaries and statistics for one catalog.
type Reporter struct {
	cat       *catalog.Catalog
	slots     int
	fullLoad  float64
	lunchDays int
}

// NewReporter creates a Reporter. fullLoad is the credit total a complete
// schedule reaches; lunchDays the number of days with a lunch block.
func NewReporter(cat *catalog.Catalog, slots int, fullLoad float64, lunchDays int) *Reporter {
	return &Reporter{cat: cat, slots: slots, fullLoad: fullLoad, lunchDays: lunchDays}
}

// Choice converts the best priority of a section's group into a choice
// number between 1 and the number of slots. It returns 0 for sections the
// student did not rank.
func (r *Reporter) Choice(pref *preference.Result, id model.SectionID) int {
	best := 0.0
	for _, m := range r.cat.Members(id) {
		best = max(best, pref.Rank(m))
	}
	if best <= 0 {
		return 0
	}
	return min(max(r.slots+1-round(best), 1), r.slots)
}

// Summarize derives the summary of every student in prefs.
func (r *Reporter) Summarize(prefs []*preference.Result, a *model.Assignment) []*Summary {
	out := make([]*Summary, 0, len(prefs))
	for _, p := range prefs {
		s := &Summary{
			Student:  p.Student,
			Sections: a.SectionsOf(p.Student.ID),
			Choices:  make(map[model.SectionID]int),
		}
		for _, id := range s.Sections {
			sec, ok := r.cat.Section(id)
			if !ok {
				continue
			}
			if sec.Lunch {
				s.Lunches++
				continue
			}
			s.Credits += sec.Credit
			if sec.Lab {
				continue
			}
			if c := r.Choice(p, id); c > 0 {
				s.Choices[id] = c
			}
		}
		out = append(out, s)
	}
	return out
}

// Stats are the run-level figures reported after each solve.
type Stats struct {
	Students       int
	Assignments    int
	AverageChoice  float64
	NoFirstChoice  []string
	NoTopTwo       []string
	NoTopFour      []string
	NotFullLoad    map[string]float64
	FewLunches     map[string]int
	EmptySeats     int
	UnfilledCourse []model.SectionID
}

const creditTol = 1e-6

// Stats aggregates summaries. The average is taken over ranked sections.
func (r *Reporter) Stats(summaries []*Summary, a *model.Assignment) *Stats {
	st := &Stats{
		Students:    len(summaries),
		NotFullLoad: make(map[string]float64),
		FewLunches:  make(map[string]int),
	}
	total, ranked := 0, 0
	for _, s := range summaries {
		id := s.Student.ID
		for _, sec := range s.Sections {
			if x, ok := r.cat.Section(sec); ok && !x.Lunch {
				st.Assignments++
			}
		}
		for _, c := range s.Choices {
			total += c
			ranked++
		}
		if !s.FirstChoice() {
			st.NoFirstChoice = append(st.NoFirstChoice, id)
		}
		if !s.TopTwo() {
			st.NoTopTwo = append(st.NoTopTwo, id)
		}
		if !s.TopFour() {
			st.NoTopFour = append(st.NoTopFour, id)
		}
		if math.Abs(s.Credits-r.fullLoad) > creditTol {
			st.NotFullLoad[id] = s.Credits
		}
		if s.Lunches < r.lunchDays {
			st.FewLunches[id] = s.Lunches
		}
	}
	if ranked > 0 {
		st.AverageChoice = float64(total) / float64(ranked)
	}
	seats := RemainingSeats(r.cat, a)
	for _, sec := range r.cat.Sections() {
		if sec.Lunch {
			continue
		}
		if left := seats[sec.ID]; left > 0 {
			st.EmptySeats += left
			st.UnfilledCourse = append(st.UnfilledCourse, sec.ID)
		}
	}
	return st
}

// RemainingSeats is seats minus assignments for every non-lunch section.
func RemainingSeats(cat *catalog.Catalog, a *model.Assignment) map[model.SectionID]int {
	out := make(map[model.SectionID]int)
	for _, s := range cat.Sections() {
		if s.Lunch {
			continue
		}
		out[s.ID] = s.Seats - a.Count(s.ID)
	}
	return out
}

// sortedKeys is used to render map valued statistics deterministically.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
