// Package placement turns a student's placement statements and exam scores
// into course level placements, and decides how a placement overrides a
// ranked request in departments with placement levels.
package placement

import (
	"slices"
	"strings"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Placement is one resolved claim. When Found, Label is the canonical title
// of a course; otherwise it is the raw label as written.
type Placement struct {
	Found bool
	Label string
}

func (p Placement) String() string {
	if p.Found {
		return p.Label
	}
	return p.Label + " (Not found)"
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cat   *catalog.Catalog
	rules *rules.Rules
}

func NewResolver(cat *catalog.Catalog, r *rules.Rules) *Resolver {
	return &Resolver{cat: cat, rules: r}
}

// Resolve extracts placements from text and appends the placements earned
// by exam scores.
func (p *Resolver) Resolve(text string, exams map[string]int) []Placement {
	return p.ApplyExams(exams, p.Extract(text))
}

// Extract parses a placement statement such as
// "Math: MATH 116, French: FRNCH 201". Each fragment names a course after its
// colon; a fragment without a colon is taken whole.
func (p *Resolver) Extract(text string) []Placement {
	var out []Placement
	for _, pp := range p.rules.ProtectedPlacements {
		if !strings.Contains(text, pp.Phrase) {
			continue
		}
		text = removePhrase(text, pp.Phrase, p.rules.PlacementDelimiter)
		out = append(out, Placement{Label: pp.Label})
	}

	for _, fragment := range strings.Split(text, p.rules.PlacementDelimiter) {
		name := fragment
		if _, after, ok := strings.Cut(fragment, ":"); ok {
			name, _, _ = strings.Cut(after, ":")
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		res := p.cat.ResolveFirst(name, trimLast(name), name+p.rules.Markers.RequestQualifier)
		if !res.Found() {
			out = append(out, Placement{Label: name})
			continue
		}
		out = append(out, Placement{Found: true, Label: p.title(res.Course)})
	}
	return out
}

// ApplyExams appends the placements earned by exam scores. Provisional
// rules look at the placements passed in, not at the ones they add.
func (p *Resolver) ApplyExams(exams map[string]int, placements []Placement) []Placement {
	for _, rule := range p.rules.ExamRules.Combined {
		total, complete := 0, true
		for _, e := range rule.Exams {
			score, ok := exams[e]
			if !ok {
				complete = false
				break
			}
			total += score
		}
		if complete && total >= rule.MinTotal {
			placements = append(placements, Placement{Found: true, Label: rule.Placement})
		}
	}

	n := len(placements)
	for i := 0; i < n; i++ {
		for _, rule := range p.rules.ExamRules.Provisional {
			if placements[i].Label != rule.Label {
				continue
			}
			course := rule.Placement
			if score, ok := exams[rule.Exam]; ok && rule.Upgrade != "" && score >= rule.MinScore {
				course = rule.Upgrade
			}
			placements = append(placements, Placement{Found: true, Label: course})
			break
		}
	}
	return placements
}

func (p *Resolver) title(id model.SectionID) string {
	if s, ok := p.cat.Section(id); ok {
		return s.Title
	}
	return string(id)
}

func trimLast(s string) string {
	r := []rune(s)
	if len(r) <= 1 {
		return ""
	}
	return string(r[:len(r)-1])
}

// removePhrase cuts phrase out of text together with one neighbouring
// delimiter so the remaining fragments stay well formed.
func removePhrase(text, phrase, delim string) string {
	for _, candidate := range []string{delim + " " + phrase, phrase + delim + " ", delim + phrase, phrase + delim} {
		if strings.Contains(text, candidate) {
			return strings.Replace(text, candidate, "", 1)
		}
	}
	return strings.Replace(text, phrase, "", 1)
}

// Outcome is the effect of placement precedence on one ranked request.
type Outcome int

const (
	// NotApplicable: the request is not a placement level of its department.
	NotApplicable Outcome = iota
	// UsePlacement: the request is replaced by the placed course.
	UsePlacement
	// FanOut: the rank is spread over the targets of a special placement.
	FanOut
	// DefaultLevel: no placement, the introductory level is used.
	DefaultLevel
	// Drop: placement is required and missing.
	Drop
)

func (o Outcome) String() string {
	return [...]string{"not applicable", "use placement", "fan out", "default level", "drop"}[o]
}

// Decision carries the course or special case chosen for a request.
type Decision struct {
	Outcome Outcome
	Course  string
	Special rules.SpecialPlacement
}

// HasLevels reports whether title is a placement level of dept.
func (p *Resolver) HasLevels(dept, title string) bool {
	levels, ok := p.rules.Levels(dept)
	return ok && slices.Contains(levels, title)
}

// Decide applies placement precedence to a request for title in dept:
// a found placement at one of the department's levels wins wherever it is
// listed, then an unresolved label with a special case whose first target
// is a level of the department, then the introductory level unless
// placement is required.
func (p *Resolver) Decide(dept, title string, placements []Placement) Decision {
	levels, ok := p.rules.Levels(dept)
	if !ok || !slices.Contains(levels, title) {
		return Decision{Outcome: NotApplicable}
	}

	for _, pl := range placements {
		if pl.Found && slices.Contains(levels, pl.Label) {
			return Decision{Outcome: UsePlacement, Course: pl.Label}
		}
	}
	for _, pl := range placements {
		if pl.Found {
			continue
		}
		sp, ok := p.rules.Special(pl.Label)
		if ok && len(sp.Targets) > 0 && slices.Contains(levels, sp.Targets[0].Course) {
			return Decision{Outcome: FanOut, Special: sp}
		}
	}

	if p.rules.RequiresPlacement(dept) {
		return Decision{Outcome: Drop}
	}
	return Decision{Outcome: DefaultLevel, Course: levels[0]}
}
