// Package rules holds the registration rule tables: rank weights, lunch
// blocks, placement levels, special placement cases, divisions and the
// course exception lists. Tables are loaded once from YAML and are read-only
// afterwards.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhyrak/go-registrar/pkg/model"
)

//go:embed default_rules.yaml
var defaultRules []byte

type Lunch struct {
	Department string   `yaml:"department"`
	Days       string   `yaml:"days"`
	Starts     []string `yaml:"starts"`
	LastEnd    string   `yaml:"last_end"`
	Seats      int      `yaml:"seats"`
	Credit     float64  `yaml:"credit"`
	Weight     float64  `yaml:"weight"`
	LastWeight float64  `yaml:"last_weight"`
}

// Block is one lunch slot: its start and end on every lunch day.
type Block struct {
	Start model.Clock
	End   model.Clock
	Last  bool
}

type PlacementLevels struct {
	Department string   `yaml:"department"`
	Levels     []string `yaml:"levels"`
}

type SpecialTarget struct {
	Course     string  `yaml:"course"`
	Multiplier float64 `yaml:"multiplier"`
}

// SpecialPlacement fans one placement label out to several courses with
// partial rank. A multiplier of 0 only flags the student.
type SpecialPlacement struct {
	Label   string          `yaml:"label"`
	Targets []SpecialTarget `yaml:"targets"`
}

type ProtectedPlacement struct {
	Phrase string `yaml:"phrase"`
	Label  string `yaml:"label"`
}

// CombinedExamRule places a student when the summed scores of all Exams
// reach MinTotal.
type CombinedExamRule struct {
	Exams     []string `yaml:"exams"`
	MinTotal  int      `yaml:"min_total"`
	Placement string   `yaml:"placement"`
}

// ProvisionalRule turns a provisional placement label into Placement, or into
// Upgrade when Exam scored at least MinScore.
type ProvisionalRule struct {
	Label     string `yaml:"label"`
	Placement string `yaml:"placement"`
	Exam      string `yaml:"exam"`
	MinScore  int    `yaml:"min_score"`
	Upgrade   string `yaml:"upgrade"`
}

type ExamRules struct {
	Combined    []CombinedExamRule `yaml:"combined"`
	Provisional []ProvisionalRule  `yaml:"provisional"`
}

type Division struct {
	Name        string   `yaml:"name"`
	Departments []string `yaml:"departments"`
}

type Markers struct {
	Lab                  string `yaml:"lab"`
	WritingIntensive     string `yaml:"writing_intensive"`
	FirstYearComposition string `yaml:"first_year_composition"`
	RequestQualifier     string `yaml:"request_qualifier"`
}

// Rules is the full rule set for one run.
type Rules struct {
	Weights                 map[int]float64      `yaml:"weights"`
	Lunch                   Lunch                `yaml:"lunch"`
	Placements              []PlacementLevels    `yaml:"placements"`
	RequiredPlacement       []string             `yaml:"required_placement"`
	SpecialPlacements       []SpecialPlacement   `yaml:"special_placements"`
	ProtectedPlacements     []ProtectedPlacement `yaml:"protected_placements"`
	PlacementDelimiter      string               `yaml:"placement_delimiter"`
	ExamRules               ExamRules            `yaml:"exam_rules"`
	Divisions               []Division           `yaml:"divisions"`
	NotWritingIntensive     []string             `yaml:"not_writing_intensive"`
	NotFirstYearComposition []string             `yaml:"not_first_year_composition"`
	Ignore                  []string             `yaml:"ignore"`
	ExclusiveTitles         []string             `yaml:"exclusive_titles"`
	Markers                 Markers              `yaml:"markers"`
	LabParentSuffixes       map[string][]string  `yaml:"lab_parent_suffixes"`

	maxRank    int
	levels     map[string][]string
	required   map[string]bool
	special    map[string]SpecialPlacement
	divisionOf map[string]string
	blocks     []Block
}

// Default returns the embedded production rule set.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

// Load reads a rule set from a YAML file. An empty path yields Default.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (*Rules, error) {
	r := &Rules{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if r.PlacementDelimiter == "" {
		r.PlacementDelimiter = ","
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.index()
	return r, nil
}

// Validate reports every inconsistency in the tables at once.
func (r *Rules) Validate() error {
	var errs []error

	if len(r.Weights) == 0 {
		errs = append(errs, errors.New("weights: table is empty"))
	}
	if w, ok := r.Weights[0]; !ok || w != 0 {
		errs = append(errs, errors.New("weights: rank 0 must map to 0"))
	}
	top := 0
	for rank := range r.Weights {
		if rank < 0 {
			errs = append(errs, fmt.Errorf("weights: negative rank %d", rank))
		}
		top = max(top, rank)
	}
	for rank := 1; rank <= top; rank++ {
		w, ok := r.Weights[rank]
		if !ok {
			errs = append(errs, fmt.Errorf("weights: missing rank %d", rank))
			continue
		}
		if prev, ok := r.Weights[rank-1]; ok && w <= prev {
			errs = append(errs, fmt.Errorf("weights: rank %d (%g) must outweigh rank %d (%g)", rank, w, rank-1, prev))
		}
	}

	if len(r.Lunch.Starts) > 0 {
		if r.Lunch.Days == "" {
			errs = append(errs, errors.New("lunch: days are empty"))
		}
		if r.Lunch.Seats <= 0 {
			errs = append(errs, errors.New("lunch: seats must be positive"))
		}
		if _, err := r.lunchBlocks(); err != nil {
			errs = append(errs, err)
		}
	}

	levels := make(map[string]bool, len(r.Placements))
	for _, p := range r.Placements {
		if len(p.Levels) == 0 {
			errs = append(errs, fmt.Errorf("placements: %s has no levels", p.Department))
		}
		if levels[p.Department] {
			errs = append(errs, fmt.Errorf("placements: %s listed twice", p.Department))
		}
		levels[p.Department] = true
	}
	for _, d := range r.RequiredPlacement {
		if !levels[d] {
			errs = append(errs, fmt.Errorf("required_placement: %s has no placement levels", d))
		}
	}

	seen := make(map[string]bool, len(r.SpecialPlacements))
	for _, s := range r.SpecialPlacements {
		if seen[s.Label] {
			errs = append(errs, fmt.Errorf("special_placements: %q listed twice", s.Label))
		}
		seen[s.Label] = true
		if len(s.Targets) == 0 {
			errs = append(errs, fmt.Errorf("special_placements: %q has no targets", s.Label))
		}
		for _, t := range s.Targets {
			if t.Multiplier < 0 || t.Multiplier > 1 || math.IsNaN(t.Multiplier) {
				errs = append(errs, fmt.Errorf("special_placements: %q target %q multiplier %g outside [0,1]", s.Label, t.Course, t.Multiplier))
			}
		}
	}

	owner := make(map[string]string)
	for _, d := range r.Divisions {
		for _, dept := range d.Departments {
			if prev, ok := owner[dept]; ok {
				errs = append(errs, fmt.Errorf("divisions: %s in both %s and %s", dept, prev, d.Name))
			}
			owner[dept] = d.Name
		}
	}

	for _, rule := range r.ExamRules.Combined {
		if len(rule.Exams) == 0 || rule.Placement == "" {
			errs = append(errs, errors.New("exam_rules: combined rule needs exams and a placement"))
		}
	}
	for _, rule := range r.ExamRules.Provisional {
		if rule.Label == "" || rule.Placement == "" {
			errs = append(errs, errors.New("exam_rules: provisional rule needs a label and a placement"))
		}
	}

	if r.Markers.Lab == "" {
		errs = append(errs, errors.New("markers: lab marker is empty"))
	}

	return errors.Join(errs...)
}

func (r *Rules) index() {
	r.maxRank = 0
	for rank := range r.Weights {
		r.maxRank = max(r.maxRank, rank)
	}
	r.levels = make(map[string][]string, len(r.Placements))
	for _, p := range r.Placements {
		r.levels[p.Department] = p.Levels
	}
	r.required = make(map[string]bool, len(r.RequiredPlacement))
	for _, d := range r.RequiredPlacement {
		r.required[d] = true
	}
	r.special = make(map[string]SpecialPlacement, len(r.SpecialPlacements))
	for _, s := range r.SpecialPlacements {
		r.special[s.Label] = s
	}
	r.divisionOf = make(map[string]string)
	for _, d := range r.Divisions {
		for _, dept := range d.Departments {
			r.divisionOf[dept] = d.Name
		}
	}
	r.blocks, _ = r.lunchBlocks()
}

func (r *Rules) lunchBlocks() ([]Block, error) {
	if len(r.Lunch.Starts) == 0 {
		return nil, nil
	}
	starts := make([]model.Clock, len(r.Lunch.Starts))
	for i, s := range r.Lunch.Starts {
		c, err := model.ParseClock(s)
		if err != nil {
			return nil, fmt.Errorf("lunch: %w", err)
		}
		if i > 0 && c <= starts[i-1] {
			return nil, fmt.Errorf("lunch: start %s is not after %s", s, r.Lunch.Starts[i-1])
		}
		starts[i] = c
	}
	end, err := model.ParseClock(r.Lunch.LastEnd)
	if err != nil {
		return nil, fmt.Errorf("lunch: %w", err)
	}
	if end <= starts[len(starts)-1] {
		return nil, fmt.Errorf("lunch: last end %s is not after the last start", r.Lunch.LastEnd)
	}
	blocks := make([]Block, len(starts))
	for i, s := range starts {
		b := Block{Start: s}
		if i+1 < len(starts) {
			b.End = starts[i+1]
		} else {
			b.End = end
			b.Last = true
		}
		blocks[i] = b
	}
	return blocks, nil
}

// MaxRank is the highest rank in the weight table.
func (r *Rules) MaxRank() int {
	return r.maxRank
}

// Weight converts a rank into its objective premium. Integral ranks go
// through the table, ranks above the table use the top weight, and
// fractional ranks pass through unchanged.
func (r *Rules) Weight(rank float64) float64 {
	if rank <= 0 {
		return 0
	}
	if rank != math.Trunc(rank) {
		return rank
	}
	n := int(rank)
	if n > r.maxRank {
		n = r.maxRank
	}
	return r.Weights[n]
}

// Levels returns the ordered placement levels of a department.
func (r *Rules) Levels(dept string) ([]string, bool) {
	l, ok := r.levels[dept]
	return l, ok
}

// RequiresPlacement reports whether the department has no default level.
func (r *Rules) RequiresPlacement(dept string) bool {
	return r.required[dept]
}

func (r *Rules) Special(label string) (SpecialPlacement, bool) {
	s, ok := r.special[label]
	return s, ok
}

// DivisionOf returns the division a department belongs to.
func (r *Rules) DivisionOf(dept string) (string, bool) {
	d, ok := r.divisionOf[dept]
	return d, ok
}

// LunchBlocks returns the daily lunch slots in time order.
func (r *Rules) LunchBlocks() []Block {
	return slices.Clone(r.blocks)
}

// LunchWeight is the fixed rank every student gives a lunch block.
func (r *Rules) LunchWeight(b Block) float64 {
	if b.Last {
		return r.Lunch.LastWeight
	}
	return r.Lunch.Weight
}

func (r *Rules) IsIgnored(courseName string) bool {
	return slices.Contains(r.Ignore, courseName)
}

func (r *Rules) IsExclusive(title string) bool {
	return slices.Contains(r.ExclusiveTitles, title)
}

// WritingIntensive reports the flag for a section given its course types.
func (r *Rules) WritingIntensive(title, courseTypes string) bool {
	return r.Markers.WritingIntensive != "" &&
		strings.Contains(courseTypes, r.Markers.WritingIntensive) &&
		!slices.Contains(r.NotWritingIntensive, title)
}

func (r *Rules) FirstYearComposition(title, courseTypes string) bool {
	return r.Markers.FirstYearComposition != "" &&
		strings.Contains(courseTypes, r.Markers.FirstYearComposition) &&
		!slices.Contains(r.NotFirstYearComposition, title)
}

// LabSuffixes returns the alternate parent lettering for a department.
func (r *Rules) LabSuffixes(dept string) []string {
	return r.LabParentSuffixes[dept]
}
