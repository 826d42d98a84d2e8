// Package catalog turns the registrar's section export into the immutable
// set of schedulable sections: multi-section groups, cross-listed seat pools,
// lab links and the synthetic lunch blocks.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

const source = "catalog"

// Group is a multi-section group. ID is its first-seen member.
type Group struct {
	ID      model.SectionID
	Members []model.SectionID
}

// Catalog is read-only once Build returns.
type Catalog struct {
	sections    []*model.Section
	byID        map[model.SectionID]*model.Section
	groups      []Group
	groupIndex  map[model.SectionID]int
	courseNames map[string]model.SectionID
	aliases     map[string]model.SectionID
	crossNames  map[model.SectionID][]string
	singleton   map[string]model.SectionID
	departments map[string][]model.SectionID
	labs        []model.SectionID
	labLinks    []model.LabLink
	lunches     []model.SectionID
	noMeetings  []string
}

// Build creates the catalog from raw section records. Records are processed
// in (title, section) order; the first record of a title names the course.
func Build(ctx context.Context, records []model.CatalogRecord, r *rules.Rules) (*Catalog, error) {
	logger := logging.FromContext(ctx).WithName("catalog")

	rows := slices.Clone(records)
	slices.SortStableFunc(rows, func(a, b model.CatalogRecord) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.Section, b.Section))
	})

	c := &Catalog{
		byID:        make(map[model.SectionID]*model.Section),
		groupIndex:  make(map[model.SectionID]int),
		courseNames: make(map[string]model.SectionID),
		aliases:     make(map[string]model.SectionID),
		crossNames:  make(map[model.SectionID][]string),
		singleton:   make(map[string]model.SectionID),
		departments: make(map[string][]model.SectionID),
	}

	deptTitles := make(map[string]map[string]bool)
	deptFirst := make(map[string]string)
	first := make(map[string]*model.Section)

	for _, row := range rows {
		seats, credit, err := parseCounts(row)
		if err != nil {
			return nil, err
		}

		if deptTitles[row.Department] == nil {
			deptTitles[row.Department] = make(map[string]bool)
			deptFirst[row.Department] = row.Title
		}
		deptTitles[row.Department][row.Title] = true

		courseName := row.Department + " " + row.CourseNumber
		if r.IsIgnored(courseName) {
			logger.V(logging.DEBUG).Info("ignoring section", "course", courseName, "section", row.Section)
			continue
		}

		if strings.TrimSpace(row.Meetings) == "" {
			c.noMeetings = append(c.noMeetings, row.Title+" : No information given")
			continue
		}
		meetings, ok := ParseMeetings(row.Meetings)
		if !ok {
			c.noMeetings = append(c.noMeetings, row.Title)
		}

		lab := strings.Contains(row.CourseNumber, r.Markers.Lab)
		if lab {
			credit = 0
		}

		if f, seen := first[row.Title]; seen {
			if row.Department != f.Department {
				c.addAlias(f, courseName, seats)
				continue
			}
			id := model.SectionID(row.Title + "-" + row.Section)
			if _, dup := c.byID[id]; dup {
				return nil, &model.DataIntegrityError{
					Source: source, Row: row.Row, Key: string(id), Field: "Section", Value: row.Section,
					Err: fmt.Errorf("duplicate section of %q", row.Title),
				}
			}
			s := c.newSection(row, id, f.ID, courseName, seats, credit, meetings, r)
			s.Lab = lab || f.Lab
			c.join(f.ID, id)
			if _, taken := c.courseNames[courseName]; !taken {
				c.courseNames[courseName] = f.ID
			}
			continue
		}

		s := c.newSection(row, model.SectionID(row.Title), model.SectionID(row.Title), courseName, seats, credit, meetings, r)
		s.Lab = lab
		first[row.Title] = s
		if _, taken := c.courseNames[courseName]; !taken {
			c.courseNames[courseName] = s.ID
		}
	}

	for dept, titles := range deptTitles {
		if len(titles) == 1 {
			if s, ok := first[deptFirst[dept]]; ok {
				c.singleton[dept] = s.ID
			}
		}
	}

	for _, s := range c.sections {
		if s.Lab {
			c.labs = append(c.labs, s.ID)
			continue
		}
		if s.CrossListed {
			continue
		}
		c.departments[s.Department] = append(c.departments[s.Department], s.ID)
	}

	c.addLunches(r)
	c.linkLabs(logger, r)

	logger.Info("catalog built",
		"sections", len(c.sections),
		"groups", len(c.groups),
		"crossListed", len(c.crossNames),
		"labs", len(c.labLinks),
		"lunches", len(c.lunches),
		"noMeetings", len(c.noMeetings))
	return c, nil
}

func parseCounts(row model.CatalogRecord) (seats int, credit float64, err error) {
	capField, capValue := "Sched Capacity", row.Capacity
	if strings.TrimSpace(row.XListCapacity) != "" {
		capField, capValue = "XList Capacity", row.XListCapacity
	}
	capacity, err := strconv.Atoi(strings.TrimSpace(capValue))
	if err != nil {
		return 0, 0, integrityError(row, capField, capValue, err)
	}
	enrolled, err := strconv.Atoi(strings.TrimSpace(row.Enrolled))
	if err != nil {
		return 0, 0, integrityError(row, "Total Enr", row.Enrolled, err)
	}
	credit, err = strconv.ParseFloat(strings.TrimSpace(row.MinCredit), 64)
	if err != nil || credit < 0 || math.IsInf(credit, 0) || math.IsNaN(credit) {
		if err == nil {
			err = fmt.Errorf("credit out of range")
		}
		return 0, 0, integrityError(row, "Sched Min Cred", row.MinCredit, err)
	}
	return max(capacity-enrolled, 0), credit, nil
}

func integrityError(row model.CatalogRecord, field, value string, err error) error {
	return &model.DataIntegrityError{
		Source: source,
		Row:    row.Row,
		Key:    row.Title + " " + row.Section,
		Field:  field,
		Value:  value,
		Err:    err,
	}
}

func (c *Catalog) newSection(row model.CatalogRecord, id, group model.SectionID, courseName string, seats int, credit float64, meetings []model.MeetingInterval, r *rules.Rules) *model.Section {
	s := &model.Section{
		ID:                   id,
		Group:                group,
		Title:                row.Title,
		Department:           row.Department,
		CourseNumber:         row.CourseNumber,
		SectionLabel:         row.Section,
		CourseName:           courseName,
		Seats:                seats,
		Meetings:             meetings,
		MeetingInfo:          row.Meetings,
		Credit:               credit,
		CourseTypes:          row.CourseTypes,
		WritingIntensive:     r.WritingIntensive(row.Title, row.CourseTypes),
		FirstYearComposition: r.FirstYearComposition(row.Title, row.CourseTypes),
	}
	c.sections = append(c.sections, s)
	c.byID[id] = s
	return s
}

// join adds a section to the multi-section group headed by group.
func (c *Catalog) join(group, id model.SectionID) {
	i, ok := c.groupIndex[group]
	if !ok {
		c.groups = append(c.groups, Group{ID: group, Members: []model.SectionID{group}})
		i = len(c.groups) - 1
		c.groupIndex[group] = i
	}
	c.groups[i].Members = append(c.groups[i].Members, id)
	c.groupIndex[id] = i
}

// addAlias files a same-titled section of another department as a cross-listed
// name of f. The shared pool keeps the smallest seat count seen.
func (c *Catalog) addAlias(f *model.Section, courseName string, seats int) {
	if len(c.crossNames[f.ID]) == 0 {
		c.crossNames[f.ID] = []string{f.CourseName}
	}
	c.crossNames[f.ID] = append(c.crossNames[f.ID], courseName)
	if _, taken := c.aliases[courseName]; !taken {
		c.aliases[courseName] = f.ID
	}
	f.CrossListed = true
	f.Seats = min(f.Seats, seats)
}

// Section returns the section with the given id.
func (c *Catalog) Section(id model.SectionID) (*model.Section, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Sections returns all sections in catalog order, lunch blocks last.
func (c *Catalog) Sections() []*model.Section {
	return slices.Clone(c.sections)
}

func (c *Catalog) Len() int {
	return len(c.sections)
}

// Groups returns the multi-section groups, lunch days included.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		out[i] = Group{ID: g.ID, Members: slices.Clone(g.Members)}
	}
	return out
}

// Members returns every section of the group id belongs to; a standalone
// section is its own group.
func (c *Catalog) Members(id model.SectionID) []model.SectionID {
	if i, ok := c.groupIndex[id]; ok {
		return slices.Clone(c.groups[i].Members)
	}
	if _, ok := c.byID[id]; ok {
		return []model.SectionID{id}
	}
	return nil
}

// CrossListing returns the course names sharing the seat pool of id.
func (c *Catalog) CrossListing(id model.SectionID) []string {
	return slices.Clone(c.crossNames[id])
}

// CrossListed returns the canonical ids of all cross-listed courses.
func (c *Catalog) CrossListed() []model.SectionID {
	ids := make([]model.SectionID, 0, len(c.crossNames))
	for _, s := range c.sections {
		if _, ok := c.crossNames[s.ID]; ok {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Departments maps each department to its non-lab, non-cross-listed sections.
// The returned map is a fresh copy.
func (c *Catalog) Departments() map[string][]model.SectionID {
	out := make(map[string][]model.SectionID, len(c.departments))
	for d, ids := range c.departments {
		out[d] = slices.Clone(ids)
	}
	return out
}

// SingletonDepartments maps departments offering one title to that course.
func (c *Catalog) SingletonDepartments() map[string]model.SectionID {
	out := make(map[string]model.SectionID, len(c.singleton))
	for d, id := range c.singleton {
		out[d] = id
	}
	return out
}

// Labs returns every lab section.
func (c *Catalog) Labs() []model.SectionID {
	return slices.Clone(c.labs)
}

func (c *Catalog) IsLab(id model.SectionID) bool {
	s, ok := c.byID[id]
	return ok && s.Lab
}

func (c *Catalog) LabLinks() []model.LabLink {
	out := make([]model.LabLink, len(c.labLinks))
	for i, l := range c.labLinks {
		out[i] = model.LabLink{
			Lab:        l.Lab,
			CourseName: l.CourseName,
			Sections:   slices.Clone(l.Sections),
			Parents:    slices.Clone(l.Parents),
		}
	}
	return out
}

// Lunches returns the lunch block sections, day by day in time order.
func (c *Catalog) Lunches() []model.SectionID {
	return slices.Clone(c.lunches)
}

// NoMeetings lists titles whose meeting text was blank or unreadable.
func (c *Catalog) NoMeetings() []string {
	return slices.Clone(c.noMeetings)
}
