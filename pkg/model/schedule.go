package model

import (
	"slices"
	"sort"
)

// Assignment is the solved student x section relation. It is built once
// and never mutated afterwards.
type Assignment struct {
	students []string
	sections map[string][]SectionID
	counts   map[SectionID]int
}

// NewAssignment copies the given relation. Section lists are sorted.
func NewAssignment(rel map[string][]SectionID) *Assignment {
	a := &Assignment{
		students: make([]string, 0, len(rel)),
		sections: make(map[string][]SectionID, len(rel)),
		counts:   make(map[SectionID]int),
	}
	for student, secs := range rel {
		cp := slices.Clone(secs)
		slices.Sort(cp)
		a.students = append(a.students, student)
		a.sections[student] = cp
		for _, s := range cp {
			a.counts[s]++
		}
	}
	sort.Strings(a.students)
	return a
}

// Students returns student ids in ascending order.
func (a *Assignment) Students() []string {
	return slices.Clone(a.students)
}

func (a *Assignment) SectionsOf(student string) []SectionID {
	return slices.Clone(a.sections[student])
}

func (a *Assignment) Assigned(student string, section SectionID) bool {
	_, found := slices.BinarySearch(a.sections[student], section)
	return found
}

// Count is the number of students assigned to the section.
func (a *Assignment) Count(section SectionID) int {
	return a.counts[section]
}

// AssignmentRow is one exported student x section pair.
type AssignmentRow struct {
	StudentID     string `csv:"ID"`
	Start         string `csv:"Start"`
	StudentName   string `csv:"Student Name"`
	Email         string `csv:"email"`
	StudentType   string `csv:"Stu Type"`
	MajorInterest string `csv:"Major Interests"`
	Graduate      string `csv:"Graduate Education"`
	Placements    string `csv:"Placements"`
	SectionName   string `csv:"Section Name"`
	Title         string `csv:"Title"`
	CourseTypes   string `csv:"Course Type"`
	MeetingInfo   string `csv:"Meeting Info"`
	Choice        int    `csv:"Priority"`
	RunID         string `csv:"Run"`
}

// SeatRow is the remaining-seat view of one section after assignment.
type SeatRow struct {
	SectionName string `csv:"Section Name"`
	Title       string `csv:"Short Title"`
	Seats       int    `csv:"Seats Available"`
	MeetingInfo string `csv:"Meeting Info"`
	CrossListed string `csv:"Crosslisted?"`
}
