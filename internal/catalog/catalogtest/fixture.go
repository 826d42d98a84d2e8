// Package catalogtest provides catalog records for tests across the engine.
package catalogtest

import (
	"strconv"

	"github.com/rhyrak/go-registrar/pkg/model"
)

// Record builds a catalog row with no enrollment.
func Record(dept, num, title, section string, capacity int, credit, types, meetings string) model.CatalogRecord {
	return model.CatalogRecord{
		Department:   dept,
		CourseNumber: num,
		Title:        title,
		Section:      section,
		Capacity:     strconv.Itoa(capacity),
		Enrolled:     "0",
		MinCredit:    credit,
		CourseTypes:  types,
		Meetings:     meetings,
	}
}

// Lecture formats a single lecture meeting the way the export does.
func Lecture(days, start, end string) string {
	return "08/26/2024-12/13/2024 SCI 101 LEC 1 " + days + " " + start + " " + end
}

// Lab formats a single lab meeting.
func Lab(days, start, end string) string {
	return "08/26/2024-12/13/2024 SCI 110 LAB 1 " + days + " " + start + " " + end
}

// Standard is a small first-year catalog exercising every grouping rule:
// a multi-section course, a cross-listed pair, a plain lab, a lab whose
// lecture uses lettered sections, an ignored course, a section without
// meeting text and one with unreadable text.
func Standard() []model.CatalogRecord {
	rows := []model.CatalogRecord{
		Record("MATH", "113", "CALCULUS I", "01", 20, "1", "", Lecture("MWF", "9:00AM", "9:50AM")),
		Record("MATH", "113", "CALCULUS I", "02", 20, "1", "", Lecture("MWF", "10:00AM", "10:50AM")),
		Record("MATH", "116", "CALCULUS II", "01", 15, "1", "", Lecture("TR", "9:00AM", "10:15AM")),
		Record("MATH", "216", "MULTIVARIABLE CALCULUS", "01", 15, "1", "", Lecture("MWF", "3:00PM", "3:50PM")),
		Record("MATH", "224", "LINEAR ALGEBRA", "01", 15, "1", "W", Lecture("TR", "3:00PM", "4:15PM")),
		Record("ECON", "100", "INTRODUCTION TO ECONOMICS", "01", 25, "1", "", Lecture("MW", "2:30PM", "3:45PM")),
		Record("ECON", "166", "ECON THEORY & EVIDENCE", "01", 25, "1", "", Lecture("TR", "10:30AM", "11:45AM")),
		Record("PHYS", "190", "MECHANICS", "01", 12, "1", "", Lecture("MWF", "8:00AM", "8:50AM")),
		Record("PHYS", "190L", "MECHANICS LAB", "01", 12, "0.25", "", Lab("M", "6:00PM", "9:00PM")),
		Record("PHYS", "100L", "PHYSICS PREVIEW", "01", 30, "0.25", "", Lab("T", "6:00PM", "9:00PM")),
		Record("HIST", "110", "FIRST YEAR SEMINAR", "01", 16, "1", "W FYC", Lecture("TR", "1:00PM", "2:15PM")),
		Record("PHIL", "101", "INTRO TO PHILOSOPHY", "01", 16, "1", "W", Lecture("MW", "1:00PM", "2:15PM")),
		Record("AMST", "210", "AMERICAN CULTURE", "01", 10, "1", "", Lecture("TR", "6:00PM", "7:15PM")),
		Record("HIST", "210", "AMERICAN CULTURE", "01", 8, "1", "", Lecture("TR", "6:00PM", "7:15PM")),
		Record("BIO", "101D", "INTRO BIOLOGY", "D", 10, "1", "", Lecture("MWF", "11:00AM", "11:50AM")),
		Record("BIO", "101E", "INTRO BIOLOGY", "E", 10, "1", "", Lecture("MWF", "12:00PM", "12:50PM")),
		Record("BIO", "101L", "INTRO BIOLOGY LAB", "L1", 10, "0.5", "", Lab("T", "1:00PM", "4:00PM")),
		Record("BIO", "101L", "INTRO BIOLOGY LAB", "L2", 10, "0.5", "", Lab("R", "1:00PM", "4:00PM")),
		Record("FRNCH", "101", "ELEMENTARY FRENCH", "01", 18, "1", "", Lecture("MTWRF", "4:00PM", "4:50PM")),
		Record("FRNCH", "201", "INTERMEDIATE FRENCH I", "01", 18, "1", "", Lecture("MWF", "9:00AM", "9:50AM")),
		Record("ARTH", "150", "ART HISTORY SURVEY", "01", 30, "1", "", ""),
		Record("DANCE", "105", "MODERN DANCE I", "01", 20, "1", "", "TBA"),
	}
	for i := range rows {
		rows[i].Row = i + 2
	}
	return rows
}
