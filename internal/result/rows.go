package result

import (
	"fmt"
	"io"
	"strings"

	"github.com/rhyrak/go-registrar/internal/catalog"
	"github.com/rhyrak/go-registrar/internal/placement"
	"github.com/rhyrak/go-registrar/internal/preference"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Export carries the run identity stamped on every exported row.
type Export struct {
	Term  string
	RunID string
}

// AssignmentRows renders one row per assigned section; lunch blocks are
// not exported. prefs and summaries must be index aligned.
func (r *Reporter) AssignmentRows(prefs []*preference.Result, summaries []*Summary, e Export) []model.AssignmentRow {
	var rows []model.AssignmentRow
	for i, s := range summaries {
		p := prefs[i]
		placements := r.placementText(p.Placements)
		for _, id := range s.Sections {
			sec, ok := r.cat.Section(id)
			if !ok || sec.Lunch {
				continue
			}
			rows = append(rows, model.AssignmentRow{
				StudentID:     s.Student.ID,
				Start:         e.Term,
				StudentName:   s.Student.Name,
				Email:         s.Student.Email,
				StudentType:   s.Student.StudentType,
				MajorInterest: s.Student.MajorInterest,
				Graduate:      s.Student.GraduateEducation,
				Placements:    placements,
				SectionName:   sectionName(sec, p.RequestedAs[id]),
				Title:         string(sec.ID),
				CourseTypes:   strings.Join(strings.Fields(sec.CourseTypes), " "),
				MeetingInfo:   sec.MeetingInfo,
				Choice:        s.Choices[id],
				RunID:         e.RunID,
			})
		}
	}
	return rows
}

// sectionName uses the student's own wording of the course, so placement
// overrides stay visible. Labs use the catalog name.
func sectionName(s *model.Section, requestedAs string) string {
	if s.Lab || requestedAs == "" {
		return s.Department + "-" + s.CourseNumber + "-" + s.SectionLabel
	}
	return strings.Join(strings.Fields(requestedAs), "-") + "-" + s.SectionLabel
}

func (r *Reporter) placementText(ps []placement.Placement) string {
	var b strings.Builder
	for _, p := range ps {
		b.WriteString(p.Label)
		if !p.Found {
			b.WriteString(" (Not found) | ")
			continue
		}
		name := p.Label
		if s, ok := r.cat.Section(model.SectionID(p.Label)); ok {
			name = s.CourseName
		}
		b.WriteString(" (" + name + ") |")
	}
	return b.String()
}

// SeatRows renders the remaining seats of every non-lunch section.
func SeatRows(cat *catalog.Catalog, a *model.Assignment) []model.SeatRow {
	seats := RemainingSeats(cat, a)
	var rows []model.SeatRow
	for _, s := range cat.Sections() {
		if s.Lunch {
			continue
		}
		cross := "N"
		if s.CrossListed {
			cross = "Y"
		}
		rows = append(rows, model.SeatRow{
			SectionName: s.Department + "-" + s.CourseNumber + "-" + s.SectionLabel,
			Title:       string(s.ID),
			Seats:       seats[s.ID],
			MeetingInfo: s.MeetingInfo,
			CrossListed: cross,
		})
	}
	return rows
}

const rule = "------------------------------------------------------------------------------\n\n"

// WriteReport renders the run statistics as plain text.
func WriteReport(w io.Writer, st *Stats, noPriorities []*model.Student) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Students scheduled: %d\n", st.Students)
	fmt.Fprintf(&b, "Assigned sections: %d\n", st.Assignments)
	fmt.Fprintf(&b, "Average choice: %.3f\n\n", st.AverageChoice)
	b.WriteString(rule)

	fmt.Fprintf(&b, "Students that did not complete preferences (total = %d):\n\n", len(noPriorities))
	for _, s := range noPriorities {
		fmt.Fprintf(&b, "%s %s\n", s.Name, s.ID)
	}
	b.WriteString("\n" + rule)

	fmt.Fprintf(&b, "Students that did not get a full load (total = %d):\n\n", len(st.NotFullLoad))
	for _, id := range sortedKeys(st.NotFullLoad) {
		fmt.Fprintf(&b, "%s with %g credits\n", id, st.NotFullLoad[id])
	}
	b.WriteString("\n" + rule)

	for _, list := range []struct {
		title string
		ids   []string
	}{
		{"did not get any of the 4 top choices", st.NoTopFour},
		{"did not get their first choice", st.NoFirstChoice},
		{"did not get first or second choice", st.NoTopTwo},
	} {
		fmt.Fprintf(&b, "Students that %s (total = %d):\n\n", list.title, len(list.ids))
		for _, id := range list.ids {
			b.WriteString(id + "\n")
		}
		b.WriteString("\n" + rule)
	}

	fmt.Fprintf(&b, "Students that did not get every lunch (total = %d):\n\n", len(st.FewLunches))
	for _, id := range sortedKeys(st.FewLunches) {
		fmt.Fprintf(&b, "%s %d\n", id, st.FewLunches[id])
	}
	b.WriteString("\n" + rule)

	fmt.Fprintf(&b, "Total of %d empty seats in %d sections.\n", st.EmptySeats, len(st.UnfilledCourse))
	_, err := io.WriteString(w, b.String())
	return err
}
