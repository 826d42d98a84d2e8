package model

// MaxRankedRequests is the number of ranked request slots on the preference sheet.
const MaxRankedRequests = 12

type ExamScore struct {
	Exam  string
	Score int
}

// Student is the canonical in-memory shape of one preference sheet row.
// Profile fields are passed through untouched.
type Student struct {
	ID                string
	Name              string
	Email             string
	Requests          []string
	PlacementText     string
	Exams             []ExamScore
	MajorInterest     string
	StudentType       string
	GraduateEducation string
}

// HasRequests is false when the first ranked slot is blank.
func (s *Student) HasRequests() bool {
	return len(s.Requests) > 0 && s.Requests[0] != ""
}

// ExamMap returns exam scores keyed by exam name; later entries win.
func (s *Student) ExamMap() map[string]int {
	m := make(map[string]int, len(s.Exams))
	for _, e := range s.Exams {
		m[e.Exam] = e.Score
	}
	return m
}
