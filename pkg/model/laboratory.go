package model

// LabLink ties every section of a lab to the sections of its parent lecture.
// A student takes one of Sections exactly when they take one of Parents.
type LabLink struct {
	Lab        SectionID
	CourseName string
	Sections   []SectionID
	Parents    []SectionID
}

// Orphan is true when no parent lecture could be resolved for the lab.
func (l LabLink) Orphan() bool {
	return len(l.Parents) == 0
}
