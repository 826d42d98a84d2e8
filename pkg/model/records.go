package model

// CatalogRecord is one offered section as exported by the registrar's tour guide.
// Numeric fields are kept as text and parsed by the catalog.
type CatalogRecord struct {
	Department    string `csv:"Dept"`
	CourseNumber  string `csv:"Course Number"`
	Title         string `csv:"Short Title"`
	Section       string `csv:"Section"`
	Capacity      string `csv:"Sched Capacity"`
	XListCapacity string `csv:"XList Capacity"`
	Enrolled      string `csv:"Total Enr"`
	MinCredit     string `csv:"Sched Min Cred"`
	CourseTypes   string `csv:"Course Types"`
	Meetings      string `csv:"Start/End Date Bldg Room Meth Days Start/End time"`
	Row           int    `csv:"-"`
}

// StudentRecord is one row of the preference sheet.
type StudentRecord struct {
	ID                string `csv:"id"`
	Name              string `csv:"name"`
	Email             string `csv:"ham email"`
	Area1             string `csv:"area 1"`
	Area2             string `csv:"area 2"`
	Area3             string `csv:"area 3"`
	HEOP              string `csv:"HEOP"`
	GraduateEducation string `csv:"graduate education"`
	Placements        string `csv:"placements"`
	Priority1         string `csv:"priority 1"`
	Priority2         string `csv:"priority 2"`
	Priority3         string `csv:"priority 3"`
	Priority4         string `csv:"priority 4"`
	Priority5         string `csv:"priority 5"`
	Priority6         string `csv:"priority 6"`
	Priority7         string `csv:"priority 7"`
	Priority8         string `csv:"priority 8"`
	Priority9         string `csv:"priority 9"`
	Priority10        string `csv:"priority 10"`
	Priority11        string `csv:"priority 11"`
	Priority12        string `csv:"priority 12"`
	AP1               string `csv:"AP 1"`
	AP2               string `csv:"AP 2"`
	AP3               string `csv:"AP 3"`
	AP4               string `csv:"AP 4"`
	AP5               string `csv:"AP 5"`
	AP6               string `csv:"AP 6"`
	AP7               string `csv:"AP 7"`
	AP8               string `csv:"AP 8"`
	AP9               string `csv:"AP 9"`
	AP10              string `csv:"AP 10"`
	AP11              string `csv:"AP 11"`
	AP12              string `csv:"AP 12"`
	AP13              string `csv:"AP 13"`
	AP14              string `csv:"AP 14"`
	AP15              string `csv:"AP 15"`
	Row               int    `csv:"-"`
}

// Requests returns the ranked request columns, most preferred first.
func (r *StudentRecord) Requests() []string {
	return []string{
		r.Priority1, r.Priority2, r.Priority3, r.Priority4, r.Priority5, r.Priority6,
		r.Priority7, r.Priority8, r.Priority9, r.Priority10, r.Priority11, r.Priority12,
	}
}

// Exams returns the exam columns up to the first blank one.
func (r *StudentRecord) Exams() []string {
	all := []string{
		r.AP1, r.AP2, r.AP3, r.AP4, r.AP5, r.AP6, r.AP7, r.AP8,
		r.AP9, r.AP10, r.AP11, r.AP12, r.AP13, r.AP14, r.AP15,
	}
	for i, e := range all {
		if e == "" {
			return all[:i]
		}
	}
	return all
}
