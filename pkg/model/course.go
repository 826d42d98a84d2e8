package model

import (
	"fmt"
	"strings"
	"time"
)

type SectionID string

// Clock is a time of day in minutes after midnight.
type Clock int

const clockLayout = "3:04PM"

// ParseClock parses 12-hour times such as "10:00AM" or "1:30PM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return time.Date(0, 1, 1, int(c)/60, int(c)%60, 0, 0, time.UTC).Format(clockLayout)
}

// MeetingInterval is one weekly meeting pattern. Days holds weekday letters (MTWRF).
type MeetingInterval struct {
	Days  string
	Start Clock
	End   Clock
}

// Overlaps reports whether both intervals share a weekday and their half-open
// time ranges intersect.
func (m MeetingInterval) Overlaps(o MeetingInterval) bool {
	return strings.ContainsAny(m.Days, o.Days) && m.Start < o.End && o.Start < m.End
}

func (m MeetingInterval) String() string {
	return m.Days + " " + m.Start.String() + " " + m.End.String()
}

// Section is a schedulable offering. Group is the canonical id of the
// multi-section group the section belongs to, or its own ID when standalone.
type Section struct {
	ID                   SectionID
	Group                SectionID
	Title                string
	Department           string
	CourseNumber         string
	SectionLabel         string
	CourseName           string
	Seats                int
	Meetings             []MeetingInterval
	MeetingInfo          string
	Credit               float64
	CourseTypes          string
	WritingIntensive     bool
	FirstYearComposition bool
	Lab                  bool
	Lunch                bool
	CrossListed          bool
}

// HasMeetings is false for sections without a fixed meeting time.
func (s *Section) HasMeetings() bool {
	return len(s.Meetings) > 0
}

// Overlaps reports whether any meeting of s conflicts with any meeting of o.
func (s *Section) Overlaps(o *Section) bool {
	for _, a := range s.Meetings {
		for _, b := range o.Meetings {
			if a.Overlaps(b) {
				return true
			}
		}
	}
	return false
}
