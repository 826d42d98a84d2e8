package catalog

import (
	"strings"

	"github.com/rhyrak/go-registrar/pkg/model"
)

// Instruction methods that carry a meeting pattern, in lookup order.
var methodTags = []string{"LEC", "LAB", "STU"}

// The days field starts this many characters after the method tag.
const methodOffset = 5

// Width of the days field when it is fused with the start time (MWF10:00AM).
const fusedDaysWidth = 3

// ParseMeetings reads the meeting intervals out of the multi-line meeting
// text of a catalog row. ok is false for text that has no usable pattern;
// a single malformed line discards the whole text.
func ParseMeetings(text string) (meetings []model.MeetingInterval, ok bool) {
	var prev [3]string
	for _, line := range strings.Split(text, "\n") {
		idx := -1
		for _, tag := range methodTags {
			if idx = strings.Index(line, tag); idx >= 0 {
				break
			}
		}
		if idx < 0 {
			continue
		}
		if idx+methodOffset > len(line) {
			return nil, false
		}

		fields := strings.Fields(line[idx+methodOffset:])
		var days, start, end string
		switch {
		case len(fields) >= 3:
			days, start, end = fields[0], fields[1], fields[2]
		case len(fields) == 2 && len(fields[0]) > fusedDaysWidth:
			days, start, end = fields[0][:fusedDaysWidth], fields[0][fusedDaysWidth:], fields[1]
		default:
			return nil, false
		}

		cur := [3]string{days, start, end}
		if cur == prev {
			continue
		}
		prev = cur

		s, err := model.ParseClock(start)
		if err != nil {
			return nil, false
		}
		e, err := model.ParseClock(end)
		if err != nil {
			return nil, false
		}
		meetings = append(meetings, model.MeetingInterval{Days: days, Start: s, End: e})
	}
	return meetings, len(meetings) > 0
}
