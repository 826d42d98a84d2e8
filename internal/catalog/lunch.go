package catalog

import (
	"fmt"

	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// LunchID names the lunch block of a day, e.g. "LUNCH M 11:00AM".
func LunchID(day byte, start model.Clock) model.SectionID {
	return model.SectionID(fmt.Sprintf("LUNCH %c %s", day, start))
}

// addLunches injects one private multi-section group per lunch day.
func (c *Catalog) addLunches(r *rules.Rules) {
	blocks := r.LunchBlocks()
	if len(blocks) == 0 {
		return
	}
	dept := r.Lunch.Department
	for i := 0; i < len(r.Lunch.Days); i++ {
		day := r.Lunch.Days[i]
		group := LunchID(day, blocks[0].Start)
		for _, b := range blocks {
			id := LunchID(day, b.Start)
			s := &model.Section{
				ID:           id,
				Group:        group,
				Title:        string(id),
				Department:   dept,
				CourseNumber: dept,
				SectionLabel: string(day),
				CourseName:   dept,
				Seats:        r.Lunch.Seats,
				Meetings:     []model.MeetingInterval{{Days: string(day), Start: b.Start, End: b.End}},
				Credit:       r.Lunch.Credit,
				CourseTypes:  "N/A",
				Lunch:        true,
			}
			c.sections = append(c.sections, s)
			c.byID[id] = s
			c.lunches = append(c.lunches, id)
			if id != group {
				c.join(group, id)
			}
		}
	}
}
