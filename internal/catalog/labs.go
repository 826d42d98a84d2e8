package catalog

import (
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

// parentCourseName strips the lab marker from a lab's course name:
// "PHYS 190L" belongs to "PHYS 190".
func parentCourseName(courseName, marker string) string {
	if p, ok := strings.CutSuffix(courseName, marker); ok {
		return p
	}
	if i := strings.LastIndex(courseName, marker); i > 0 {
		return courseName[:i]
	}
	return courseName
}

// linkLabs ties each lab to its parent lecture. When the parent course name
// does not resolve, the department's alternate section letters are tried and
// every lecture found is a parent.
func (c *Catalog) linkLabs(logger logr.Logger, r *rules.Rules) {
	for _, s := range c.sections {
		if !s.Lab || s.Group != s.ID {
			continue
		}
		link := model.LabLink{
			Lab:        s.ID,
			CourseName: s.CourseName,
			Sections:   c.Members(s.ID),
		}

		parent := parentCourseName(s.CourseName, r.Markers.Lab)
		if res := c.Resolve(parent); res.Found() && !c.IsLab(res.Course) {
			link.Parents = c.Members(res.Course)
		} else {
			for _, suffix := range r.LabSuffixes(s.Department) {
				res := c.Resolve(parent + suffix)
				if !res.Found() || c.IsLab(res.Course) {
					continue
				}
				for _, id := range c.Members(res.Course) {
					if !slices.Contains(link.Parents, id) {
						link.Parents = append(link.Parents, id)
					}
				}
			}
		}

		if link.Orphan() {
			logger.Info("lab has no parent lecture, it will stay empty", "lab", s.ID, "course", s.CourseName)
		}
		c.labLinks = append(c.labLinks, link)
	}
}
