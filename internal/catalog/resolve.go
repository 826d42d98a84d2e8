package catalog

import (
	"github.com/rhyrak/go-registrar/pkg/model"
)

// Strategy names how a course name was matched to a section.
type Strategy int

const (
	Unresolved Strategy = iota
	ByCourseName
	BySingletonDepartment
	ByCrossListing
)

func (s Strategy) String() string {
	switch s {
	case ByCourseName:
		return "course name"
	case BySingletonDepartment:
		return "singleton department"
	case ByCrossListing:
		return "cross-listing"
	default:
		return "unresolved"
	}
}

// Resolution is the outcome of a course name lookup. Raw holds the name that
// matched, or the first name tried when nothing did.
type Resolution struct {
	Course model.SectionID
	Raw    string
	Via    Strategy
}

func (r Resolution) Found() bool {
	return r.Via != Unresolved
}

type strategy struct {
	via    Strategy
	lookup func(c *Catalog, name string) (model.SectionID, bool)
}

var strategies = []strategy{
	{ByCourseName, func(c *Catalog, name string) (model.SectionID, bool) {
		id, ok := c.courseNames[name]
		return id, ok
	}},
	{BySingletonDepartment, func(c *Catalog, name string) (model.SectionID, bool) {
		id, ok := c.singleton[name]
		return id, ok
	}},
	{ByCrossListing, func(c *Catalog, name string) (model.SectionID, bool) {
		id, ok := c.aliases[name]
		return id, ok
	}},
}

// Resolve maps a course name ("DEPT NUM") or a bare department code to the
// canonical section id of the course, which is also the id of its group.
func (c *Catalog) Resolve(name string) Resolution {
	for _, s := range strategies {
		if id, ok := s.lookup(c, name); ok {
			return Resolution{Course: id, Raw: name, Via: s.via}
		}
	}
	return Resolution{Raw: name}
}

// ResolveFirst tries each name in order and returns the first match.
func (c *Catalog) ResolveFirst(names ...string) Resolution {
	for _, n := range names {
		if n == "" {
			continue
		}
		if r := c.Resolve(n); r.Found() {
			return r
		}
	}
	if len(names) == 0 {
		return Resolution{}
	}
	return Resolution{Raw: names[0]}
}
