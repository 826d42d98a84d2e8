package solver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeLimit is returned when the time limit or the context ends the
// search before the gap is proven.
var ErrTimeLimit = errors.New("solver: time limit reached before optimality was proven")

// InfeasibleModelError reports that no assignment satisfies the constraints
// of a component.
type InfeasibleModelError struct {
	Component   int
	Vars        []int
	Variables   []string
	Constraints []string
}

const maxListed = 8

func (e *InfeasibleModelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model infeasible: component %d with %d variables", e.Component, len(e.Variables))
	if len(e.Constraints) > 0 {
		b.WriteString(", constraints ")
		b.WriteString(list(e.Constraints))
	}
	return b.String()
}

func list(items []string) string {
	if len(items) <= maxListed {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:maxListed], ", ") + fmt.Sprintf(" and %d more", len(items)-maxListed)
}
