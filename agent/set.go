package agent

import (
	"fmt"

	"github.com/hupe1980/supportmesh/core"
)

// Set is the closed set of specialists keyed by issue type.
type Set struct {
	byType map[core.IssueType]*Specialist
	order  []*Specialist
}

// NewSet builds a set. Every issue type must be covered exactly once.
func NewSet(specialists ...*Specialist) (*Set, error) {
	s := &Set{byType: make(map[core.IssueType]*Specialist, len(specialists))}

	for _, sp := range specialists {
		if sp == nil {
			return nil, fmt.Errorf("agent set: nil specialist")
		}
		if _, dup := s.byType[sp.IssueType()]; dup {
			return nil, fmt.Errorf("agent set: duplicate specialist for %s", sp.IssueType())
		}
		s.byType[sp.IssueType()] = sp
		s.order = append(s.order, sp)
	}

	for _, t := range core.IssueTypes() {
		if _, ok := s.byType[t]; !ok {
			return nil, fmt.Errorf("agent set: missing specialist for %s", t)
		}
	}

	return s, nil
}

// Select returns the specialist for t. An unset or unknown issue type selects
// the general specialist.
func (s *Set) Select(t *core.IssueType) *Specialist {
	if t != nil {
		if sp, ok := s.byType[*t]; ok {
			return sp
		}
	}
	return s.byType[core.IssueTypeGeneral]
}

// Get looks up a specialist by handler name.
func (s *Set) Get(name string) (*Specialist, bool) {
	for _, sp := range s.order {
		if sp.Name() == name {
			return sp, true
		}
	}
	return nil, false
}

// All returns the specialists in registration order.
func (s *Set) All() []*Specialist {
	out := make([]*Specialist, len(s.order))
	copy(out, s.order)
	return out
}
