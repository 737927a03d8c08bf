package load

import "errors"

// ErrEmptySchedule is returned when a schedule has no definitions.
var ErrEmptySchedule = errors.New("load schedule must contain at least one definition")

// Schedule is an ordered, cyclic sequence of load definitions.
type Schedule struct {
	definitions []*Definition
}

// NewSchedule creates a schedule from the given definitions.
func NewSchedule(definitions []*Definition) (*Schedule, error) {
	if len(definitions) == 0 {
		return nil, ErrEmptySchedule
	}
	defs := make([]*Definition, len(definitions))
	copy(defs, definitions)
	return &Schedule{definitions: defs}, nil
}

// Get returns the definition at index i, wrapping cyclically.
func (s *Schedule) Get(i int) *Definition {
	return s.definitions[s.wrap(i)]
}

// Size returns the number of definitions.
func (s *Schedule) Size() int {
	return len(s.definitions)
}

// Next returns the index following i.
func (s *Schedule) Next(i int) int {
	return s.wrap(i + 1)
}

// MaxUsers returns the largest NumberOfUsers over all definitions. This is the
// number of agents a target has to create.
func (s *Schedule) MaxUsers() int {
	users := 0
	for _, d := range s.definitions {
		if d.NumberOfUsers > users {
			users = d.NumberOfUsers
		}
	}
	return users
}

// Definitions returns a copy of the definitions in order.
func (s *Schedule) Definitions() []*Definition {
	result := make([]*Definition, len(s.definitions))
	copy(result, s.definitions)
	return result
}

func (s *Schedule) wrap(i int) int {
	n := len(s.definitions)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
