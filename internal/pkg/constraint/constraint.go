/*
constraint.go Operating limits for the network: voltage bands on nodes and
ampacity on branches and transformers. Constraints are read-only inputs to a
calculation. The kind set is closed so the solver's evaluation loop can match
exhaustively.
*/

package constraint

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an operating limit.
type Kind string

// Constants of Kind
const (
	VoltageUpper Kind = "voltage_upper"
	VoltageLower Kind = "voltage_lower"
	Thermal      Kind = "thermal"
)

// ScopeAll marks a network-wide default constraint.
const ScopeAll = "all"

// Constraint is a single operating limit. Scope is either ScopeAll or the id
// of the node, branch or transformer the limit applies to. When several
// constraints of the same kind apply to one element, the tightest limit wins
// and Priority (lower first) breaks exact ties.
type Constraint struct {
	ID       string  `json:"ID"`
	Kind     Kind    `json:"Kind"`
	Limit    float64 `json:"Limit"`
	Unit     string  `json:"Unit"`
	Scope    string  `json:"Scope"`
	Priority int     `json:"Priority"`
}

// UnresolvedError reports that no constraint of the requested kind applies to
// an element. Absence of a limit is a configuration error, never an unlimited
// element.
type UnresolvedError struct {
	ElementID string
	Kind      Kind
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("constraint: no %s constraint applies to %s", e.Kind, e.ElementID)
}

// Set resolves the applicable limits for network elements.
type Set struct {
	constraints []Constraint
}

type definition struct {
	Constraints []Constraint `json:"Constraints"`
}

// New builds a Set from a constraint definition document.
func New(jsonDefinition []byte) (*Set, error) {
	def := definition{}
	if err := json.Unmarshal(jsonDefinition, &def); err != nil {
		return nil, err
	}
	return NewSet(def.Constraints), nil
}

// NewSet builds a Set from constraint records.
func NewSet(constraints []Constraint) *Set {
	cs := make([]Constraint, len(constraints))
	copy(cs, constraints)
	return &Set{constraints: cs}
}

// VoltageBounds resolves the voltage band for a node. Element-scoped
// constraints override the ScopeAll defaults; within the winning scope the
// tightest bound applies.
func (s *Set) VoltageBounds(nodeID string) (lower float64, upper float64, err error) {
	lo, err := s.resolve(VoltageLower, nodeID)
	if err != nil {
		return 0, 0, err
	}
	up, err := s.resolve(VoltageUpper, nodeID)
	if err != nil {
		return 0, 0, err
	}
	return lo.Limit, up.Limit, nil
}

// ThermalLimit resolves the ampacity for a branch or transformer.
func (s *Set) ThermalLimit(elementID string) (float64, error) {
	c, err := s.resolve(Thermal, elementID)
	if err != nil {
		return 0, err
	}
	return c.Limit, nil
}

// resolve picks the winning constraint of a kind for an element: scoped
// constraints beat ScopeAll defaults, then the tightest limit, then the lowest
// priority number.
func (s *Set) resolve(kind Kind, elementID string) (Constraint, error) {
	var best Constraint
	found := false
	scoped := false

	for _, c := range s.constraints {
		if c.Kind != kind {
			continue
		}
		switch c.Scope {
		case elementID:
			if !scoped {
				// first element-scoped match displaces any ScopeAll candidate
				best, found, scoped = c, true, true
				continue
			}
		case ScopeAll:
			if scoped {
				continue
			}
			if !found {
				best, found = c, true
				continue
			}
		default:
			continue
		}
		if tighter(kind, c, best) {
			best = c
		}
	}

	if !found {
		return Constraint{}, &UnresolvedError{ElementID: elementID, Kind: kind}
	}
	return best, nil
}

// tighter reports whether a is more restrictive than b for the given kind.
func tighter(kind Kind, a, b Constraint) bool {
	if a.Limit == b.Limit {
		return a.Priority < b.Priority
	}
	if kind == VoltageLower {
		// a higher floor is the tighter lower bound
		return a.Limit > b.Limit
	}
	return a.Limit < b.Limit
}
