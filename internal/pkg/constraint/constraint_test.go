package constraint

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func testConstraints() []Constraint {
	return []Constraint{
		{ID: "c1", Kind: VoltageUpper, Limit: 242, Unit: "V", Scope: ScopeAll, Priority: 1},
		{ID: "c2", Kind: VoltageLower, Limit: 218, Unit: "V", Scope: ScopeAll, Priority: 1},
		{ID: "c3", Kind: Thermal, Limit: 200, Unit: "A", Scope: ScopeAll, Priority: 1},
	}
}

func TestNewFromConfig(t *testing.T) {
	doc := []byte(`{"Constraints": [
		{"ID": "c1", "Kind": "voltage_upper", "Limit": 242, "Unit": "V", "Scope": "all", "Priority": 1},
		{"ID": "c2", "Kind": "voltage_lower", "Limit": 218, "Unit": "V", "Scope": "all", "Priority": 1}
	]}`)

	set, err := New(doc)
	assert.NilError(t, err)

	lower, upper, err := set.VoltageBounds("n-a1")
	assert.NilError(t, err)
	assert.Equal(t, lower, 218.0)
	assert.Equal(t, upper, 242.0)
}

func TestVoltageBoundsFallback(t *testing.T) {
	set := NewSet(testConstraints())

	lower, upper, err := set.VoltageBounds("n-a1")
	assert.NilError(t, err)
	assert.Equal(t, lower, 218.0)
	assert.Equal(t, upper, 242.0)
}

func TestScopedOverridesAll(t *testing.T) {
	cs := append(testConstraints(),
		Constraint{ID: "c4", Kind: VoltageUpper, Limit: 245, Unit: "V", Scope: "n-a1", Priority: 5})
	set := NewSet(cs)

	// the scoped constraint wins even when it is looser than the default
	_, upper, err := set.VoltageBounds("n-a1")
	assert.NilError(t, err)
	assert.Equal(t, upper, 245.0)

	_, upper, err = set.VoltageBounds("n-a2")
	assert.NilError(t, err)
	assert.Equal(t, upper, 242.0)
}

func TestTightestBoundWins(t *testing.T) {
	cs := append(testConstraints(),
		Constraint{ID: "c4", Kind: VoltageUpper, Limit: 240, Unit: "V", Scope: ScopeAll, Priority: 9},
		Constraint{ID: "c5", Kind: VoltageLower, Limit: 220, Unit: "V", Scope: ScopeAll, Priority: 9})
	set := NewSet(cs)

	lower, upper, err := set.VoltageBounds("n-a1")
	assert.NilError(t, err)
	assert.Equal(t, upper, 240.0)
	assert.Equal(t, lower, 220.0)
}

func TestThermalLimit(t *testing.T) {
	cs := append(testConstraints(),
		Constraint{ID: "c4", Kind: Thermal, Limit: 120, Unit: "A", Scope: "br-a2", Priority: 1})
	set := NewSet(cs)

	limit, err := set.ThermalLimit("br-a1")
	assert.NilError(t, err)
	assert.Equal(t, limit, 200.0)

	limit, err = set.ThermalLimit("br-a2")
	assert.NilError(t, err)
	assert.Equal(t, limit, 120.0)
}

func TestUnresolved(t *testing.T) {
	set := NewSet([]Constraint{
		{ID: "c1", Kind: VoltageUpper, Limit: 242, Unit: "V", Scope: "n-a1", Priority: 1},
	})

	_, _, err := set.VoltageBounds("n-a1")
	var unresolved *UnresolvedError
	assert.Assert(t, errors.As(err, &unresolved))
	assert.Equal(t, unresolved.Kind, VoltageLower)

	_, err = set.ThermalLimit("br-a1")
	assert.Assert(t, errors.As(err, &unresolved))
	assert.Equal(t, unresolved.ElementID, "br-a1")
}
