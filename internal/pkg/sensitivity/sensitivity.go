/*
sensitivity.go Linearized voltage and current sensitivity of a radial network
to a single-node power injection. First-order model: voltage deviations are
assumed small against nominal, and every other node's injection is held fixed
while one node is perturbed. Linearity in the injected power is what makes the
envelope solver's binary search valid.
*/

package sensitivity

import (
	"fmt"
	"math"

	"github.com/ohowland/doe_core/internal/pkg/forecast"
	"github.com/ohowland/doe_core/internal/pkg/network"
)

// Calculator answers sensitivity queries against one network model and one
// frozen baseline snapshot. All methods are pure; the calculator never mutates
// its inputs and may be shared across concurrent solves.
type Calculator struct {
	model       *network.Model
	baseline    *forecast.Snapshot
	powerFactor float64
	tanPhi      float64
}

// New builds a Calculator. The power factor relates reactive to real power for
// injections (unity for PV-only connections) and must be in (0, 1].
func New(model *network.Model, baseline *forecast.Snapshot, powerFactor float64) (*Calculator, error) {
	if powerFactor <= 0 || powerFactor > 1 {
		return nil, fmt.Errorf("sensitivity: power factor %v out of range (0, 1]", powerFactor)
	}
	return &Calculator{
		model:       model,
		baseline:    baseline,
		powerFactor: powerFactor,
		tanPhi:      math.Tan(math.Acos(powerFactor)),
	}, nil
}

// phaseFactor is the current divisor term: sqrt(3) for three-phase connection
// points, 1 for single-phase (phase-tagged) LV nodes.
func phaseFactor(phase network.Phase) float64 {
	switch phase {
	case network.PhaseA, network.PhaseB, network.PhaseC:
		return 1.0
	default:
		return math.Sqrt(3)
	}
}

// VoltageDelta returns the approximate voltage change at every affected node
// caused by injecting deltaPKW additional real power at the target. A node is
// affected when it shares at least one branch with the target's path to root;
// its deviation is the sum of per-branch drops (R dP + X dQ) / Vnom over the
// shared prefix.
func (c *Calculator) VoltageDelta(targetID string, deltaPKW float64) (map[string]float64, error) {
	if _, ok := c.model.Node(targetID); !ok {
		return nil, fmt.Errorf("sensitivity: unknown target node %s", targetID)
	}

	deltaPW := deltaPKW * 1000.0
	deltaQVar := deltaPW * c.tanPhi

	deltas := make(map[string]float64)
	for _, n := range c.model.Nodes() {
		prefix, err := c.model.SharedPrefix(targetID, n.ID)
		if err != nil {
			return nil, err
		}
		if len(prefix) == 0 {
			continue
		}
		var dv float64
		for _, b := range prefix {
			dv += (b.ResistanceOhm()*deltaPW + b.ReactanceOhm()*deltaQVar) / n.NominalVolt
		}
		deltas[n.ID] = dv
	}
	return deltas, nil
}

// CurrentDelta returns the approximate current change on every branch of the
// target's path to root: dI = dP / (k Vnom pf), signed with the injection.
func (c *Calculator) CurrentDelta(targetID string, deltaPKW float64) (map[string]float64, error) {
	target, ok := c.model.Node(targetID)
	if !ok {
		return nil, fmt.Errorf("sensitivity: unknown target node %s", targetID)
	}
	path, err := c.model.PathToRoot(targetID)
	if err != nil {
		return nil, err
	}

	di := deltaPKW * 1000.0 / (phaseFactor(target.Phase) * target.NominalVolt * c.powerFactor)
	deltas := make(map[string]float64, len(path))
	for _, b := range path {
		deltas[b.ID] = di
	}
	return deltas, nil
}

// BaselineFlowA is the baseline current on a branch implied by the frozen
// injection vector: the net power of every node fed through the branch,
// converted at the branch's receiving node.
func (c *Calculator) BaselineFlowA(branchID string) (float64, error) {
	b, ok := c.model.Branch(branchID)
	if !ok {
		return 0, fmt.Errorf("sensitivity: unknown branch %s", branchID)
	}
	to, _ := c.model.Node(b.ToNode)

	var netKW float64
	for _, nodeID := range c.model.Downstream(branchID) {
		netKW += c.baseline.NetInjectionKW(nodeID)
	}
	return netKW * 1000.0 / (phaseFactor(to.Phase) * to.NominalVolt * c.powerFactor), nil
}

// SlackFlowA is the baseline current through the transformer secondary: the
// net power of the whole network converted at the secondary voltage.
func (c *Calculator) SlackFlowA(t network.Transformer) float64 {
	var netKW float64
	for _, n := range c.model.Nodes() {
		if n.Role == network.RoleSlack {
			continue
		}
		netKW += c.baseline.NetInjectionKW(n.ID)
	}
	return netKW * 1000.0 / (math.Sqrt(3) * t.SecondaryVolt * c.powerFactor)
}

// TransformerCurrentDeltaA is the current change on the transformer secondary
// for a real power injection anywhere in the network.
func (c *Calculator) TransformerCurrentDeltaA(t network.Transformer, deltaPKW float64) float64 {
	return deltaPKW * 1000.0 / (math.Sqrt(3) * t.SecondaryVolt * c.powerFactor)
}

// PowerFactor returns the configured injection power factor.
func (c *Calculator) PowerFactor() float64 {
	return c.powerFactor
}

// Baseline returns the frozen snapshot the calculator was built against.
func (c *Calculator) Baseline() *forecast.Snapshot {
	return c.baseline
}

// Model returns the network model the calculator was built against.
func (c *Calculator) Model() *network.Model {
	return c.model
}
