/*
solver.go Bounded binary search for one node's operating envelope. Candidates
are absolute powers at the connection point, displacing the target's own
forecast injection; every other node stays frozen at its forecast. At each
candidate the linearized deltas are applied to the forecast operating point and
tested against the constraint set with the forecast-uncertainty headroom
removed. The linear model is monotonic in the injected power, which is what
makes bisection on the feasible boundary valid.
*/

package envelope

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ohowland/doe_core/internal/pkg/constraint"
	"github.com/ohowland/doe_core/internal/pkg/network"
	"github.com/ohowland/doe_core/internal/pkg/sensitivity"
)

// SolverConfig holds the search parameters. All bounds are explicit so the
// worst-case work per node is a documented constant.
type SolverConfig struct {
	// MaxSearchKW is the search ceiling. Zero means the transformer's rated
	// capacity at the configured power factor.
	MaxSearchKW float64 `json:"MaxSearchKW"`
	// ResolutionKW is the convergence width of the search interval.
	ResolutionKW float64 `json:"ResolutionKW"`
	// MaxIterations caps the bisection steps per direction.
	MaxIterations int `json:"MaxIterations"`
	// UncertaintyMargin is the fraction of constraint headroom reserved for
	// forecast error.
	UncertaintyMargin float64 `json:"UncertaintyMargin"`
	// PowerFactor relates reactive to real power for candidate injections.
	PowerFactor float64 `json:"PowerFactor"`
}

// DefaultSolverConfig returns the stock search parameters.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		ResolutionKW:      0.01,
		MaxIterations:     64,
		UncertaintyMargin: 0.15,
		PowerFactor:       1.0,
	}
}

func (c SolverConfig) withDefaults() SolverConfig {
	d := DefaultSolverConfig()
	if c.ResolutionKW <= 0 {
		c.ResolutionKW = d.ResolutionKW
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.PowerFactor <= 0 {
		c.PowerFactor = d.PowerFactor
	}
	if c.UncertaintyMargin < 0 || c.UncertaintyMargin >= 1 {
		c.UncertaintyMargin = d.UncertaintyMargin
	}
	return c
}

// SearchError reports a search that hit its iteration cap before the interval
// closed. The best feasible value found is still usable; callers decide
// whether an unconverged limit is acceptable.
type SearchError struct {
	NodeID     string
	Direction  Direction
	Iterations int
	BestKW     float64
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("solver: %s search for %s unconverged after %d iterations, best feasible %.3f kW",
		e.Direction, e.NodeID, e.Iterations, e.BestKW)
}

// Report is the outcome of one node's solve: the envelope plus search
// diagnostics. Unconverged is set when either direction hit the iteration cap.
type Report struct {
	Envelope         OperatingEnvelope
	ExportIterations int
	ImportIterations int
	Unconverged      bool
}

// Solver computes operating envelopes against one calculator and constraint
// set. It holds no per-solve state and is safe for concurrent use.
type Solver struct {
	calc        *sensitivity.Calculator
	constraints *constraint.Set
	config      SolverConfig
	log         *zap.Logger
}

// NewSolver wires a solver to a sensitivity calculator and constraint set.
func NewSolver(calc *sensitivity.Calculator, constraints *constraint.Set, config SolverConfig) *Solver {
	return &Solver{
		calc:        calc,
		constraints: constraints,
		config:      config.withDefaults(),
		log:         zap.L().Named("solver"),
	}
}

// directionResult is the outcome of a single-direction search.
type directionResult struct {
	limitKW     float64
	factor      LimitingFactor
	iterations  int
	unconverged bool
	// voltageAtLimit is the target node voltage at the limiting operating point.
	voltageAtLimit float64
}

// Solve computes both envelope directions for one customer node. An
// unconverged search returns the report with the best feasible limits and a
// *SearchError; the values are safe (feasible) but wider convergence was cut
// short.
func (s *Solver) Solve(nodeID string) (Report, error) {
	started := time.Now()

	node, ok := s.calc.Model().Node(nodeID)
	if !ok {
		return Report{}, &network.TopologyError{Reason: network.ReasonBadElement, ElementID: nodeID, Detail: "unknown node"}
	}
	if node.Role == network.RoleSlack {
		return Report{}, fmt.Errorf("solver: %s is the slack bus", nodeID)
	}

	snap := s.calc.Baseline()
	if !snap.ValidUntil.After(started) {
		return Report{}, fmt.Errorf("solver: forecast snapshot expired at %v", snap.ValidUntil)
	}

	exp, err := s.search(node, Export)
	if err != nil {
		return Report{}, err
	}
	imp, err := s.search(node, Import)
	if err != nil {
		return Report{}, err
	}

	// The reported limiting factor is the export-side binding constraint
	// unless export ran clean and import did not.
	factor := exp.factor
	if factor == FactorNone {
		factor = imp.factor
	}

	f, _ := snap.Forecast(nodeID)
	env := OperatingEnvelope{
		ID:                    uuid.New(),
		NodeID:                nodeID,
		CustomerID:            node.CustomerID,
		ExportLimitKW:         exp.limitKW,
		ImportLimitKW:         imp.limitKW,
		LimitingFactor:        factor,
		PredictedVoltageV:     exp.voltageAtLimit,
		PredictedLoadKW:       f.PredictedLoadKW,
		PredictedGenerationKW: f.PredictedGenerationKW,
		Confidence:            snap.Confidence,
		CalculatedAt:          started,
		ValidUntil:            snap.ValidUntil,
		CalculationTimeMS:     float64(time.Since(started).Microseconds()) / 1000.0,
	}

	report := Report{
		Envelope:         env,
		ExportIterations: exp.iterations,
		ImportIterations: imp.iterations,
		Unconverged:      exp.unconverged || imp.unconverged,
	}

	if exp.unconverged {
		s.log.Warn("export search unconverged",
			zap.String("node", nodeID),
			zap.Int("iterations", exp.iterations),
			zap.Float64("best_kw", exp.limitKW))
		return report, &SearchError{NodeID: nodeID, Direction: Export, Iterations: exp.iterations, BestKW: exp.limitKW}
	}
	if imp.unconverged {
		s.log.Warn("import search unconverged",
			zap.String("node", nodeID),
			zap.Int("iterations", imp.iterations),
			zap.Float64("best_kw", imp.limitKW))
		return report, &SearchError{NodeID: nodeID, Direction: Import, Iterations: imp.iterations, BestKW: imp.limitKW}
	}

	s.log.Debug("solved",
		zap.String("node", nodeID),
		zap.Float64("export_kw", env.ExportLimitKW),
		zap.Float64("import_kw", env.ImportLimitKW),
		zap.String("factor", string(env.LimitingFactor)))
	return report, nil
}

// search bisects one direction over [0, ceiling]. Candidates are absolute
// powers at the connection point; the lower bound tracks the best known
// feasible power, the upper bound the lowest known infeasible one.
func (s *Solver) search(node network.Node, dir Direction) (directionResult, error) {
	ceiling, err := s.searchCeiling(node)
	if err != nil {
		return directionResult{}, err
	}

	// A zero injection must hold before any headroom exists.
	ok, factor, err := s.feasible(node, dir, 0)
	if err != nil {
		return directionResult{}, err
	}
	if !ok {
		v, err := s.voltageAt(node, dir, 0)
		if err != nil {
			return directionResult{}, err
		}
		return directionResult{limitKW: 0, factor: factor, voltageAtLimit: v}, nil
	}

	ok, factor, err = s.feasible(node, dir, ceiling)
	if err != nil {
		return directionResult{}, err
	}
	if ok {
		v, err := s.voltageAt(node, dir, ceiling)
		if err != nil {
			return directionResult{}, err
		}
		return directionResult{limitKW: ceiling, factor: FactorNone, voltageAtLimit: v}, nil
	}

	lo, hi := 0.0, ceiling
	binding := factor
	iterations := 0
	for hi-lo > s.config.ResolutionKW && iterations < s.config.MaxIterations {
		mid := lo + (hi-lo)/2
		ok, factor, err := s.feasible(node, dir, mid)
		if err != nil {
			return directionResult{}, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
			binding = factor
		}
		iterations++
	}

	v, err := s.voltageAt(node, dir, lo)
	if err != nil {
		return directionResult{}, err
	}
	return directionResult{
		limitKW:        lo,
		factor:         binding,
		iterations:     iterations,
		unconverged:    hi-lo > s.config.ResolutionKW,
		voltageAtLimit: v,
	}, nil
}

// searchCeiling is the configured upper bound, defaulting to the transformer's
// rated real power.
func (s *Solver) searchCeiling(node network.Node) (float64, error) {
	if s.config.MaxSearchKW > 0 {
		return s.config.MaxSearchKW, nil
	}
	t, ok := s.transformerFor(node)
	if !ok {
		return 0, fmt.Errorf("solver: no search ceiling configured and no transformer for node %s", node.ID)
	}
	return t.RatedKVA * s.config.PowerFactor, nil
}

// transformerFor resolves the transformer serving a node, falling back to the
// slack bus's transformer.
func (s *Solver) transformerFor(node network.Node) (network.Transformer, bool) {
	if node.TransformerID != "" {
		if t, ok := s.calc.Model().Transformer(node.TransformerID); ok {
			return t, true
		}
	}
	slack := s.calc.Model().Slack()
	if slack.TransformerID != "" {
		return s.calc.Model().Transformer(slack.TransformerID)
	}
	return network.Transformer{}, false
}

// signedKW converts a search magnitude into a signed injection.
func signedKW(dir Direction, magnitudeKW float64) float64 {
	if dir == Import {
		return -magnitudeKW
	}
	return magnitudeKW
}

// candidateDelta is the perturbation a candidate absolute power causes against
// the forecast operating point. The candidate replaces the target's own
// forecast injection rather than stacking on top of it, so the solved limit is
// the absolute power at the connection point.
func (s *Solver) candidateDelta(node network.Node, dir Direction, magnitudeKW float64) float64 {
	return signedKW(dir, magnitudeKW) - s.calc.Baseline().NetInjectionKW(node.ID)
}

// feasible tests one candidate power against every affected voltage and
// thermal constraint. Voltage bands are evaluated before ampacities; within a
// kind the resolver's priority ordering already picked the governing limit.
func (s *Solver) feasible(node network.Node, dir Direction, magnitudeKW float64) (bool, LimitingFactor, error) {
	deltaP := s.candidateDelta(node, dir, magnitudeKW)
	margin := 1.0 - s.config.UncertaintyMargin

	vDeltas, err := s.calc.VoltageDelta(node.ID, deltaP)
	if err != nil {
		return false, "", err
	}
	for _, affected := range s.calc.Model().Nodes() {
		dv, hit := vDeltas[affected.ID]
		if !hit {
			continue
		}
		lower, upper, err := s.constraints.VoltageBounds(affected.ID)
		if err != nil {
			return false, "", err
		}
		nominal := affected.NominalVolt
		upperEff := nominal + (upper-nominal)*margin
		lowerEff := nominal - (nominal-lower)*margin

		v := s.calc.Baseline().VoltageV(affected.ID, nominal) + dv
		if v > upperEff || v < lowerEff {
			return false, FactorVoltage, nil
		}
	}

	iDeltas, err := s.calc.CurrentDelta(node.ID, deltaP)
	if err != nil {
		return false, "", err
	}
	path, err := s.calc.Model().PathToRoot(node.ID)
	if err != nil {
		return false, "", err
	}
	for _, b := range path {
		limit, err := s.constraints.ThermalLimit(b.ID)
		if err != nil {
			return false, "", err
		}
		base, err := s.calc.BaselineFlowA(b.ID)
		if err != nil {
			return false, "", err
		}
		if math.Abs(base+iDeltas[b.ID]) > limit*margin {
			return false, FactorThermal, nil
		}
	}

	if t, ok := s.transformerFor(node); ok {
		limit, err := s.constraints.ThermalLimit(t.ID)
		var unresolved *constraint.UnresolvedError
		switch {
		case err == nil:
			flow := s.calc.SlackFlowA(t) + s.calc.TransformerCurrentDeltaA(t, deltaP)
			if math.Abs(flow) > limit*margin {
				return false, FactorThermal, nil
			}
		case errors.As(err, &unresolved):
			// no ampacity configured for the transformer; nothing to test
		default:
			return false, "", err
		}
	}

	return true, "", nil
}

// voltageAt is the target node voltage at a candidate operating point.
func (s *Solver) voltageAt(node network.Node, dir Direction, magnitudeKW float64) (float64, error) {
	vDeltas, err := s.calc.VoltageDelta(node.ID, s.candidateDelta(node, dir, magnitudeKW))
	if err != nil {
		return 0, err
	}
	base := s.calc.Baseline().VoltageV(node.ID, node.NominalVolt)
	return base + vDeltas[node.ID], nil
}
