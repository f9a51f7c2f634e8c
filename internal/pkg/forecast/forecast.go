/*
forecast.go Input model for the forecast snapshot supplied by the upstream
prediction subsystem. A snapshot is a complete, timestamped picture of the
expected nodal operating point; the engine treats it as read-only for the
lifetime of a batch calculation.
*/

package forecast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Forecast is the predicted operating point of a single node.
type Forecast struct {
	PredictedLoadKW       float64 `json:"PredictedLoadKW"`
	PredictedGenerationKW float64 `json:"PredictedGenerationKW"`
	PredictedVoltageV     float64 `json:"PredictedVoltageV"`
}

// Snapshot is a per-node forecast set with an explicit validity horizon.
// Envelopes computed from a snapshot inherit its horizon and confidence.
type Snapshot struct {
	Timestamp  time.Time           `json:"Timestamp"`
	ValidUntil time.Time           `json:"ValidUntil"`
	Confidence float64             `json:"Confidence"`
	Nodes      map[string]Forecast `json:"Nodes"`
}

// DefaultConfidence is assumed when the upstream forecaster reports none.
const DefaultConfidence = 0.95

// New parses a snapshot document and validates its horizon.
func New(jsonDocument []byte) (*Snapshot, error) {
	s := Snapshot{}
	if err := json.Unmarshal(jsonDocument, &s); err != nil {
		return nil, err
	}
	if !s.ValidUntil.After(s.Timestamp) {
		return nil, fmt.Errorf("forecast: snapshot horizon %v not after timestamp %v", s.ValidUntil, s.Timestamp)
	}
	if s.Confidence <= 0 || s.Confidence > 1 {
		s.Confidence = DefaultConfidence
	}
	if s.Nodes == nil {
		s.Nodes = make(map[string]Forecast)
	}
	return &s, nil
}

// Forecast looks up a node's forecast.
func (s *Snapshot) Forecast(nodeID string) (Forecast, bool) {
	f, ok := s.Nodes[nodeID]
	return f, ok
}

// NetInjectionKW is the node's signed baseline injection: generation minus
// load, positive toward the grid. Nodes without a forecast inject nothing.
func (s *Snapshot) NetInjectionKW(nodeID string) float64 {
	f, ok := s.Nodes[nodeID]
	if !ok {
		return 0
	}
	return f.PredictedGenerationKW - f.PredictedLoadKW
}

// VoltageV is the node's predicted voltage, or the fallback (typically the
// nominal voltage) when the forecaster did not predict one.
func (s *Snapshot) VoltageV(nodeID string, fallback float64) float64 {
	f, ok := s.Nodes[nodeID]
	if !ok || f.PredictedVoltageV <= 0 {
		return fallback
	}
	return f.PredictedVoltageV
}
