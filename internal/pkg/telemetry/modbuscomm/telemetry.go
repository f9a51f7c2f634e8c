/*
telemetry.go Calibrates a forecast snapshot against live meter readings.
Nodes with a reachable meter get their predicted voltage, load and generation
replaced by measured values before the envelope batch runs; nodes without a
meter keep the forecaster's numbers. The input snapshot is never mutated.
*/

package modbuscomm

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/ohowland/doe_core/internal/pkg/forecast"
)

// Reading names recognized in a meter's register map.
const (
	ReadingVoltageV     = "voltage_v"
	ReadingLoadKW       = "load_kw"
	ReadingGenerationKW = "generation_kw"
)

// Meter associates one node with a polled register set.
type Meter struct {
	NodeID    string       `json:"NodeID"`
	Poller    PollerConfig `json:"Poller"`
	Registers []Register   `json:"Registers"`
}

type definition struct {
	Meters []Meter `json:"Meters"`
}

// LoadMeters parses a meter configuration document.
func LoadMeters(configPath string) ([]Meter, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	def := definition{}
	if err := json.Unmarshal(jsonConfig, &def); err != nil {
		return nil, err
	}
	return def.Meters, nil
}

// Calibrate polls every meter and returns a copy of the snapshot with
// measured values substituted for predictions. An unreachable meter leaves
// its node's forecast untouched; the forecast alone is a complete input.
func Calibrate(snapshot *forecast.Snapshot, meters []Meter) *forecast.Snapshot {
	log := zap.L().Named("modbus")

	calibrated := forecast.Snapshot{
		Timestamp:  snapshot.Timestamp,
		ValidUntil: snapshot.ValidUntil,
		Confidence: snapshot.Confidence,
		Nodes:      make(map[string]forecast.Forecast, len(snapshot.Nodes)),
	}
	for id, f := range snapshot.Nodes {
		calibrated.Nodes[id] = f
	}

	for _, meter := range meters {
		poller := NewPoller(meter.Poller)
		values, err := poller.Read(meter.Registers)
		if err != nil {
			log.Warn("meter read incomplete",
				zap.String("node", meter.NodeID),
				zap.Error(err))
		}
		if len(values) == 0 {
			continue
		}

		f := calibrated.Nodes[meter.NodeID]
		if v, ok := values[ReadingVoltageV]; ok {
			f.PredictedVoltageV = v
		}
		if v, ok := values[ReadingLoadKW]; ok {
			f.PredictedLoadKW = v
		}
		if v, ok := values[ReadingGenerationKW]; ok {
			f.PredictedGenerationKW = v
		}
		calibrated.Nodes[meter.NodeID] = f
	}
	return &calibrated
}
