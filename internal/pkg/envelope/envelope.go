/*
envelope.go The operating envelope value: the maximum safe instantaneous
export and import power for one grid-connected customer, valid until the
forecast horizon it was computed from. Envelopes are never mutated after
construction; a recalculation produces a new value.
*/

package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Direction of the envelope search.
type Direction string

// Constants of Direction
const (
	Export Direction = "export"
	Import Direction = "import"
)

// LimitingFactor names the constraint kind that bound the search.
type LimitingFactor string

// Constants of LimitingFactor
const (
	FactorVoltage LimitingFactor = "voltage"
	FactorThermal LimitingFactor = "thermal"
	// FactorNone means the search ceiling was reached without any constraint
	// binding.
	FactorNone LimitingFactor = "none"
)

// OperatingEnvelope is the computed result for one node. Export and import
// limits are both magnitudes (kW out of / into the grid) and never negative.
type OperatingEnvelope struct {
	ID                    uuid.UUID      `json:"ID" bson:"id"`
	NodeID                string         `json:"NodeID" bson:"nodeId"`
	CustomerID            string         `json:"CustomerID" bson:"customerId"`
	ExportLimitKW         float64        `json:"ExportLimitKW" bson:"exportLimitKw"`
	ImportLimitKW         float64        `json:"ImportLimitKW" bson:"importLimitKw"`
	LimitingFactor        LimitingFactor `json:"LimitingFactor" bson:"limitingFactor"`
	PredictedVoltageV     float64        `json:"PredictedVoltageV" bson:"predictedVoltageV"`
	PredictedLoadKW       float64        `json:"PredictedLoadKW" bson:"predictedLoadKw"`
	PredictedGenerationKW float64        `json:"PredictedGenerationKW" bson:"predictedGenerationKw"`
	Confidence            float64        `json:"Confidence" bson:"confidence"`
	CalculatedAt          time.Time      `json:"CalculatedAt" bson:"calculatedAt"`
	ValidUntil            time.Time      `json:"ValidUntil" bson:"validUntil"`
	CalculationTimeMS     float64        `json:"CalculationTimeMS" bson:"calculationTimeMs"`
}
