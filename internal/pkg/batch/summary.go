package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/ohowland/doe_core/internal/pkg/envelope"
)

// Summary aggregates one batch run for dashboards and history.
type Summary struct {
	CalculationID uuid.UUID `json:"CalculationID" bson:"calculationId"`
	Timestamp     time.Time `json:"Timestamp" bson:"timestamp"`
	TotalNodes    int       `json:"TotalNodes" bson:"totalNodes"`
	Solved        int       `json:"Solved" bson:"solved"`
	Failed        int       `json:"Failed" bson:"failed"`
	Unattempted   int       `json:"Unattempted" bson:"unattempted"`
	TotalExportKW float64   `json:"TotalExportKW" bson:"totalExportKw"`
	MinExportKW   float64   `json:"MinExportKW" bson:"minExportKw"`
	AvgExportKW   float64   `json:"AvgExportKW" bson:"avgExportKw"`
	MaxExportKW   float64   `json:"MaxExportKW" bson:"maxExportKw"`
	// ByLimitingFactor counts solved nodes per binding constraint kind.
	ByLimitingFactor map[envelope.LimitingFactor]int `json:"ByLimitingFactor" bson:"byLimitingFactor"`
	DurationMS       float64                         `json:"DurationMS" bson:"durationMs"`
}

// summarize folds the per-node results into a Summary.
func summarize(id uuid.UUID, started time.Time, results []Result, unattempted []string) Summary {
	s := Summary{
		CalculationID:    id,
		Timestamp:        started,
		TotalNodes:       len(results) + len(unattempted),
		Unattempted:      len(unattempted),
		ByLimitingFactor: make(map[envelope.LimitingFactor]int),
	}

	for _, r := range results {
		if r.Envelope == nil {
			s.Failed++
			continue
		}
		exp := r.Envelope.ExportLimitKW
		if s.Solved == 0 || exp < s.MinExportKW {
			s.MinExportKW = exp
		}
		if exp > s.MaxExportKW {
			s.MaxExportKW = exp
		}
		s.TotalExportKW += exp
		s.ByLimitingFactor[r.Envelope.LimitingFactor]++
		s.Solved++
	}
	if s.Solved > 0 {
		s.AvgExportKW = s.TotalExportKW / float64(s.Solved)
	}
	s.DurationMS = float64(time.Since(started).Microseconds()) / 1000.0
	return s
}
