package forecast

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

const snapshotDocument = `{
	"Timestamp": "2026-03-01T10:00:00Z",
	"ValidUntil": "2026-03-01T10:30:00Z",
	"Confidence": 0.9,
	"Nodes": {
		"n-a1": {"PredictedLoadKW": 2.5, "PredictedGenerationKW": 4.0, "PredictedVoltageV": 231.5},
		"n-a2": {"PredictedLoadKW": 1.0}
	}
}`

func TestNewFromDocument(t *testing.T) {
	s, err := New([]byte(snapshotDocument))
	assert.NilError(t, err)
	assert.Equal(t, s.Confidence, 0.9)

	f, ok := s.Forecast("n-a1")
	assert.Assert(t, ok)
	assert.Equal(t, f.PredictedVoltageV, 231.5)

	_, ok = s.Forecast("n-z9")
	assert.Assert(t, !ok)
}

func TestRejectsInvertedHorizon(t *testing.T) {
	doc := `{
		"Timestamp": "2026-03-01T10:30:00Z",
		"ValidUntil": "2026-03-01T10:00:00Z"
	}`
	_, err := New([]byte(doc))
	assert.Assert(t, err != nil)
}

func TestDefaultConfidence(t *testing.T) {
	doc := `{
		"Timestamp": "2026-03-01T10:00:00Z",
		"ValidUntil": "2026-03-01T10:30:00Z"
	}`
	s, err := New([]byte(doc))
	assert.NilError(t, err)
	assert.Equal(t, s.Confidence, DefaultConfidence)
	assert.Assert(t, s.Nodes != nil)
}

func TestNetInjection(t *testing.T) {
	s, err := New([]byte(snapshotDocument))
	assert.NilError(t, err)

	assert.Equal(t, s.NetInjectionKW("n-a1"), 1.5)
	assert.Equal(t, s.NetInjectionKW("n-a2"), -1.0)
	// nodes without a forecast sit at their baseline
	assert.Equal(t, s.NetInjectionKW("n-z9"), 0.0)
}

func TestVoltageFallback(t *testing.T) {
	s, err := New([]byte(snapshotDocument))
	assert.NilError(t, err)

	assert.Equal(t, s.VoltageV("n-a1", 230), 231.5)
	assert.Equal(t, s.VoltageV("n-a2", 230), 230.0)
	assert.Equal(t, s.VoltageV("n-z9", 230), 230.0)
}

func TestHorizonOrdering(t *testing.T) {
	s, err := New([]byte(snapshotDocument))
	assert.NilError(t, err)
	assert.Assert(t, s.ValidUntil.After(s.Timestamp))
	assert.Equal(t, s.ValidUntil.Sub(s.Timestamp), 30*time.Minute)
}
