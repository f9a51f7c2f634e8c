/*
records.go Static equipment records for a low voltage distribution network: the
transformer, its buses (nodes) and the cable segments (branches) connecting them.
Records are loaded from a topology definition document and are read-only inputs
to the network model.
*/

package network

// Role classifies a node's electrical function in the power flow model.
type Role string

// Constants of Role
const (
	RoleSlack Role = "slack"
	RolePQ    Role = "pq"
	RolePV    Role = "pv"
	RoleLoad  Role = "load"
)

// Phase is the phase conductor a node is connected to. PhaseN marks a
// three-phase connection point.
type Phase string

// Constants of Phase
const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
	PhaseC Phase = "C"
	PhaseN Phase = "N"
)

// Transformer is the distribution transformer feeding the network.
type Transformer struct {
	ID                   string  `json:"ID"`
	Name                 string  `json:"Name"`
	RatedKVA             float64 `json:"RatedKVA"`
	PrimaryVolt          float64 `json:"PrimaryVolt"`
	SecondaryVolt        float64 `json:"SecondaryVolt"`
	ImpedancePercent     float64 `json:"ImpedancePercent"`
	XRRatio              float64 `json:"XRRatio"`
	MaxSecondaryAmp      float64 `json:"MaxSecondaryAmp"`
	EmergencyOverloadPct float64 `json:"EmergencyOverloadPct"`
}

// Node is a single bus. A node with a CustomerID is a prosumer connection
// point; the customer itself is external and referenced by id only.
type Node struct {
	ID            string  `json:"ID"`
	Name          string  `json:"Name"`
	Role          Role    `json:"Role"`
	Phase         Phase   `json:"Phase"`
	NominalVolt   float64 `json:"NominalVolt"`
	TransformerID string  `json:"TransformerID"`
	CustomerID    string  `json:"CustomerID"`
	// DistanceM is the cable run from the transformer in meters. Informational
	// only; the electrical calculation uses branch impedances.
	DistanceM float64 `json:"DistanceM"`
}

// HasCustomer reports whether a prosumer is attached to the node.
func (n Node) HasCustomer() bool {
	return n.CustomerID != ""
}

// Branch is a cable, line or switch segment directed away from the slack bus.
type Branch struct {
	ID        string  `json:"ID"`
	Type      string  `json:"Type"`
	FromNode  string  `json:"FromNode"`
	ToNode    string  `json:"ToNode"`
	LengthM   float64 `json:"LengthM"`
	ROhmPerKM float64 `json:"ROhmPerKM"`
	XOhmPerKM float64 `json:"XOhmPerKM"`
	MaxAmp    float64 `json:"MaxAmp"`
	IsClosed  bool    `json:"IsClosed"`
}

// ResistanceOhm is the total series resistance of the segment.
func (b Branch) ResistanceOhm() float64 {
	return b.ROhmPerKM * b.LengthM / 1000.0
}

// ReactanceOhm is the total series reactance of the segment.
func (b Branch) ReactanceOhm() float64 {
	return b.XOhmPerKM * b.LengthM / 1000.0
}
