package network

import "fmt"

// Reason classifies a topology validation failure.
type Reason string

// Constants of Reason
const (
	ReasonCycle         Reason = "cycle"
	ReasonUnreachable   Reason = "unreachable"
	ReasonMultipleSlack Reason = "multiple slack"
	ReasonNoSlack       Reason = "no slack"
	ReasonBadElement    Reason = "bad element"
)

// TopologyError reports a malformed network definition. A malformed topology
// invalidates every envelope calculation, so callers treat it as fatal for the
// whole batch.
type TopologyError struct {
	Reason    Reason
	ElementID string
	Detail    string
}

func (e *TopologyError) Error() string {
	if e.ElementID == "" {
		return fmt.Sprintf("topology: %s", e.Reason)
	}
	if e.Detail != "" {
		return fmt.Sprintf("topology: %s: %s: %s", e.Reason, e.ElementID, e.Detail)
	}
	return fmt.Sprintf("topology: %s: %s", e.Reason, e.ElementID)
}
