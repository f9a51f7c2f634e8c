package network

import (
	"errors"
	"os"
	"testing"

	"gotest.tools/v3/assert"
)

var CONFIGPATH = "network_test_config.json"

func testTransformers() []Transformer {
	return []Transformer{
		{ID: "tx1", Name: "TEST_Transformer", RatedKVA: 50, PrimaryVolt: 22000, SecondaryVolt: 400, MaxSecondaryAmp: 72},
	}
}

func testNodes() []Node {
	return []Node{
		{ID: "n0", Role: RoleSlack, Phase: PhaseN, NominalVolt: 400, TransformerID: "tx1"},
		{ID: "n-a1", Role: RolePV, Phase: PhaseA, NominalVolt: 230, CustomerID: "cust-a1", DistanceM: 50},
		{ID: "n-a2", Role: RolePV, Phase: PhaseA, NominalVolt: 230, CustomerID: "cust-a2", DistanceM: 250},
		{ID: "n-b1", Role: RoleLoad, Phase: PhaseB, NominalVolt: 230, CustomerID: "cust-b1", DistanceM: 50},
	}
}

func testBranches() []Branch {
	return []Branch{
		{ID: "br-a1", Type: "cable", FromNode: "n0", ToNode: "n-a1", LengthM: 50, ROhmPerKM: 0.32, XOhmPerKM: 0.08, MaxAmp: 200, IsClosed: true},
		{ID: "br-a2", Type: "cable", FromNode: "n-a1", ToNode: "n-a2", LengthM: 200, ROhmPerKM: 0.32, XOhmPerKM: 0.08, MaxAmp: 200, IsClosed: true},
		{ID: "br-b1", Type: "cable", FromNode: "n0", ToNode: "n-b1", LengthM: 50, ROhmPerKM: 0.32, XOhmPerKM: 0.08, MaxAmp: 200, IsClosed: true},
	}
}

func TestNewFromConfig(t *testing.T) {
	jsonConfig, err := os.ReadFile(CONFIGPATH)
	assert.NilError(t, err)

	model, err := New(jsonConfig)
	assert.NilError(t, err)
	assert.Equal(t, model.Slack().ID, "n0")

	tx, ok := model.Transformer("tx1")
	assert.Assert(t, ok)
	assert.Equal(t, tx.RatedKVA, 50.0)
}

func TestBuild(t *testing.T) {
	model, err := Build(testTransformers(), testNodes(), testBranches())
	assert.NilError(t, err)

	assert.Equal(t, model.Slack().ID, "n0")
	assert.Equal(t, len(model.CustomerNodes()), 3)
}

func TestPathToRoot(t *testing.T) {
	model, err := Build(testTransformers(), testNodes(), testBranches())
	assert.NilError(t, err)

	path, err := model.PathToRoot("n-a2")
	assert.NilError(t, err)
	assert.Equal(t, len(path), 2)
	assert.Equal(t, path[0].ID, "br-a1")
	assert.Equal(t, path[1].ID, "br-a2")

	path, err = model.PathToRoot("n0")
	assert.NilError(t, err)
	assert.Equal(t, len(path), 0)

	_, err = model.PathToRoot("n-z9")
	assert.Assert(t, err != nil)
}

func TestSharedPrefix(t *testing.T) {
	model, err := Build(testTransformers(), testNodes(), testBranches())
	assert.NilError(t, err)

	prefix, err := model.SharedPrefix("n-a1", "n-a2")
	assert.NilError(t, err)
	assert.Equal(t, len(prefix), 1)
	assert.Equal(t, prefix[0].ID, "br-a1")

	prefix, err = model.SharedPrefix("n-a2", "n-b1")
	assert.NilError(t, err)
	assert.Equal(t, len(prefix), 0)
}

func TestDownstream(t *testing.T) {
	model, err := Build(testTransformers(), testNodes(), testBranches())
	assert.NilError(t, err)

	down := model.Downstream("br-a1")
	assert.Equal(t, len(down), 2)

	down = model.Downstream("br-a2")
	assert.Equal(t, len(down), 1)
	assert.Equal(t, down[0], "n-a2")
}

func TestBuildRejectsMultipleSlack(t *testing.T) {
	nodes := testNodes()
	nodes[1].Role = RoleSlack

	_, err := Build(testTransformers(), nodes, testBranches())
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonMultipleSlack)
}

func TestBuildRejectsNoSlack(t *testing.T) {
	nodes := testNodes()
	nodes[0].Role = RolePQ

	_, err := Build(testTransformers(), nodes, testBranches())
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonNoSlack)
}

func TestBuildRejectsOpenBranchDisconnect(t *testing.T) {
	branches := testBranches()
	branches[1].IsClosed = false // n-a2 loses its only feed

	_, err := Build(testTransformers(), testNodes(), branches)
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonUnreachable)
	assert.Equal(t, topoErr.ElementID, "n-a2")
}

func TestBuildRejectsCycle(t *testing.T) {
	branches := append(testBranches(), Branch{
		ID: "br-loop", Type: "cable", FromNode: "n-a2", ToNode: "n-a1",
		LengthM: 10, ROhmPerKM: 0.32, XOhmPerKM: 0.08, MaxAmp: 200, IsClosed: true,
	})

	_, err := Build(testTransformers(), testNodes(), branches)
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonCycle)
}

func TestBuildRejectsSecondParent(t *testing.T) {
	branches := append(testBranches(), Branch{
		ID: "br-tie", Type: "cable", FromNode: "n0", ToNode: "n-a2",
		LengthM: 100, ROhmPerKM: 0.32, XOhmPerKM: 0.08, MaxAmp: 200, IsClosed: true,
	})

	_, err := Build(testTransformers(), testNodes(), branches)
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonCycle)
}

func TestBuildRejectsBadImpedance(t *testing.T) {
	branches := testBranches()
	branches[0].ROhmPerKM = 0

	_, err := Build(testTransformers(), testNodes(), branches)
	var topoErr *TopologyError
	assert.Assert(t, errors.As(err, &topoErr))
	assert.Equal(t, topoErr.Reason, ReasonBadElement)
}

func TestBranchImpedance(t *testing.T) {
	b := Branch{LengthM: 50, ROhmPerKM: 0.32, XOhmPerKM: 0.08}
	assert.Equal(t, b.ResistanceOhm(), 0.016)
	assert.Equal(t, b.ReactanceOhm(), 0.004)
}
