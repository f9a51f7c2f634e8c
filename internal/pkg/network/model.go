/*
model.go Immutable model of a radial LV network. Built once per topology
version; all path queries are answered from structures precomputed at build
time, so a model shared across concurrent envelope solves is never mutated.
*/

package network

import (
	"encoding/json"
	"sort"
)

// Model is a validated radial network rooted at the slack bus.
type Model struct {
	transformers map[string]Transformer
	nodes        map[string]Node
	branches     map[string]Branch
	slackID      string
	// paths holds, per node, the ordered closed branches from the slack bus to
	// that node. The slack bus maps to an empty path.
	paths map[string][]Branch
	// downstream holds, per closed branch, the ids of every node fed through
	// that branch.
	downstream map[string][]string
}

type definition struct {
	Transformers []Transformer `json:"Transformers"`
	Nodes        []Node        `json:"Nodes"`
	Branches     []Branch      `json:"Branches"`
}

// New builds a Model from a topology definition document.
func New(jsonDefinition []byte) (*Model, error) {
	def := definition{}
	if err := json.Unmarshal(jsonDefinition, &def); err != nil {
		return nil, err
	}
	return Build(def.Transformers, def.Nodes, def.Branches)
}

// Build validates the records and assembles the model. The network must form a
// tree of closed branches: exactly one slack node, every other node reachable
// from the slack through exactly one path, no cycles.
func Build(transformers []Transformer, nodes []Node, branches []Branch) (*Model, error) {
	m := &Model{
		transformers: make(map[string]Transformer),
		nodes:        make(map[string]Node),
		branches:     make(map[string]Branch),
		paths:        make(map[string][]Branch),
		downstream:   make(map[string][]string),
	}

	for _, t := range transformers {
		if _, exists := m.transformers[t.ID]; exists {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: t.ID, Detail: "duplicate transformer id"}
		}
		m.transformers[t.ID] = t
	}

	for _, n := range nodes {
		if _, exists := m.nodes[n.ID]; exists {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: n.ID, Detail: "duplicate node id"}
		}
		if n.Role == RoleSlack {
			if m.slackID != "" {
				return nil, &TopologyError{Reason: ReasonMultipleSlack, ElementID: n.ID}
			}
			m.slackID = n.ID
		}
		m.nodes[n.ID] = n
	}
	if m.slackID == "" {
		return nil, &TopologyError{Reason: ReasonNoSlack}
	}

	adjacency := make(map[string][]Branch)
	for _, b := range branches {
		if _, exists := m.branches[b.ID]; exists {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: b.ID, Detail: "duplicate branch id"}
		}
		if _, ok := m.nodes[b.FromNode]; !ok {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: b.ID, Detail: "unknown from node " + b.FromNode}
		}
		if _, ok := m.nodes[b.ToNode]; !ok {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: b.ID, Detail: "unknown to node " + b.ToNode}
		}
		if b.ROhmPerKM <= 0 || b.XOhmPerKM <= 0 || b.LengthM <= 0 || b.MaxAmp <= 0 {
			return nil, &TopologyError{Reason: ReasonBadElement, ElementID: b.ID, Detail: "non-positive impedance, length or ampacity"}
		}
		m.branches[b.ID] = b
		if b.IsClosed {
			adjacency[b.FromNode] = append(adjacency[b.FromNode], b)
		}
	}

	// Deterministic traversal order keeps error reporting stable across runs.
	for from := range adjacency {
		sort.Slice(adjacency[from], func(i, j int) bool {
			return adjacency[from][i].ID < adjacency[from][j].ID
		})
	}

	if err := m.tracePaths(adjacency); err != nil {
		return nil, err
	}
	return m, nil
}

// tracePaths walks the closed branch tree from the slack bus, memoizing every
// node's path to root and every branch's downstream node set. A node reached
// twice means a cycle or a second parent; a node never reached is disconnected.
func (m *Model) tracePaths(adjacency map[string][]Branch) error {
	visited := make(map[string]bool)
	m.paths[m.slackID] = []Branch{}
	visited[m.slackID] = true

	stack := []string{m.slackID}
	for len(stack) > 0 {
		from := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, b := range adjacency[from] {
			if visited[b.ToNode] {
				return &TopologyError{Reason: ReasonCycle, ElementID: b.ToNode}
			}
			visited[b.ToNode] = true

			path := make([]Branch, len(m.paths[from]), len(m.paths[from])+1)
			copy(path, m.paths[from])
			m.paths[b.ToNode] = append(path, b)

			for _, pb := range m.paths[b.ToNode] {
				m.downstream[pb.ID] = append(m.downstream[pb.ID], b.ToNode)
			}
			stack = append(stack, b.ToNode)
		}
	}

	unreached := make([]string, 0)
	for id := range m.nodes {
		if !visited[id] {
			unreached = append(unreached, id)
		}
	}
	if len(unreached) > 0 {
		sort.Strings(unreached)
		return &TopologyError{Reason: ReasonUnreachable, ElementID: unreached[0]}
	}
	return nil
}

// PathToRoot returns the ordered closed branches from the slack bus to a node.
func (m *Model) PathToRoot(nodeID string) ([]Branch, error) {
	path, ok := m.paths[nodeID]
	if !ok {
		return nil, &TopologyError{Reason: ReasonBadElement, ElementID: nodeID, Detail: "unknown node"}
	}
	return path, nil
}

// SharedPrefix returns the longest common prefix of two nodes' paths to root:
// the branches whose current is affected by an injection at either node.
func (m *Model) SharedPrefix(nodeA, nodeB string) ([]Branch, error) {
	pathA, err := m.PathToRoot(nodeA)
	if err != nil {
		return nil, err
	}
	pathB, err := m.PathToRoot(nodeB)
	if err != nil {
		return nil, err
	}

	prefix := make([]Branch, 0)
	for i := 0; i < len(pathA) && i < len(pathB); i++ {
		if pathA[i].ID != pathB[i].ID {
			break
		}
		prefix = append(prefix, pathA[i])
	}
	return prefix, nil
}

// Slack returns the slack bus.
func (m *Model) Slack() Node {
	return m.nodes[m.slackID]
}

// Node looks up a node by id.
func (m *Model) Node(id string) (Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Branch looks up a branch by id.
func (m *Model) Branch(id string) (Branch, bool) {
	b, ok := m.branches[id]
	return b, ok
}

// Transformer looks up a transformer by id.
func (m *Model) Transformer(id string) (Transformer, bool) {
	t, ok := m.transformers[id]
	return t, ok
}

// Nodes returns every node ordered by id.
func (m *Model) Nodes() []Node {
	nodes := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// CustomerNodes returns every non-slack node with an attached prosumer,
// ordered by id. These are the envelope calculation targets.
func (m *Model) CustomerNodes() []Node {
	nodes := make([]Node, 0)
	for _, n := range m.Nodes() {
		if n.Role != RoleSlack && n.HasCustomer() {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Downstream returns the ids of every node fed through a closed branch.
func (m *Model) Downstream(branchID string) []string {
	return m.downstream[branchID]
}
