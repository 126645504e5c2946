// Package flow models a campaign's flow graph: typed touchpoint nodes joined by directed edges.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrInvalidNode   = errors.New("invalid node")
	ErrInvalidEdge   = errors.New("invalid edge")
	ErrDuplicateEdge = errors.New("duplicate edge id")
)

// NodeType identifies the kind of touchpoint a node represents
type NodeType string

const (
	TypeEmail            NodeType = "email"
	TypePush             NodeType = "push"
	TypeAd               NodeType = "ad"
	TypeSocial           NodeType = "social"
	TypeDelay            NodeType = "delay"
	TypeConditional      NodeType = "conditional"
	TypeConditionalSplit NodeType = "conditional_split"
	TypeGA4Event         NodeType = "ga4_event"
)

// IsConditional reports whether the type branches the flow
func (t NodeType) IsConditional() bool {
	return t == TypeConditional || t == TypeConditionalSplit
}

// IsContent reports whether the type carries user-facing copy
func (t NodeType) IsContent() bool {
	switch t {
	case TypeEmail, TypePush, TypeAd, TypeSocial:
		return true
	}
	return false
}

// Position is the editor canvas location of a node
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one touchpoint in the flow
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Position *Position      `json:"position,omitempty" yaml:"position,omitempty"`
	Data     map[string]any `json:"data" yaml:"data"`
}

// Edge is a directed connection between two nodes
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Graph is the campaign structure. Sequence order is insertion order.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// New returns an empty graph
func New() *Graph {
	return &Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// MarshalJSON always emits nodes and edges as arrays
func (g Graph) MarshalJSON() ([]byte, error) {
	type plain Graph
	out := plain{Nodes: g.Nodes, Edges: g.Edges}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	for i := range out.Nodes {
		if out.Nodes[i].Data == nil {
			// copy-on-write so the receiver is untouched
			nodes := make([]Node, len(out.Nodes))
			copy(nodes, out.Nodes)
			for j := range nodes {
				if nodes[j].Data == nil {
					nodes[j].Data = map[string]any{}
				}
			}
			out.Nodes = nodes
			break
		}
	}
	return json.Marshal(out)
}

// GetNodes returns the node list, never nil
func (g *Graph) GetNodes() []Node {
	if g == nil || g.Nodes == nil {
		return []Node{}
	}
	return g.Nodes
}

// GetEdges returns the edge list, never nil
func (g *Graph) GetEdges() []Edge {
	if g == nil || g.Edges == nil {
		return []Edge{}
	}
	return g.Edges
}

// FindNode returns the first node with the given id
func (g *Graph) FindNode(id string) (*Node, bool) {
	if g == nil {
		return nil, false
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// AddNode appends a node. Node ids are supplied by the caller.
func (g *Graph) AddNode(n Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidNode)
	}
	if n.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidNode)
	}
	if _, exists := g.FindNode(n.ID); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	g.Nodes = append(g.Nodes, n)
	return nil
}

// AddEdge appends an edge. An empty id is derived from its endpoints,
// with a "#n" suffix when the same pair is already connected.
func (g *Graph) AddEdge(e Edge) error {
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("%w: source and target are required", ErrInvalidEdge)
	}
	if e.ID == "" {
		base := e.Source + "->" + e.Target
		e.ID = base
		for n := 2; g.hasEdge(e.ID); n++ {
			e.ID = fmt.Sprintf("%s#%d", base, n)
		}
	} else if g.hasEdge(e.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID)
	}
	g.Edges = append(g.Edges, e)
	return nil
}

func (g *Graph) hasEdge(id string) bool {
	for _, e := range g.GetEdges() {
		if e.ID == id {
			return true
		}
	}
	return false
}

// UpdateNode shallow-merges partial into the node's data
func (g *Graph) UpdateNode(id string, partial map[string]any) error {
	n, ok := g.FindNode(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.Data == nil {
		n.Data = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		n.Data[k] = v
	}
	return nil
}

// EdgesFrom returns every edge leaving the node
func (g *Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.GetEdges() {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// RemoveNode deletes the node together with every edge that touches it
func (g *Graph) RemoveNode(id string) error {
	idx := -1
	for i := range g.GetNodes() {
		if g.Nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
	return nil
}

// RemoveEdge deletes an edge by id
func (g *Graph) RemoveEdge(id string) error {
	for i, e := range g.GetEdges() {
		if e.ID == id {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
}

// DanglingEdges returns edges whose source or target is not a node
func (g *Graph) DanglingEdges() []Edge {
	ids := make(map[string]struct{}, len(g.GetNodes()))
	for _, n := range g.GetNodes() {
		ids[n.ID] = struct{}{}
	}
	var out []Edge
	for _, e := range g.GetEdges() {
		_, src := ids[e.Source]
		_, dst := ids[e.Target]
		if !src || !dst {
			out = append(out, e)
		}
	}
	return out
}

// Orphans returns nodes that no edge references as source or target
func (g *Graph) Orphans() []Node {
	linked := make(map[string]struct{}, 2*len(g.GetEdges()))
	for _, e := range g.GetEdges() {
		linked[e.Source] = struct{}{}
		linked[e.Target] = struct{}{}
	}
	var out []Node
	for _, n := range g.GetNodes() {
		if _, ok := linked[n.ID]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// NodeTypes returns the distinct node types in first-seen order
func (g *Graph) NodeTypes() []NodeType {
	seen := make(map[NodeType]struct{})
	var out []NodeType
	for _, n := range g.GetNodes() {
		if _, ok := seen[n.Type]; ok {
			continue
		}
		seen[n.Type] = struct{}{}
		out = append(out, n.Type)
	}
	return out
}

// HasType reports whether any node has one of the given types
func (g *Graph) HasType(types ...NodeType) bool {
	for _, n := range g.GetNodes() {
		for _, t := range types {
			if n.Type == t {
				return true
			}
		}
	}
	return false
}

// NodesOfType returns nodes matching any of the given types
func (g *Graph) NodesOfType(types ...NodeType) []Node {
	var out []Node
	for _, n := range g.GetNodes() {
		for _, t := range types {
			if n.Type == t {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the graph
func (g *Graph) Clone() *Graph {
	if g == nil {
		return New()
	}
	data, err := json.Marshal(g)
	if err != nil {
		return New()
	}
	out := New()
	if err := json.Unmarshal(data, out); err != nil {
		return New()
	}
	return out
}
