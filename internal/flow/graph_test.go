package flow

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleGraph() *Graph {
	g := New()
	g.AddNode(Node{ID: "welcome", Type: TypeEmail, Data: map[string]any{"name": "Welcome", "subject": "Hi"}})
	g.AddNode(Node{ID: "wait", Type: TypeDelay, Data: map[string]any{"duration": 2, "unit": "days"}})
	g.AddNode(Node{ID: "split", Type: TypeConditional, Data: map[string]any{"condition": "opened"}})
	g.AddEdge(Edge{ID: "e1", Source: "welcome", Target: "wait"})
	g.AddEdge(Edge{ID: "e2", Source: "wait", Target: "split"})
	return g
}

func TestNilGraphAccessors(t *testing.T) {
	var g *Graph
	if nodes := g.GetNodes(); nodes == nil || len(nodes) != 0 {
		t.Errorf("GetNodes() = %v, want empty non-nil slice", nodes)
	}
	if edges := g.GetEdges(); edges == nil || len(edges) != 0 {
		t.Errorf("GetEdges() = %v, want empty non-nil slice", edges)
	}
	if _, ok := g.FindNode("x"); ok {
		t.Error("FindNode on nil graph should not find anything")
	}
}

func TestMarshalEmptyGraph(t *testing.T) {
	data, err := json.Marshal(Graph{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"nodes":[],"edges":[]}` {
		t.Errorf("Marshal() = %s, want {\"nodes\":[],\"edges\":[]}", data)
	}
}

func TestFindNodeFirstMatchWins(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{ID: "a", Type: TypeEmail, Data: map[string]any{"name": "first"}},
		{ID: "a", Type: TypePush, Data: map[string]any{"name": "second"}},
	}}
	n, ok := g.FindNode("a")
	if !ok {
		t.Fatal("FindNode() did not find node")
	}
	if n.Str("name") != "first" {
		t.Errorf("FindNode() name = %q, want first", n.Str("name"))
	}
}

func TestAddNode(t *testing.T) {
	g := New()

	tests := []struct {
		name    string
		node    Node
		wantErr error
	}{
		{"valid", Node{ID: "n1", Type: TypeEmail}, nil},
		{"duplicate", Node{ID: "n1", Type: TypePush}, ErrDuplicateNode},
		{"missing id", Node{Type: TypePush}, ErrInvalidNode},
		{"missing type", Node{ID: "n2"}, ErrInvalidNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AddNode(tt.node)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddNode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(g.Nodes) != 1 {
		t.Errorf("len(Nodes) = %d, want 1", len(g.Nodes))
	}
	if g.Nodes[0].Data == nil {
		t.Error("AddNode should default Data to an empty map")
	}
}

func TestAddEdgeDerivesID(t *testing.T) {
	g := New()
	if err := g.AddEdge(Edge{Source: "a", Target: "b"}); err != nil {
		t.Fatalf("AddEdge() error = %v", err)
	}
	if g.Edges[0].ID != "a->b" {
		t.Errorf("Edge ID = %q, want a->b", g.Edges[0].ID)
	}
	if err := g.AddEdge(Edge{Source: "a"}); !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("AddEdge() without target error = %v, want ErrInvalidEdge", err)
	}
}

func TestAddEdgeIDsStayUnique(t *testing.T) {
	g := New()
	for i := 0; i < 3; i++ {
		if err := g.AddEdge(Edge{Source: "a", Target: "b"}); err != nil {
			t.Fatalf("AddEdge() error = %v", err)
		}
	}
	want := []string{"a->b", "a->b#2", "a->b#3"}
	for i, e := range g.Edges {
		if e.ID != want[i] {
			t.Errorf("Edges[%d].ID = %q, want %q", i, e.ID, want[i])
		}
	}

	if err := g.AddEdge(Edge{ID: "a->b#2", Source: "b", Target: "c"}); !errors.Is(err, ErrDuplicateEdge) {
		t.Errorf("AddEdge(duplicate id) error = %v, want ErrDuplicateEdge", err)
	}
	if len(g.Edges) != 3 {
		t.Errorf("len(Edges) = %d, want 3", len(g.Edges))
	}

	if err := g.RemoveEdge("a->b#2"); err != nil {
		t.Fatalf("RemoveEdge() error = %v", err)
	}
	if len(g.Edges) != 2 || g.Edges[1].ID != "a->b#3" {
		t.Errorf("Edges after remove = %+v", g.Edges)
	}
}

func TestUpdateNodeShallowMerge(t *testing.T) {
	g := sampleGraph()

	err := g.UpdateNode("welcome", map[string]any{"subject": "Hello there", "body": "Body"})
	if err != nil {
		t.Fatalf("UpdateNode() error = %v", err)
	}

	n, _ := g.FindNode("welcome")
	if n.Str("subject") != "Hello there" {
		t.Errorf("subject = %q, want Hello there", n.Str("subject"))
	}
	if n.Str("body") != "Body" {
		t.Errorf("body = %q, want Body", n.Str("body"))
	}
	if n.Str("name") != "Welcome" {
		t.Errorf("name = %q, want Welcome (untouched keys retained)", n.Str("name"))
	}

	if err := g.UpdateNode("missing", map[string]any{"x": 1}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("UpdateNode(missing) error = %v, want ErrNodeNotFound", err)
	}
}

func TestEdgesFrom(t *testing.T) {
	g := sampleGraph()
	g.AddEdge(Edge{ID: "e3", Source: "welcome", Target: "split"})

	edges := g.EdgesFrom("welcome")
	if len(edges) != 2 {
		t.Fatalf("len(EdgesFrom) = %d, want 2", len(edges))
	}
	if edges[0].ID != "e1" || edges[1].ID != "e3" {
		t.Errorf("EdgesFrom order = %v, want e1, e3", edges)
	}
	if len(g.EdgesFrom("split")) != 0 {
		t.Error("EdgesFrom(split) should be empty")
	}
}

func TestRemoveNodeDropsEdges(t *testing.T) {
	g := sampleGraph()

	if err := g.RemoveNode("wait"); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("len(Nodes) = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(g.Edges))
	}
	if len(g.DanglingEdges()) != 0 {
		t.Error("RemoveNode left dangling edges")
	}
	if err := g.RemoveNode("wait"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("second RemoveNode() error = %v, want ErrNodeNotFound", err)
	}
}

func TestRemoveEdge(t *testing.T) {
	g := sampleGraph()
	if err := g.RemoveEdge("e1"); err != nil {
		t.Fatalf("RemoveEdge() error = %v", err)
	}
	if len(g.Edges) != 1 || g.Edges[0].ID != "e2" {
		t.Errorf("Edges = %v, want only e2", g.Edges)
	}
	if err := g.RemoveEdge("nope"); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("RemoveEdge(nope) error = %v, want ErrEdgeNotFound", err)
	}
}

func TestOrphansAreNodesMinusEndpoints(t *testing.T) {
	g := sampleGraph()
	g.AddNode(Node{ID: "lonely", Type: TypePush})
	g.AddEdge(Edge{ID: "ghost", Source: "split", Target: "missing"})

	orphans := g.Orphans()
	if len(orphans) != 1 || orphans[0].ID != "lonely" {
		t.Errorf("Orphans() = %v, want [lonely]", orphans)
	}

	dangling := g.DanglingEdges()
	if len(dangling) != 1 || dangling[0].ID != "ghost" {
		t.Errorf("DanglingEdges() = %v, want [ghost]", dangling)
	}
}

func TestNodeTypes(t *testing.T) {
	g := sampleGraph()
	g.AddNode(Node{ID: "again", Type: TypeEmail})

	types := g.NodeTypes()
	want := []NodeType{TypeEmail, TypeDelay, TypeConditional}
	if len(types) != len(want) {
		t.Fatalf("NodeTypes() = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("NodeTypes()[%d] = %v, want %v", i, types[i], want[i])
		}
	}
	if !g.HasType(TypePush, TypeDelay) {
		t.Error("HasType(push, delay) = false, want true")
	}
	if got := len(g.NodesOfType(TypeEmail)); got != 2 {
		t.Errorf("len(NodesOfType(email)) = %d, want 2", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := sampleGraph()
	c := g.Clone()

	c.UpdateNode("welcome", map[string]any{"subject": "changed"})
	n, _ := g.FindNode("welcome")
	if n.Str("subject") != "Hi" {
		t.Errorf("original subject = %q, want Hi", n.Str("subject"))
	}
}

func TestNodeHelpers(t *testing.T) {
	n := Node{ID: "ad1", Type: TypeAd, Data: map[string]any{
		"headline":     "Big news",
		"primary_text": "Shop now",
		"count":        3,
	}}

	if n.Headline() != "Big news" {
		t.Errorf("Headline() = %q, want Big news", n.Headline())
	}
	if n.Body() != "Shop now" {
		t.Errorf("Body() = %q, want Shop now", n.Body())
	}
	if n.Str("count") != "3" {
		t.Errorf("Str(count) = %q, want 3", n.Str("count"))
	}
	if !n.Blank("missing") {
		t.Error("Blank(missing) = false, want true")
	}
	if n.DisplayName("fallback") != "fallback" {
		t.Errorf("DisplayName() = %q, want fallback", n.DisplayName("fallback"))
	}
	want := "Primary_text: Shop now\nHeadline: Big news"
	if got := n.ContentFields(); got != want {
		t.Errorf("ContentFields() = %q, want %q", got, want)
	}
}

func TestDisplayNameFallsBackOnBlankNames(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"missing", nil, "Unnamed Email"},
		{"empty", map[string]any{"name": ""}, "Unnamed Email"},
		{"whitespace", map[string]any{"name": "  \t"}, "Unnamed Email"},
		{"padded", map[string]any{"name": "  Welcome "}, "Welcome"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Node{ID: "e1", Type: TypeEmail, Data: tt.data}
			if got := n.DisplayName("Unnamed Email"); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}
