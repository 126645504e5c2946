package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/foxzi/flowry/internal/flow"
)

// RenderDOT lays out the flow left to right and returns the DOT source
func RenderDOT(ctx context.Context, g *flow.Graph) (string, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(g.GetNodes()))
	for _, n := range g.GetNodes() {
		gn, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return "", fmt.Errorf("failed to create node %s: %w", n.ID, err)
		}
		gn.SetLabel(nodeLabel(&n))
		gn.SetShape(nodeShape(n.Type))
		nodes[n.ID] = gn
	}

	for _, e := range g.GetEdges() {
		src, ok1 := nodes[e.Source]
		dst, ok2 := nodes[e.Target]
		if !ok1 || !ok2 {
			// dangling edges are reported by the readiness analyzer
			continue
		}
		ge, err := graph.CreateEdgeByName(e.ID, src, dst)
		if err != nil {
			return "", fmt.Errorf("failed to create edge %s: %w", e.ID, err)
		}
		if e.Label != "" {
			ge.SetLabel(e.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}

func nodeLabel(n *flow.Node) string {
	name := n.DisplayName(typeTitle(n.Type))
	if h := n.Headline(); h != "" {
		return name + "\n" + truncate(h, 40)
	}
	return name
}

func nodeShape(t flow.NodeType) cgraph.Shape {
	switch {
	case t.IsConditional():
		return cgraph.DiamondShape
	case t == flow.TypeDelay:
		return cgraph.EllipseShape
	default:
		return cgraph.BoxShape
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
