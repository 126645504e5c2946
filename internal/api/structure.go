package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/store"
)

// NodeRequest is the body of POST /campaigns/{id}/nodes
type NodeRequest struct {
	flow.Node
	Version *int64 `json:"version,omitempty"`
}

// NodeUpdateRequest is the body of PATCH /campaigns/{id}/nodes/{nodeID}
type NodeUpdateRequest struct {
	Data    map[string]any `json:"data"`
	Version *int64         `json:"version,omitempty"`
}

// EdgeRequest is the body of POST /campaigns/{id}/edges
type EdgeRequest struct {
	flow.Edge
	Version *int64 `json:"version,omitempty"`
}

// StructureResponse reports the outcome of a flow mutation
type StructureResponse struct {
	Node             *flow.Node `json:"node,omitempty"`
	Edge             *flow.Edge `json:"edge,omitempty"`
	Message          string     `json:"message,omitempty"`
	StructureVersion int64      `json:"structure_version"`
}

// mutate runs fn against the {id} campaign's flow under the request's version guard
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, bodyVersion *int64, fn func(*flow.Graph) error) (*campaign.Campaign, error) {
	expected, err := expectedVersion(r, bodyVersion)
	if err != nil {
		return nil, err
	}

	c, err := s.deps.Store.MutateStructure(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), expected, fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errCampaignNotFound
	}
	if err != nil {
		return nil, err
	}

	setETag(w, c)
	return c, nil
}

// handleAddNode handles POST /api/v1/campaigns/{id}/nodes
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req NodeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	c, err := s.mutate(w, r, req.Version, func(g *flow.Graph) error {
		return g.AddNode(req.Node)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	node, _ := c.Structure.FindNode(req.ID)
	sendJSON(w, http.StatusCreated, StructureResponse{Node: node, StructureVersion: c.StructureVersion})
}

// handleUpdateNode handles PATCH /api/v1/campaigns/{id}/nodes/{nodeID}
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req NodeUpdateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Data == nil {
		s.writeError(w, r, unprocessable("data is required"))
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	c, err := s.mutate(w, r, req.Version, func(g *flow.Graph) error {
		return g.UpdateNode(nodeID, req.Data)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	node, _ := c.Structure.FindNode(nodeID)
	sendJSON(w, http.StatusOK, StructureResponse{Node: node, StructureVersion: c.StructureVersion})
}

// handleDeleteNode handles DELETE /api/v1/campaigns/{id}/nodes/{nodeID}
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	c, err := s.mutate(w, r, nil, func(g *flow.Graph) error {
		return g.RemoveNode(nodeID)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, StructureResponse{Message: "Node deleted successfully", StructureVersion: c.StructureVersion})
}

// handleEdgesFrom handles GET /api/v1/campaigns/{id}/nodes/{nodeID}/edges
func (s *Server) handleEdgesFrom(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	if _, ok := c.Structure.FindNode(nodeID); !ok {
		s.writeError(w, r, errNodeNotFound)
		return
	}

	edges := c.Structure.EdgesFrom(nodeID)
	if edges == nil {
		edges = []flow.Edge{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

// handleAddEdge handles POST /api/v1/campaigns/{id}/edges
func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req EdgeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var added flow.Edge
	c, err := s.mutate(w, r, req.Version, func(g *flow.Graph) error {
		if err := g.AddEdge(req.Edge); err != nil {
			return err
		}
		edges := g.GetEdges()
		added = edges[len(edges)-1]
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, StructureResponse{Edge: &added, StructureVersion: c.StructureVersion})
}

// handleDeleteEdge handles DELETE /api/v1/campaigns/{id}/edges/{edgeID}
func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	c, err := s.mutate(w, r, nil, func(g *flow.Graph) error {
		return g.RemoveEdge(edgeID)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, StructureResponse{Message: "Edge deleted successfully", StructureVersion: c.StructureVersion})
}
