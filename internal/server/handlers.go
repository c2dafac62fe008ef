package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/synapse/internal/graph"
)

type createNodeRequest struct {
	ID         string           `json:"id" validate:"required,graphid,max=256"`
	Type       string           `json:"type" validate:"required,max=128"`
	Properties graph.Properties `json:"properties"`
}

type createRelationshipRequest struct {
	From     string   `json:"from" validate:"required,graphid"`
	To       string   `json:"to" validate:"required,graphid"`
	EdgeType string   `json:"edge_type" validate:"required,max=128"`
	Strength *float64 `json:"strength,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	node, err := s.engine.CreateNode(r.Context(), req.ID, req.Type, req.Properties)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.engine.Nodes(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filtered := nodes[:0]
		for _, n := range nodes {
			if n.Type == t {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.engine.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ids, err := s.engine.Neighbors(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "neighbors": ids})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.Similar(r.Context(), chi.URLParam(r, "id"), intParam(r, "limit", 0))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req createRelationshipRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		edge graph.Edge
		err  error
	)
	if req.Strength != nil {
		edge, err = s.engine.CreateRelationshipWithStrength(r.Context(), req.From, req.To, req.EdgeType, *req.Strength)
	} else {
		edge, err = s.engine.CreateRelationship(r.Context(), req.From, req.To, req.EdgeType)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := s.engine.Edges(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges, "count": len(edges)})
}

func (s *Server) handleGetEdge(w http.ResponseWriter, r *http.Request) {
	edge, err := s.engine.GetEdge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request) {
	edge, err := s.engine.MarkTraversed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	results, err := s.engine.Query(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	clusters := s.engine.Clusters()
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) handleInferences(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50)
	// the store holds the complete log; memory only keeps the recent tail
	if s.db != nil && r.URL.Query().Get("source") == "store" {
		ops, err := s.db.RecentInferenceOps(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inferences": ops})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inferences": s.engine.InferenceLog(limit)})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"providers": []any{}})
		return
	}
	summary, err := s.db.SummarizeUsage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": summary})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	// a cycle may be shared with the ticker, so a dropped client must not cancel it
	report := s.engine.Scheduler().RunCycle(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, report)
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
