package server

import (
	"encoding/json"
	"net/http"

	"github.com/acrell/mnemo/internal/conflict"
	"github.com/acrell/mnemo/internal/memtype"
	"github.com/acrell/mnemo/internal/ranker"
)

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string               `json:"user_id"`
		Scope        string               `json:"scope"`
		Query        string               `json:"query"`
		Participants []ranker.Participant `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	res := s.ranker.Rank(r.Context(), req.UserID, req.Scope, req.Query, req.Participants)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		MemoryID   string `json:"memory_id"`
		SignalType string `json:"signal_type"`
		// When true, promote everything from the user's last rank call
		// instead of a single memory.
		LastRetrieved bool `json:"last_retrieved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	promoted := 0
	if req.LastRetrieved {
		promoted = s.ranker.PromoteLastRetrieved(r.Context(), req.UserID)
	} else {
		if req.MemoryID == "" {
			http.Error(w, `{"error":"memory_id required"}`, http.StatusBadRequest)
			return
		}
		signal := req.SignalType
		if signal == "" {
			signal = "used_in_response"
		}
		s.tracker.Promote(r.Context(), req.MemoryID, req.UserID, signal)
		promoted = 1
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"promoted": promoted})
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		MemoryID string `json:"memory_id"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.MemoryID == "" {
		http.Error(w, `{"error":"user_id and memory_id required"}`, http.StatusBadRequest)
		return
	}

	s.tracker.Demote(r.Context(), req.MemoryID, req.UserID, req.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"demoted": req.MemoryID})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string         `json:"user_id"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
		// Apply executes the decision (write/supersede) instead of only
		// reporting it.
		Apply bool `json:"apply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Content == "" {
		http.Error(w, `{"error":"user_id and content required"}`, http.StatusBadRequest)
		return
	}

	res := s.resolver.Resolve(r.Context(), req.Content, req.UserID)

	out := map[string]any{
		"decision":        string(res.Decision),
		"semantic_score":  res.SemanticScore,
		"text_similarity": res.TextSimilarity,
	}
	if res.ExistingMemoryID != "" {
		out["existing_memory_id"] = res.ExistingMemoryID
	}
	if res.Contradiction != nil {
		out["contradiction"] = map[string]any{
			"kind":        string(res.Contradiction.Kind),
			"confidence":  res.Contradiction.Confidence,
			"explanation": res.Contradiction.Explanation,
		}
	}

	if req.Apply && res.Decision == conflict.Supersede {
		newID, err := s.resolver.Supersede(r.Context(), res.ExistingMemoryID, req.Content, req.UserID, "contradiction", req.Metadata)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
			return
		}
		out["new_memory_id"] = newID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, `{"error":"content required"}`, http.StatusBadRequest)
		return
	}

	category := memtype.Classify(req.Content)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"category":       string(category),
		"label":          category.Label(),
		"half_life_days": category.HalfLifeDays(),
	})
}
