// Package semantic is the client for the external semantic memory store.
//
// The store owns embeddings and similarity search; this package only defines
// the wire contract and treats every call as a potentially slow, potentially
// failing remote call. Callers decide how to degrade.
package semantic

import (
	"context"
	"time"
)

// Memory is a single stored memory as returned by the semantic store.
// Read-only on this side.
type Memory struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Score     float64        `json:"score"` // similarity to the query, 0-1
	CreatedAt *time.Time     `json:"created_at,omitempty"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Timestamp returns the most recent of updated/created, or nil.
func (m Memory) Timestamp() *time.Time {
	if m.UpdatedAt != nil {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// Relation is an entity-relationship hint returned alongside search results.
type Relation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Destination  string `json:"destination"`
}

// SearchOpts narrows a search.
type SearchOpts struct {
	Filters map[string]string // e.g. {"project_id": "...", "is_key": "true"}
	Limit   int               // 0 = store default
}

// SearchResponse is the result of a search or get-all call.
type SearchResponse struct {
	Results   []Memory   `json:"results"`
	Relations []Relation `json:"relations,omitempty"`
}

// Store is the semantic memory store contract.
type Store interface {
	// Search runs a semantic similarity search scoped to a user.
	Search(ctx context.Context, query, userID string, opts SearchOpts) (*SearchResponse, error)
	// GetAll lists memories for a user, optionally filtered.
	GetAll(ctx context.Context, userID string, filters map[string]string, limit int) (*SearchResponse, error)
	// Add writes new content and returns the ids of created memories.
	Add(ctx context.Context, content, userID string, metadata map[string]any) (*SearchResponse, error)
	// Feedback reports sentiment ("POSITIVE"/"NEGATIVE") about a memory.
	Feedback(ctx context.Context, memoryID, sentiment string) error
}
