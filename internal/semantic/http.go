package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStore talks to a semantic memory service over its JSON API.
type HTTPStore struct {
	baseURL string
	agentID string
	client  *http.Client
}

// NewHTTPStore creates a client for the store at baseURL. agentID scopes all
// operations to one agent's memory space.
func NewHTTPStore(baseURL, agentID string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL: baseURL,
		agentID: agentID,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("semantic store %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("semantic store %s status %d: %s", path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Search implements Store.
func (s *HTTPStore) Search(ctx context.Context, query, userID string, opts SearchOpts) (*SearchResponse, error) {
	payload := map[string]any{
		"query":    query,
		"user_id":  userID,
		"agent_id": s.agentID,
	}
	if len(opts.Filters) > 0 {
		payload["filters"] = opts.Filters
	}
	if opts.Limit > 0 {
		payload["limit"] = opts.Limit
	}

	var out SearchResponse
	if err := s.post(ctx, "/v1/memories/search", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAll implements Store.
func (s *HTTPStore) GetAll(ctx context.Context, userID string, filters map[string]string, limit int) (*SearchResponse, error) {
	payload := map[string]any{
		"user_id":  userID,
		"agent_id": s.agentID,
	}
	if len(filters) > 0 {
		payload["filters"] = filters
	}
	if limit > 0 {
		payload["limit"] = limit
	}

	var out SearchResponse
	if err := s.post(ctx, "/v1/memories/list", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Add implements Store.
func (s *HTTPStore) Add(ctx context.Context, content, userID string, metadata map[string]any) (*SearchResponse, error) {
	payload := map[string]any{
		"content":  content,
		"user_id":  userID,
		"agent_id": s.agentID,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	var out SearchResponse
	if err := s.post(ctx, "/v1/memories", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Feedback implements Store.
func (s *HTTPStore) Feedback(ctx context.Context, memoryID, sentiment string) error {
	payload := map[string]any{
		"memory_id": memoryID,
		"feedback":  sentiment,
	}
	return s.post(ctx, "/v1/memories/feedback", payload, nil)
}
