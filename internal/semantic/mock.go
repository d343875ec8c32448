package semantic

import (
	"context"
	"sync"
)

// MockStore is a test double for the Store interface. Each method delegates
// to its Func field when set, otherwise returns an empty response. Calls
// records query strings and ids in order; safe for concurrent callers.
type MockStore struct {
	SearchFunc   func(ctx context.Context, query, userID string, opts SearchOpts) (*SearchResponse, error)
	GetAllFunc   func(ctx context.Context, userID string, filters map[string]string, limit int) (*SearchResponse, error)
	AddFunc      func(ctx context.Context, content, userID string, metadata map[string]any) (*SearchResponse, error)
	FeedbackFunc func(ctx context.Context, memoryID, sentiment string) error

	mu    sync.Mutex
	Calls []string
}

func (m *MockStore) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockStore) Search(ctx context.Context, query, userID string, opts SearchOpts) (*SearchResponse, error) {
	m.record("search:" + query)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, userID, opts)
	}
	return &SearchResponse{}, nil
}

func (m *MockStore) GetAll(ctx context.Context, userID string, filters map[string]string, limit int) (*SearchResponse, error) {
	m.record("getall:" + userID)
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx, userID, filters, limit)
	}
	return &SearchResponse{}, nil
}

func (m *MockStore) Add(ctx context.Context, content, userID string, metadata map[string]any) (*SearchResponse, error) {
	m.record("add:" + content)
	if m.AddFunc != nil {
		return m.AddFunc(ctx, content, userID, metadata)
	}
	return &SearchResponse{}, nil
}

func (m *MockStore) Feedback(ctx context.Context, memoryID, sentiment string) error {
	m.record("feedback:" + memoryID + ":" + sentiment)
	if m.FeedbackFunc != nil {
		return m.FeedbackFunc(ctx, memoryID, sentiment)
	}
	return nil
}
