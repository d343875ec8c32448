package ranker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/acrell/mnemo/internal/cache"
	"github.com/acrell/mnemo/internal/dynamics"
	"github.com/acrell/mnemo/internal/semantic"
	"github.com/acrell/mnemo/internal/store"
)

func testRanker(t *testing.T, sem *semantic.MockStore) *Ranker {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sem, cache.Noop{}, dynamics.NewTracker(db, sem))
}

func TestRankAssemblesBuckets(t *testing.T) {
	now := time.Now()
	twoDaysAgo := now.Add(-2 * 24 * time.Hour)

	sem := &semantic.MockStore{
		GetAllFunc: func(ctx context.Context, userID string, filters map[string]string, limit int) (*semantic.SearchResponse, error) {
			if filters["is_key"] != "true" {
				t.Errorf("key fetch filters = %v", filters)
			}
			return &semantic.SearchResponse{Results: []semantic.Memory{
				{ID: "key-1", Memory: "User's wife is named Sarah", Score: 1.0},
			}}, nil
		},
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			if opts.Filters["scope_id"] == "proj-1" {
				return &semantic.SearchResponse{
					Results:   []semantic.Memory{{ID: "scope-1", Memory: "Deploy runs on Fridays", Score: 0.7}},
					Relations: []semantic.Relation{{Source: "user", Relationship: "works_on", Destination: "billing"}},
				}, nil
			}
			return &semantic.SearchResponse{
				Results: []semantic.Memory{
					{ID: "mem-1", Memory: "User is rewriting the billing service", Score: 0.8, UpdatedAt: &twoDaysAgo},
					{ID: "key-1", Memory: "User's wife is named Sarah", Score: 0.9},
				},
				Relations: []semantic.Relation{{Source: "user", Relationship: "works_on", Destination: "billing"}},
			}, nil
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "proj-1", "how is the billing rewrite going", nil)

	if len(res.UserMemories) != 2 {
		t.Fatalf("user memories = %v", res.UserMemories)
	}
	if res.UserMemories[0] != "[KEY] User's wife is named Sarah" {
		t.Errorf("key memory not first: %q", res.UserMemories[0])
	}
	// Non-key entry carries age and category labels.
	if !strings.Contains(res.UserMemories[1], "2 days ago") || !strings.Contains(res.UserMemories[1], "active") {
		t.Errorf("labels missing: %q", res.UserMemories[1])
	}
	if !strings.HasSuffix(res.UserMemories[1], "User is rewriting the billing service") {
		t.Errorf("unexpected memory text: %q", res.UserMemories[1])
	}

	if len(res.ScopedMemories) != 1 || res.ScopedMemories[0] != "Deploy runs on Fridays" {
		t.Errorf("scoped memories = %v", res.ScopedMemories)
	}

	// The identical relation from both searches appears once.
	if len(res.Relations) != 1 {
		t.Errorf("relations = %v", res.Relations)
	}

	ids := r.LastRetrieved("user-1")
	if len(ids) != 3 {
		t.Errorf("last retrieved = %v", ids)
	}
}

func TestRankSurvivesPartialFailure(t *testing.T) {
	sem := &semantic.MockStore{
		GetAllFunc: func(ctx context.Context, userID string, filters map[string]string, limit int) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{{ID: "key-1", Memory: "keeps bees"}}}, nil
		},
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return nil, errors.New("search backend down")
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "proj-1", "query", nil)

	if len(res.UserMemories) != 1 || res.UserMemories[0] != "[KEY] keeps bees" {
		t.Errorf("expected key memories to survive: %v", res.UserMemories)
	}
	if len(res.ScopedMemories) != 0 || len(res.Relations) != 0 {
		t.Errorf("failed sources should yield empty buckets: %+v", res)
	}
}

func TestRankEmptyScopeSkipsScopedSearch(t *testing.T) {
	sem := &semantic.MockStore{}
	r := testRanker(t, sem)

	r.Rank(context.Background(), "user-1", "", "query", nil)

	for _, call := range sem.Calls {
		if strings.HasPrefix(call, "search:") && strings.Contains(call, "scope") {
			t.Errorf("unexpected scoped search: %v", sem.Calls)
		}
	}
	// One user search plus the key-memory list only.
	searches := 0
	for _, call := range sem.Calls {
		if strings.HasPrefix(call, "search:") {
			searches++
		}
	}
	if searches != 1 {
		t.Errorf("got %d searches, want 1: %v", searches, sem.Calls)
	}
}

func TestRankTruncatesLongQuery(t *testing.T) {
	var gotQuery string
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			gotQuery = query
			return &semantic.SearchResponse{}, nil
		},
	}
	r := testRanker(t, sem)

	long := strings.Repeat("a", 7000) + "tail"
	r.Rank(context.Background(), "user-1", "", long, nil)

	if len(gotQuery) != 6000 {
		t.Errorf("query length = %d, want 6000", len(gotQuery))
	}
	if !strings.HasSuffix(gotQuery, "tail") {
		t.Error("truncation should keep the query tail")
	}
}

func TestRankTruncationKeepsRunesWhole(t *testing.T) {
	var gotQuery string
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			gotQuery = query
			return &semantic.SearchResponse{}, nil
		},
	}
	r := testRanker(t, sem)

	// 6004 bytes of 3-byte runes plus one ASCII: a byte-index cut at
	// len-6000 would land mid-rune.
	long := strings.Repeat("€", 2001) + "a"
	r.Rank(context.Background(), "user-1", "", long, nil)

	if !utf8.ValidString(gotQuery) {
		t.Error("truncated query is not valid UTF-8")
	}
	if len(gotQuery) > 6000 {
		t.Errorf("query length = %d, want <= 6000", len(gotQuery))
	}
}

func TestRankHonorsStoredCategory(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{
				// Content alone would classify as active; the stored tag wins.
				{ID: "mem-1", Memory: "User is working on the garden shed", Score: 0.8,
					Metadata: map[string]any{"category": "stable"}},
				// Unknown tags fall back to classification.
				{ID: "mem-2", Memory: "User is working on the fence", Score: 0.7,
					Metadata: map[string]any{"category": "bogus"}},
			}}, nil
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "", "garden", nil)
	if len(res.UserMemories) != 2 {
		t.Fatalf("user memories = %v", res.UserMemories)
	}
	if !strings.Contains(res.UserMemories[0], "[stable]") {
		t.Errorf("stored category not honored: %q", res.UserMemories[0])
	}
	if !strings.Contains(res.UserMemories[1], "[active]") {
		t.Errorf("unknown tag should fall back to classifier: %q", res.UserMemories[1])
	}
}

func TestRankLabelsContactMemories(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{
				{ID: "mem-1", Memory: "Priya runs the platform team", Score: 0.8,
					Metadata: map[string]any{"contact_id": "c-9", "contact_name": "Priya"}},
				{ID: "mem-2", Memory: "Prefers terse standups", Score: 0.7,
					Metadata: map[string]any{"contact_id": "c-12"}},
			}}, nil
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "", "platform", nil)
	if len(res.UserMemories) != 2 {
		t.Fatalf("user memories = %v", res.UserMemories)
	}
	if res.UserMemories[0] != "[About Priya]: Priya runs the platform team" {
		t.Errorf("contact name label missing: %q", res.UserMemories[0])
	}
	// Without a name the contact id is the attribution.
	if res.UserMemories[1] != "[About c-12]: Prefers terse standups" {
		t.Errorf("contact id label missing: %q", res.UserMemories[1])
	}
}

func TestRankParticipants(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			if strings.HasPrefix(query, "Dana ") {
				return &semantic.SearchResponse{Results: []semantic.Memory{
					{ID: "dana-1", Memory: "Dana prefers async reviews", Score: 0.6},
				}}, nil
			}
			return &semantic.SearchResponse{}, nil
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "", "review the proposal", []Participant{
		{ID: "u-dana", Name: "Dana"},
		{ID: "user-1", Name: "Self"}, // skipped
	})

	found := false
	for _, m := range res.UserMemories {
		if m == "[About Dana]: Dana prefers async reviews" {
			found = true
		}
	}
	if !found {
		t.Errorf("participant memory missing: %v", res.UserMemories)
	}

	ids := r.LastRetrieved("user-1")
	hasDana := false
	for _, id := range ids {
		if id == "dana-1" {
			hasDana = true
		}
	}
	if !hasDana {
		t.Errorf("participant memory id not tracked: %v", ids)
	}
}

func TestRankCaps(t *testing.T) {
	many := make([]semantic.Memory, 60)
	for i := range many {
		many[i] = semantic.Memory{ID: string(rune('a'+i%26)) + strings.Repeat("x", i), Memory: strings.Repeat("m", i+1), Score: 0.5}
	}
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: many}, nil
		},
	}
	r := testRanker(t, sem)

	res := r.Rank(context.Background(), "user-1", "proj-1", "query", nil)

	if len(res.UserMemories) > 35 {
		t.Errorf("user bucket = %d, want <= 35", len(res.UserMemories))
	}
	if len(res.ScopedMemories) > 35 {
		t.Errorf("scoped bucket = %d, want <= 35", len(res.ScopedMemories))
	}
}

func TestRankUsesCache(t *testing.T) {
	calls := 0
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			calls++
			return &semantic.SearchResponse{Results: []semantic.Memory{{ID: "mem-1", Memory: "cached fact", Score: 0.8}}}, nil
		},
	}
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r := New(sem, cache.NewMemoryCache(time.Minute, time.Minute), dynamics.NewTracker(db, sem))

	r.Rank(context.Background(), "user-1", "", "same query", nil)
	first := calls
	r.Rank(context.Background(), "user-1", "", "same query", nil)

	if calls != first {
		t.Errorf("second rank hit the store: %d -> %d calls", first, calls)
	}
}

func TestPromoteLastRetrieved(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{{ID: "mem-1", Memory: "fact", Score: 0.8}}}, nil
		},
	}
	r := testRanker(t, sem)
	ctx := context.Background()

	r.Rank(ctx, "user-1", "", "query", nil)

	n := r.PromoteLastRetrieved(ctx, "user-1")
	if n != 1 {
		t.Fatalf("promoted %d memories, want 1", n)
	}

	d, err := r.Tracker.Get("mem-1", "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d == nil || d.AccessCount != 1 {
		t.Errorf("promotion not recorded: %+v", d)
	}
}

func TestObserverInvoked(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{{ID: "mem-1", Memory: "fact", Score: 0.8}}}, nil
		},
	}
	r := testRanker(t, sem)

	var obs *Observation
	r.Observer = func(o Observation) { obs = &o }

	r.Rank(context.Background(), "user-1", "", "query", nil)

	if obs == nil {
		t.Fatal("observer not invoked")
	}
	if obs.UserID != "user-1" || obs.UserCount != 1 {
		t.Errorf("observation = %+v", obs)
	}
	if len(obs.Samples) == 0 {
		t.Error("observation has no samples")
	}
}
