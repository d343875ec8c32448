package conflict

import (
	"context"
	"errors"
	"testing"

	"github.com/acrell/mnemo/internal/semantic"
	"github.com/acrell/mnemo/internal/store"
)

func searchReturning(score float64, id, text string) *semantic.MockStore {
	return &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{
				Results: []semantic.Memory{{ID: id, Memory: text, Score: score}},
			}, nil
		},
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("user likes coffee", "user likes coffee"); got != 1.0 {
		t.Errorf("identical texts: %v, want 1.0", got)
	}
	if got := Similarity("alpha beta", "gamma delta"); got != 0.0 {
		t.Errorf("disjoint texts: %v, want 0.0", got)
	}
	if got := Similarity("", "something"); got != 0.0 {
		t.Errorf("empty text: %v, want 0.0", got)
	}
	// {user, likes, coffee} vs {user, likes, tea}: 2 shared, 4 union.
	if got := Similarity("user likes coffee", "user likes tea"); got != 0.5 {
		t.Errorf("partial overlap: %v, want 0.5", got)
	}
}

func TestDetectNegation(t *testing.T) {
	d := LexicalDetector{}

	c := d.Detect("user doesn't like coffee", "user likes coffee")
	if !c.Contradicts || c.Kind != KindNegation {
		t.Errorf("negation not detected: %+v", c)
	}
	if c.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", c.Confidence)
	}

	// Both negated: no contradiction.
	c = d.Detect("user doesn't like coffee", "user doesn't like tea")
	if c.Contradicts {
		t.Errorf("double negation flagged: %+v", c)
	}
}

func TestDetectAntonyms(t *testing.T) {
	d := LexicalDetector{}

	c := d.Detect("user is married to Sam", "user is single, lives with Sam")
	if !c.Contradicts || c.Kind != KindAntonym {
		t.Errorf("antonym not detected: %+v", c)
	}
	if c.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", c.Confidence)
	}

	// Antonyms without shared context words stay quiet.
	c = d.Detect("project tracker enabled", "heating disabled downstairs")
	if c.Contradicts {
		t.Errorf("unrelated antonyms flagged: %+v", c)
	}
}

func TestDetectTemporal(t *testing.T) {
	d := LexicalDetector{}

	c := d.Detect("dentist appointment on 03/14/2026", "dentist appointment on 04/02/2026")
	if !c.Contradicts || c.Kind != KindTemporal {
		t.Errorf("temporal conflict not detected: %+v", c)
	}
	if c.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", c.Confidence)
	}

	// Same date both sides.
	c = d.Detect("meeting on 03/14/2026", "meeting on 03/14/2026 at noon")
	if c.Contradicts {
		t.Errorf("matching dates flagged: %+v", c)
	}
}

func TestDetectNumeric(t *testing.T) {
	d := LexicalDetector{}

	c := d.Detect("daughter is 7 years old", "daughter is 9 years old")
	if !c.Contradicts || c.Kind != KindNumeric {
		t.Errorf("numeric conflict not detected: %+v", c)
	}
	if c.Confidence != 0.65 {
		t.Errorf("confidence = %v, want 0.65", c.Confidence)
	}
}

func TestDetectIdentical(t *testing.T) {
	d := LexicalDetector{}
	if c := d.Detect("User is not available", "user is not available"); c.Contradicts {
		t.Errorf("identical texts flagged: %+v", c)
	}
}

func TestResolveSkipNearDuplicate(t *testing.T) {
	r := NewResolver(searchReturning(0.97, "mem-1", "user drinks oat milk"), nil, nil, nil)

	res := r.Resolve(context.Background(), "user drinks oat milk lattes", "user-1")
	if res.Decision != Skip {
		t.Errorf("decision = %s, want skip", res.Decision)
	}
}

func TestResolveSkipByTextSimilarity(t *testing.T) {
	// Semantic score below every band, but the texts are word-identical.
	r := NewResolver(searchReturning(0.5, "mem-1", "user drinks oat milk"), nil, nil, nil)

	res := r.Resolve(context.Background(), "User drinks oat milk.", "user-1")
	if res.Decision != Skip {
		t.Errorf("decision = %s, want skip (text=%v)", res.Decision, res.TextSimilarity)
	}
}

func TestResolveUpdate(t *testing.T) {
	r := NewResolver(searchReturning(0.80, "mem-1", "user works at a design studio"), nil, nil, nil)

	res := r.Resolve(context.Background(), "user leads the branding team at the design studio", "user-1")
	if res.Decision != Update {
		t.Errorf("decision = %s, want update", res.Decision)
	}
	if res.ExistingMemoryID != "mem-1" {
		t.Errorf("existing id = %q, want mem-1", res.ExistingMemoryID)
	}
}

func TestResolveSupersedeHighBand(t *testing.T) {
	r := NewResolver(searchReturning(0.80, "mem-1", "user likes coffee"), nil, nil, nil)

	res := r.Resolve(context.Background(), "user doesn't like coffee", "user-1")
	if res.Decision != Supersede {
		t.Errorf("decision = %s, want supersede", res.Decision)
	}
	if res.Contradiction == nil || res.Contradiction.Kind != KindNegation {
		t.Errorf("contradiction not surfaced: %+v", res.Contradiction)
	}
}

func TestResolveSupersedeLowBandNeedsConfidence(t *testing.T) {
	// Negation has confidence 0.8, above the 0.7 bar for the low band.
	r := NewResolver(searchReturning(0.65, "mem-1", "user likes coffee"), nil, nil, nil)
	res := r.Resolve(context.Background(), "user doesn't like coffee", "user-1")
	if res.Decision != Supersede {
		t.Errorf("decision = %s, want supersede", res.Decision)
	}

	// Antonym confidence 0.7 is not strictly above the bar.
	r = NewResolver(searchReturning(0.65, "mem-1", "user is happy about the office move"), nil, nil, nil)
	res = r.Resolve(context.Background(), "user is sad about the office move", "user-1")
	if res.Decision != Create {
		t.Errorf("decision = %s, want create", res.Decision)
	}
}

func TestResolveCreateOnLowScore(t *testing.T) {
	r := NewResolver(searchReturning(0.3, "mem-1", "user plays tennis"), nil, nil, nil)

	res := r.Resolve(context.Background(), "user adopted a cat named Miso", "user-1")
	if res.Decision != Create {
		t.Errorf("decision = %s, want create", res.Decision)
	}
}

func TestResolveSearchFailureDegradesToCreate(t *testing.T) {
	sem := &semantic.MockStore{
		SearchFunc: func(ctx context.Context, query, userID string, opts semantic.SearchOpts) (*semantic.SearchResponse, error) {
			return nil, errors.New("store unavailable")
		},
	}
	r := NewResolver(sem, nil, nil, nil)

	res := r.Resolve(context.Background(), "anything", "user-1")
	if res.Decision != Create {
		t.Errorf("decision = %s, want create on search failure", res.Decision)
	}
}

type recordingTracker struct {
	demoted []string
	ensured []string
}

func (d *recordingTracker) Demote(ctx context.Context, memoryID, userID, reason string) {
	d.demoted = append(d.demoted, memoryID+":"+reason)
}

func (d *recordingTracker) Ensure(memoryID, userID string, isKey bool) (*store.Dynamics, error) {
	d.ensured = append(d.ensured, memoryID)
	return &store.Dynamics{MemoryID: memoryID, UserID: userID, IsKey: isKey}, nil
}

func TestSupersede(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sem := &semantic.MockStore{
		AddFunc: func(ctx context.Context, content, userID string, metadata map[string]any) (*semantic.SearchResponse, error) {
			return &semantic.SearchResponse{Results: []semantic.Memory{{ID: "new-mem"}}}, nil
		},
	}
	tracker := &recordingTracker{}
	r := NewResolver(sem, db, tracker, nil)

	newID, err := r.Supersede(context.Background(), "old-mem", "user moved to Lisbon", "user-1", "", nil)
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if newID != "new-mem" {
		t.Errorf("new id = %q, want new-mem", newID)
	}

	s, err := db.GetSupersessionByOld("old-mem", "user-1")
	if err != nil {
		t.Fatalf("GetSupersessionByOld: %v", err)
	}
	if s == nil || s.NewMemoryID != "new-mem" || s.Reason != "contradiction" {
		t.Errorf("supersession record: %+v", s)
	}

	if len(tracker.demoted) != 1 || tracker.demoted[0] != "old-mem:superseded" {
		t.Errorf("demote calls: %v", tracker.demoted)
	}
	if len(tracker.ensured) != 1 || tracker.ensured[0] != "new-mem" {
		t.Errorf("ensure calls: %v", tracker.ensured)
	}
}

func TestSupersedeAddFailure(t *testing.T) {
	sem := &semantic.MockStore{
		AddFunc: func(ctx context.Context, content, userID string, metadata map[string]any) (*semantic.SearchResponse, error) {
			return nil, errors.New("store unavailable")
		},
	}
	r := NewResolver(sem, nil, &recordingTracker{}, nil)

	if _, err := r.Supersede(context.Background(), "old-mem", "content", "user-1", "", nil); err == nil {
		t.Error("expected error when add fails")
	}
}

type countingInvalidator struct{ count int }

func (c *countingInvalidator) InvalidateForUser(string) int { c.count++; return 0 }

func TestTrackNewInvalidatesCache(t *testing.T) {
	tracker := &recordingTracker{}
	inv := &countingInvalidator{}
	r := NewResolver(&semantic.MockStore{}, nil, tracker, inv)

	r.TrackNew("mem-1", "user-1", true)

	if len(tracker.ensured) != 1 || tracker.ensured[0] != "mem-1" {
		t.Errorf("ensure calls: %v", tracker.ensured)
	}
	if inv.count != 1 {
		t.Errorf("invalidations = %d, want 1", inv.count)
	}
}
