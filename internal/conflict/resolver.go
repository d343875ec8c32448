// Package conflict decides how new information relates to what is already
// stored: duplicate, elaboration, contradiction, or genuinely new.
package conflict

import (
	"context"
	"fmt"
	"log"

	"github.com/acrell/mnemo/internal/semantic"
	"github.com/acrell/mnemo/internal/store"
)

// Decision is the outcome of resolving new content against existing memories.
type Decision string

const (
	Skip      Decision = "skip"      // near-duplicate, nothing to write
	Create    Decision = "create"    // novel information
	Update    Decision = "update"    // elaborates an existing memory
	Supersede Decision = "supersede" // contradicts an existing memory
)

// Decision thresholds over the semantic similarity score.
const (
	skipThreshold      = 0.95 // nearly identical
	skipTextThreshold  = 0.9  // word-overlap backstop for short texts
	updateThreshold    = 0.75 // similar enough to be related
	supersedeThreshold = 0.6  // same topic, may contradict
	supersedeMinConf   = 0.7  // required detector confidence in the lower band
)

// Resolution carries the decision plus the memory it applies to, if any.
type Resolution struct {
	Decision         Decision
	ExistingMemoryID string // set for Update and Supersede
	SemanticScore    float64
	TextSimilarity   float64
	Contradiction    *Contradiction // set when a contradiction drove the decision
}

// Tracker is the slice of the dynamics tracker the resolver needs.
type Tracker interface {
	Demote(ctx context.Context, memoryID, userID, reason string)
	Ensure(memoryID, userID string, isKey bool) (*store.Dynamics, error)
}

// Invalidator drops cached retrieval results for a user after a write.
type Invalidator interface {
	InvalidateForUser(userID string) int
}

// Resolver gates writes to the semantic store.
type Resolver struct {
	Semantic semantic.Store
	DB       *store.DB
	Detector Detector
	Tracker  Tracker
	Cache    Invalidator

	SearchLimit int // candidates to consider, default 5
}

// NewResolver wires a resolver with the lexical detector.
func NewResolver(sem semantic.Store, db *store.DB, tracker Tracker, cache Invalidator) *Resolver {
	return &Resolver{
		Semantic:    sem,
		DB:          db,
		Detector:    LexicalDetector{},
		Tracker:     tracker,
		Cache:       cache,
		SearchLimit: 5,
	}
}

// Resolve decides what to do with new content for a user. A failed search
// degrades to Create: losing dedup for one write beats dropping the write.
func (r *Resolver) Resolve(ctx context.Context, content, userID string) Resolution {
	limit := r.SearchLimit
	if limit <= 0 {
		limit = 5
	}

	resp, err := r.Semantic.Search(ctx, content, userID, semantic.SearchOpts{Limit: limit})
	if err != nil {
		log.Printf("conflict: search for similar memories failed, defaulting to create: %v", err)
		return Resolution{Decision: Create}
	}
	if resp == nil || len(resp.Results) == 0 {
		return Resolution{Decision: Create}
	}

	best := resp.Results[0]
	textSim := Similarity(content, best.Memory)

	res := Resolution{
		Decision:       Create,
		SemanticScore:  best.Score,
		TextSimilarity: textSim,
	}

	if best.Score > skipThreshold || textSim > skipTextThreshold {
		log.Printf("conflict: skipping near-duplicate (score=%.2f text=%.2f)", best.Score, textSim)
		res.Decision = Skip
		return res
	}

	if best.Score > updateThreshold {
		c := r.Detector.Detect(content, best.Memory)
		if c.Contradicts {
			log.Printf("conflict: %s contradiction with %s, superseding", c.Kind, best.ID)
			res.Decision = Supersede
			res.ExistingMemoryID = best.ID
			res.Contradiction = &c
			return res
		}
		res.Decision = Update
		res.ExistingMemoryID = best.ID
		return res
	}

	if best.Score > supersedeThreshold {
		c := r.Detector.Detect(content, best.Memory)
		if c.Contradicts && c.Confidence > supersedeMinConf {
			log.Printf("conflict: %s contradiction (conf=%.2f) with %s, superseding", c.Kind, c.Confidence, best.ID)
			res.Decision = Supersede
			res.ExistingMemoryID = best.ID
			res.Contradiction = &c
			return res
		}
	}

	return res
}

// Supersede writes the replacement memory, records the supersession, and
// demotes the old memory. Returns the new memory id.
func (r *Resolver) Supersede(ctx context.Context, oldMemoryID, newContent, userID, reason string, metadata map[string]any) (string, error) {
	if reason == "" {
		reason = "contradiction"
	}

	resp, err := r.Semantic.Add(ctx, newContent, userID, metadata)
	if err != nil {
		return "", fmt.Errorf("add replacement memory: %w", err)
	}
	if resp == nil || len(resp.Results) == 0 || resp.Results[0].ID == "" {
		return "", fmt.Errorf("semantic store returned no id for replacement memory")
	}
	newID := resp.Results[0].ID

	if _, err := r.DB.AddSupersession(oldMemoryID, newID, userID, reason); err != nil {
		// The new memory exists either way; the audit record is best-effort.
		log.Printf("conflict: record supersession %s -> %s: %v", oldMemoryID, newID, err)
	}

	if r.Tracker != nil {
		r.Tracker.Demote(ctx, oldMemoryID, userID, "superseded")
		if _, err := r.Tracker.Ensure(newID, userID, false); err != nil {
			log.Printf("conflict: track replacement %s: %v", newID, err)
		}
	}
	if r.Cache != nil {
		r.Cache.InvalidateForUser(userID)
	}

	log.Printf("conflict: superseded %s with %s (%s)", oldMemoryID, newID, reason)
	return newID, nil
}

// TrackNew registers dynamics for a memory written outside the supersede
// path (create or update) and drops the user's cached retrievals.
func (r *Resolver) TrackNew(memoryID, userID string, isKey bool) {
	if r.Tracker != nil {
		if _, err := r.Tracker.Ensure(memoryID, userID, isKey); err != nil {
			log.Printf("conflict: track new memory %s: %v", memoryID, err)
		}
	}
	if r.Cache != nil {
		r.Cache.InvalidateForUser(userID)
	}
}
