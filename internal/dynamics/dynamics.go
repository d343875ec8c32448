// Package dynamics maintains the per-memory scheduling state: every time a
// memory is used it is "promoted" through an FSRS review, and batch scoring
// blends that state into retrieval ranking.
package dynamics

import (
	"context"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/acrell/mnemo/internal/fsrs"
	"github.com/acrell/mnemo/internal/semantic"
	"github.com/acrell/mnemo/internal/store"
)

// Composite score weights: semantic similarity dominates, dynamics refine.
const (
	semanticWeight = 0.6
	dynamicsWeight = 0.4
)

// Tracker applies review events to persisted dynamics records.
type Tracker struct {
	DB       *store.DB
	Semantic semantic.Store // used for negative feedback on demote, may be nil
	Params   fsrs.Params

	// PruneEvery triggers access-log pruning on every Nth promotion.
	// Retention is how far back entries are kept. Zero values mean defaults
	// (50 promotions, 90 days).
	PruneEvery int
	Retention  time.Duration

	promotions atomic.Int64
}

// NewTracker returns a tracker with default FSRS parameters and pruning.
func NewTracker(db *store.DB, sem semantic.Store) *Tracker {
	return &Tracker{
		DB:         db,
		Semantic:   sem,
		Params:     fsrs.DefaultParams(),
		PruneEvery: 50,
		Retention:  90 * 24 * time.Hour,
	}
}

// Get returns the dynamics for a memory, or nil if untracked.
func (t *Tracker) Get(memoryID, userID string) (*store.Dynamics, error) {
	return t.DB.GetDynamics(memoryID, userID)
}

// Ensure creates the dynamics record if missing and returns it.
func (t *Tracker) Ensure(memoryID, userID string, isKey bool) (*store.Dynamics, error) {
	return t.DB.EnsureDynamics(memoryID, userID, isKey)
}

// Promote records one usage of a memory. The grade is inferred from the
// signal type. Failures are logged and swallowed: promotion is bookkeeping
// on the hot path and must never fail the caller's request.
func (t *Tracker) Promote(ctx context.Context, memoryID, userID, signalType string) {
	t.promote(ctx, memoryID, userID, signalType, fsrs.GradeFromSignal(signalType))
}

// PromoteWithGrade is Promote with an explicit review grade.
func (t *Tracker) PromoteWithGrade(ctx context.Context, memoryID, userID, signalType string, grade fsrs.Grade) {
	if !grade.Valid() {
		grade = fsrs.Good
	}
	t.promote(ctx, memoryID, userID, signalType, grade)
}

func (t *Tracker) promote(ctx context.Context, memoryID, userID, signalType string, grade fsrs.Grade) {
	if ctx.Err() != nil {
		return
	}

	d, err := t.DB.EnsureDynamics(memoryID, userID, false)
	if err != nil {
		log.Printf("dynamics: ensure %s/%s: %v", memoryID, userID, err)
		return
	}

	now := time.Now()
	result := fsrs.Review(stateOf(d), grade, now, t.Params)

	applyState(d, result.NewState, now)
	if err := t.DB.SaveDynamics(d); err != nil {
		log.Printf("dynamics: save %s/%s: %v", memoryID, userID, err)
		return
	}

	if err := t.DB.AddAccessLog(memoryID, userID, int(grade), signalType, result.RetrievabilityBefore); err != nil {
		log.Printf("dynamics: access log %s/%s: %v", memoryID, userID, err)
	}

	t.maybePrune()
}

// Demote weakens a memory after a correction or supersession. It is a
// failure-grade promotion plus negative feedback to the semantic store.
// The reason is logged verbatim as the access signal.
func (t *Tracker) Demote(ctx context.Context, memoryID, userID, reason string) {
	if reason == "" {
		reason = "user_correction"
	}
	t.promote(ctx, memoryID, userID, reason, fsrs.Again)

	if t.Semantic != nil {
		if err := t.Semantic.Feedback(ctx, memoryID, "NEGATIVE"); err != nil {
			log.Printf("dynamics: negative feedback for %s: %v", memoryID, err)
		}
	}
}

func (t *Tracker) maybePrune() {
	every := t.PruneEvery
	if every <= 0 {
		every = 50
	}
	if t.promotions.Add(1)%int64(every) != 0 {
		return
	}

	retention := t.Retention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	removed, err := t.DB.PruneAccessLog(time.Now().Add(-retention))
	if err != nil {
		log.Printf("dynamics: prune access log: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("dynamics: pruned %d access log entries", removed)
	}
}

func stateOf(d *store.Dynamics) fsrs.State {
	return fsrs.State{
		Stability:         d.Stability,
		Difficulty:        d.Difficulty,
		RetrievalStrength: d.RetrievalStrength,
		StorageStrength:   d.StorageStrength,
		LastReview:        d.LastAccessedTime(),
		ReviewCount:       d.AccessCount,
	}
}

func applyState(d *store.Dynamics, s fsrs.State, now time.Time) {
	d.Stability = s.Stability
	d.Difficulty = s.Difficulty
	d.RetrievalStrength = s.RetrievalStrength
	d.StorageStrength = s.StorageStrength
	millis := now.UnixMilli()
	d.LastAccessedAt = &millis
	d.AccessCount = s.ReviewCount
}

// ScoredResult is a search result with its composite ranking score.
type ScoredResult struct {
	Memory    semantic.Memory
	Composite float64
	FSRS      float64 // dynamics-only component, 0 when untracked
}

// BatchScore blends semantic similarity with FSRS memory scores for a result
// set and returns it sorted best-first. One batch lookup regardless of result
// count; memories without dynamics fall back to similarity alone.
func (t *Tracker) BatchScore(results []semantic.Memory, userID string, now time.Time) []ScoredResult {
	out := make([]ScoredResult, 0, len(results))
	if len(results) == 0 {
		return out
	}

	ids := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, m := range results {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}

	var batch map[string]*store.Dynamics
	if len(ids) > 0 {
		var err error
		batch, err = t.DB.GetDynamicsBatch(ids, userID)
		if err != nil {
			log.Printf("dynamics: batch score lookup: %v", err)
			batch = nil
		}
	}

	for _, m := range results {
		scored := ScoredResult{Memory: m, Composite: m.Score}
		if d := batch[m.ID]; d != nil {
			var elapsedDays float64
			if last := d.LastAccessedTime(); last != nil {
				elapsedDays = now.Sub(*last).Seconds() / 86400.0
			}
			r := fsrs.Retrievability(elapsedDays, d.Stability, t.Params.W[20])
			scored.FSRS = fsrs.MemoryScore(r, d.StorageStrength, d.ImportanceWeight)
			scored.Composite = semanticWeight*m.Score + dynamicsWeight*scored.FSRS
		}
		out = append(out, scored)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Composite > out[j].Composite
	})
	return out
}
