// Package ranker assembles ranked memory context for a conversation turn.
// It fans out to the semantic store concurrently, re-ranks with the dynamics
// tracker, and merges everything into capped buckets.
package ranker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/acrell/mnemo/internal/cache"
	"github.com/acrell/mnemo/internal/dynamics"
	"github.com/acrell/mnemo/internal/memtype"
	"github.com/acrell/mnemo/internal/semantic"
)

// Limits caps the assembled output. Zero fields mean defaults.
type Limits struct {
	MaxKeyMemories int // key memories fetched and kept, default 15
	MaxPerBucket   int // non-key memories per bucket, default 35
	MaxRelations   int // graph relations kept, default 20
	MaxQueryChars  int // search query length before tail truncation, default 6000
	MaxParticipant int // concurrent participant searches, default 3
}

// DefaultLimits returns the standard output caps.
func DefaultLimits() Limits {
	return Limits{
		MaxKeyMemories: 15,
		MaxPerBucket:   35,
		MaxRelations:   20,
		MaxQueryChars:  6000,
		MaxParticipant: 3,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxKeyMemories <= 0 {
		l.MaxKeyMemories = d.MaxKeyMemories
	}
	if l.MaxPerBucket <= 0 {
		l.MaxPerBucket = d.MaxPerBucket
	}
	if l.MaxRelations <= 0 {
		l.MaxRelations = d.MaxRelations
	}
	if l.MaxQueryChars <= 0 {
		l.MaxQueryChars = d.MaxQueryChars
	}
	if l.MaxParticipant <= 0 {
		l.MaxParticipant = d.MaxParticipant
	}
	return l
}

// Participant is another member of the conversation whose memories may be
// relevant to the current turn.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result is the assembled context, bucketed the way callers inject it.
type Result struct {
	UserMemories   []string            `json:"user_memories"`
	ScopedMemories []string            `json:"scoped_memories"`
	Relations      []semantic.Relation `json:"relations"`
}

// Observation summarizes one ranking pass for an observability hook.
type Observation struct {
	UserID        string
	KeyCount      int
	UserCount     int // non-key user memories
	ScopedCount   int
	RelationCount int
	Samples       []string // up to 3 assembled user memories
}

// Ranker runs retrieval. Safe for concurrent use.
type Ranker struct {
	Semantic semantic.Store
	Cache    cache.Cache
	Tracker  *dynamics.Tracker
	Limits   Limits

	// Observer, when set, is called after each ranking pass that produced
	// any output. Called synchronously; keep it cheap.
	Observer func(Observation)

	mu            sync.Mutex
	lastRetrieved map[string][]string
}

// New returns a ranker with default limits.
func New(sem semantic.Store, c cache.Cache, tracker *dynamics.Tracker) *Ranker {
	if c == nil {
		c = cache.Noop{}
	}
	return &Ranker{
		Semantic:      sem,
		Cache:         c,
		Tracker:       tracker,
		Limits:        DefaultLimits(),
		lastRetrieved: make(map[string][]string),
	}
}

type fetchResult struct {
	results   []semantic.Memory
	relations []semantic.Relation
	err       error
}

// Rank fetches and assembles memory context for one turn. Individual source
// failures degrade to empty buckets; Rank itself never fails.
func (r *Ranker) Rank(ctx context.Context, userID, scope, query string, participants []Participant) Result {
	limits := r.Limits.withDefaults()

	// Long transcripts keep the tail: recent turns carry the context.
	query = truncateTail(query, limits.MaxQueryChars)

	var keyRes, userRes, scopeRes fetchResult
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		keyRes = r.fetchKeyMemories(ctx, userID, limits.MaxKeyMemories)
	}()
	go func() {
		defer wg.Done()
		userRes = r.fetchSearch(ctx, userID, query, "user", nil)
	}()
	go func() {
		defer wg.Done()
		if scope == "" {
			return
		}
		scopeRes = r.fetchSearch(ctx, userID, query, "scope", map[string]string{"scope_id": scope})
	}()
	wg.Wait()

	for name, fr := range map[string]fetchResult{"key": keyRes, "user": userRes, "scope": scopeRes} {
		if fr.err != nil {
			log.Printf("rank: %s fetch failed, continuing without it: %v", name, fr.err)
		}
	}

	relations := dedupRelations(userRes.relations, scopeRes.relations)

	now := time.Now()
	userScored := r.Tracker.BatchScore(userRes.results, userID, now)
	scopeScored := r.Tracker.BatchScore(scopeRes.results, userID, now)

	retrieved := make([]string, 0, len(userScored)+len(scopeScored))
	seenIDs := make(map[string]bool)
	for _, s := range userScored {
		if s.Memory.ID != "" && !seenIDs[s.Memory.ID] {
			seenIDs[s.Memory.ID] = true
			retrieved = append(retrieved, s.Memory.ID)
		}
	}
	for _, s := range scopeScored {
		if s.Memory.ID != "" && !seenIDs[s.Memory.ID] {
			seenIDs[s.Memory.ID] = true
			retrieved = append(retrieved, s.Memory.ID)
		}
	}

	// Key memories lead the bucket; everything after dedups against them.
	userMems := make([]string, 0, len(keyRes.results)+len(userScored))
	seenTexts := make(map[string]bool)
	for _, m := range keyRes.results {
		seenTexts[m.Memory] = true
		userMems = append(userMems, "[KEY] "+m.Memory)
	}
	numKey := len(userMems)

	for _, s := range userScored {
		if seenTexts[s.Memory.Memory] {
			continue
		}
		seenTexts[s.Memory.Memory] = true
		userMems = append(userMems, formatMemory(s.Memory, now))
	}

	scopedMems := make([]string, 0, len(scopeScored))
	for _, s := range scopeScored {
		scopedMems = append(scopedMems, s.Memory.Memory)
	}

	if len(participants) > 0 {
		pMems, pIDs := r.fetchParticipants(ctx, userID, query, participants, limits, seenTexts)
		userMems = append(userMems, pMems...)
		for _, id := range pIDs {
			if !seenIDs[id] {
				seenIDs[id] = true
				retrieved = append(retrieved, id)
			}
		}
	}

	r.setLastRetrieved(userID, retrieved)

	if len(userMems) > numKey+limits.MaxPerBucket {
		userMems = userMems[:numKey+limits.MaxPerBucket]
	}
	if len(scopedMems) > limits.MaxPerBucket {
		scopedMems = scopedMems[:limits.MaxPerBucket]
	}
	if len(relations) > limits.MaxRelations {
		relations = relations[:limits.MaxRelations]
	}

	if r.Observer != nil && (len(userMems) > 0 || len(scopedMems) > 0 || len(relations) > 0) {
		samples := userMems
		if len(samples) > 3 {
			samples = samples[:3]
		}
		r.Observer(Observation{
			UserID:        userID,
			KeyCount:      numKey,
			UserCount:     len(userMems) - numKey,
			ScopedCount:   len(scopedMems),
			RelationCount: len(relations),
			Samples:       samples,
		})
	}

	return Result{
		UserMemories:   userMems,
		ScopedMemories: scopedMems,
		Relations:      relations,
	}
}

func (r *Ranker) fetchKeyMemories(ctx context.Context, userID string, limit int) fetchResult {
	if cached, ok := r.Cache.GetKeyMemories(userID); ok {
		return fetchResult{results: cached}
	}

	resp, err := r.Semantic.GetAll(ctx, userID, map[string]string{"is_key": "true"}, limit)
	if err != nil {
		return fetchResult{err: err}
	}
	if len(resp.Results) > 0 {
		r.Cache.SetKeyMemories(userID, resp.Results)
	}
	return fetchResult{results: resp.Results, relations: resp.Relations}
}

func (r *Ranker) fetchSearch(ctx context.Context, userID, query, cacheScope string, filters map[string]string) fetchResult {
	if cached, ok := r.Cache.GetSearch(userID, query, cacheScope); ok {
		return fetchResult{results: cached}
	}

	resp, err := r.Semantic.Search(ctx, query, userID, semantic.SearchOpts{Filters: filters})
	if err != nil {
		return fetchResult{err: err}
	}
	if len(resp.Results) > 0 {
		r.Cache.SetSearch(userID, query, cacheScope, resp.Results)
	}
	return fetchResult{results: resp.Results, relations: resp.Relations}
}

// fetchParticipants searches for memories about other conversation members,
// a bounded number at a time. Results are labeled so the caller can tell
// whose context they are.
func (r *Ranker) fetchParticipants(ctx context.Context, userID, query string, participants []Participant, limits Limits, seenTexts map[string]bool) ([]string, []string) {
	type pResult struct {
		name   string
		scored []dynamics.ScoredResult
	}

	sem := make(chan struct{}, limits.MaxParticipant)
	out := make(chan pResult, len(participants))
	now := time.Now()

	pQuery := truncateHead(query, 500)

	var wg sync.WaitGroup
	for _, p := range participants {
		if p.ID == "" || p.ID == userID {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := r.Semantic.Search(ctx, name+" "+pQuery, userID, semantic.SearchOpts{})
			if err != nil {
				log.Printf("rank: participant %s search failed: %v", name, err)
				return
			}
			out <- pResult{name: name, scored: r.Tracker.BatchScore(resp.Results, userID, now)}
		}()
	}
	wg.Wait()
	close(out)

	var mems, ids []string
	for pr := range out {
		for _, s := range pr.scored {
			if seenTexts[s.Memory.Memory] {
				continue
			}
			seenTexts[s.Memory.Memory] = true
			mems = append(mems, fmt.Sprintf("[About %s]: %s", pr.name, s.Memory.Memory))
			if s.Memory.ID != "" {
				ids = append(ids, s.Memory.ID)
			}
		}
	}
	return mems, ids
}

// formatMemory prefixes a non-key memory with its age and persistence
// category: "[3 days ago | active] User is rewriting the billing service".
// Memories attributed to a contact are labeled with the contact instead.
func formatMemory(m semantic.Memory, now time.Time) string {
	if contactID, ok := m.Metadata["contact_id"].(string); ok && contactID != "" {
		name := contactID
		if n, ok := m.Metadata["contact_name"].(string); ok && n != "" {
			name = n
		}
		return fmt.Sprintf("[About %s]: %s", name, m.Memory)
	}

	category := categoryOf(m)
	if ts := m.Timestamp(); ts != nil {
		return fmt.Sprintf("[%s | %s] %s", memtype.HumanizeAge(ts, now), category.Label(), m.Memory)
	}
	return fmt.Sprintf("[%s] %s", category.Label(), m.Memory)
}

// categoryOf honors a category tag already stored in the memory's metadata,
// re-classifying only when the tag is missing or unknown.
func categoryOf(m semantic.Memory) memtype.Category {
	if tag, ok := m.Metadata["category"].(string); ok {
		if category, err := memtype.Parse(tag); err == nil {
			return category
		}
	}
	return memtype.Classify(m.Memory)
}

// truncateTail keeps the last max bytes of s without splitting a rune.
func truncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

// truncateHead keeps the first max bytes of s without splitting a rune.
func truncateHead(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func dedupRelations(lists ...[]semantic.Relation) []semantic.Relation {
	var out []semantic.Relation
	seen := make(map[semantic.Relation]bool)
	for _, list := range lists {
		for _, rel := range list {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			out = append(out, rel)
		}
	}
	return out
}

func (r *Ranker) setLastRetrieved(userID string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRetrieved == nil {
		r.lastRetrieved = make(map[string][]string)
	}
	r.lastRetrieved[userID] = ids
}

// LastRetrieved returns the memory ids surfaced by the user's most recent
// Rank call.
func (r *Ranker) LastRetrieved(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRetrieved[userID]
}

// PromoteLastRetrieved promotes every memory surfaced by the user's last
// Rank call, recording that they were used in a response.
func (r *Ranker) PromoteLastRetrieved(ctx context.Context, userID string) int {
	ids := r.LastRetrieved(userID)
	for _, id := range ids {
		r.Tracker.Promote(ctx, id, userID, "used_in_response")
	}
	return len(ids)
}
