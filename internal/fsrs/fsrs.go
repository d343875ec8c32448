// Package fsrs implements the FSRS-6 spaced-repetition model used to track
// how memories strengthen with use and fade with neglect.
//
// Two models are combined:
//   - FSRS-6 power-law forgetting curve (stability/difficulty/retrievability)
//   - Bjork's dual-strength model (retrieval strength vs storage strength)
//
// Everything here is pure — no I/O, no clocks. Callers pass elapsed time in.
package fsrs

import (
	"math"
	"time"
)

// Grade classifies the outcome of a review event.
type Grade int

const (
	Again Grade = 1 // complete failure to recall
	Hard  Grade = 2 // recalled with significant difficulty
	Good  Grade = 3 // recalled correctly with some effort
	Easy  Grade = 4 // recalled effortlessly
)

func (g Grade) String() string {
	switch g {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return "unknown"
}

// Valid reports whether g is one of the four defined grades.
func (g Grade) Valid() bool {
	return g >= Again && g <= Easy
}

// Params holds the 21 FSRS-6 weights. These are the published defaults from
// the Anki FSRS research; they are carried over verbatim, not re-derived.
//
//	w[0-3]   initial stability for Again/Hard/Good/Easy
//	w[4-5]   initial difficulty
//	w[6-8]   stability growth on success
//	w[9-10]  hard penalty / easy bonus
//	w[11]    difficulty shift per grade
//	w[13]    difficulty mean reversion
//	w[14-17] post-lapse stability
//	w[20]    power-law decay exponent
type Params struct {
	W [21]float64
}

// DefaultParams returns the standard FSRS-6 parameter set.
func DefaultParams() Params {
	return Params{W: [21]float64{
		0.212, 1.2931, 2.3065, 8.2956,
		6.4133, 0.8334,
		3.0194, 0.001, 1.8722,
		0.1666, 0.796,
		1.4835, 0.0614, 0.2629,
		1.6483, 0.6014, 1.8729, 0.5425,
		0.0912, 0.0658,
		0.1542,
	}}
}

// minStability is the floor for all stability updates, in days.
const minStability = 0.1

// State is the dynamics of a single memory.
type State struct {
	Stability         float64    // days until retrievability drops to ~90%
	Difficulty        float64    // inherent difficulty, 1-10
	RetrievalStrength float64    // short-term accessibility, 0-1
	StorageStrength   float64    // long-term consolidation, 0-1
	LastReview        *time.Time // nil if never reviewed
	ReviewCount       int
}

// NewState returns the initial state for an untracked memory.
func NewState() State {
	return State{
		Stability:         1.0,
		Difficulty:        5.0,
		RetrievalStrength: 1.0,
		StorageStrength:   0.5,
	}
}

// ReviewResult is the outcome of applying one review.
type ReviewResult struct {
	NewState             State
	RetrievabilityBefore float64
	NextReviewDays       float64 // recommended next-check horizon
}

// Retrievability returns the probability of recall after daysElapsed days,
// using the FSRS-6 power-law forgetting curve:
//
//	R(t) = (1 + factor * t/S)^(-w20)  where factor = 0.9^(-1/w20) - 1
//
// The factor falls out of the definition of stability: R(S) = 0.9.
func Retrievability(daysElapsed, stability, w20 float64) float64 {
	if daysElapsed <= 0 {
		return 1.0
	}
	if stability <= 0 {
		return 0.0
	}
	factor := math.Pow(0.9, -1.0/w20) - 1.0
	return math.Pow(1.0+factor*daysElapsed/stability, -w20)
}

// InitialStability returns the stability assigned on first review.
func InitialStability(grade Grade, p Params) float64 {
	return p.W[grade-1]
}

// InitialDifficulty computes D0 = w4 - e^(w5*(grade-1)) + 1, clamped to [1,10].
func InitialDifficulty(grade Grade, p Params) float64 {
	d0 := p.W[4] - math.Exp(p.W[5]*float64(grade-1)) + 1
	return clampDifficulty(d0)
}

func clampDifficulty(d float64) float64 {
	return math.Max(1.0, math.Min(10.0, d))
}

// meanReversion pulls difficulty back toward the baseline w4 so it cannot
// drift to an extreme over many reviews.
func meanReversion(d float64, p Params) float64 {
	return p.W[13]*p.W[4] + (1-p.W[13])*d
}

// UpdateDifficulty shifts difficulty by the grade's deviation from Good and
// applies mean reversion. Output is always within [1,10].
func UpdateDifficulty(current float64, grade Grade, p Params) float64 {
	delta := p.W[11] * float64(grade-3)
	return clampDifficulty(meanReversion(current+delta, p))
}

// UpdateStabilitySuccess grows stability after a successful recall.
// Growth is larger when difficulty is low, stability is low, and the memory
// was nearly forgotten at review time — the desirable difficulty effect.
func UpdateStabilitySuccess(stability, difficulty, retrievability float64, grade Grade, p Params) float64 {
	bonus := 1.0
	switch grade {
	case Hard:
		bonus = p.W[9]
	case Easy:
		bonus = p.W[10]
	}

	growth := math.Exp(p.W[6]) *
		(11 - difficulty) *
		math.Pow(stability, -p.W[7]) *
		(math.Exp(p.W[8]*(1-retrievability)) - 1) *
		bonus

	return math.Max(minStability, stability*(1+growth))
}

// UpdateStabilityFailure computes post-lapse stability. The result never
// exceeds the pre-failure stability.
func UpdateStabilityFailure(stability, difficulty, retrievability float64, p Params) float64 {
	s := p.W[14] *
		math.Pow(difficulty, -p.W[15]) *
		(math.Pow(stability+1, p.W[16]) - 1) *
		math.Exp(p.W[17]*(1-retrievability))

	return math.Max(minStability, math.Min(s, stability))
}

// UpdateDualStrength updates the dual-strength pair for one review.
//
// Retrieval strength decays exponentially (slower when storage strength is
// high), then is boosted on success or reset to a 0.3 floor on failure.
// Storage strength only ever increases; success gains are amplified when
// retrieval strength was low (spacing effect), and even failure consolidates
// a little.
func UpdateDualStrength(retrieval, storage float64, grade Grade, elapsedDays float64) (float64, float64) {
	decayRate := 0.1 * (1 / (1 + storage))
	decayed := retrieval * math.Exp(-decayRate*elapsedDays)

	if grade == Again {
		return 0.3, storage + 0.05
	}

	difficultyBonus := math.Max(0, 1-decayed)

	var boost, gain float64
	switch grade {
	case Hard:
		boost = 0.5
		gain = 0.1 + 0.1*difficultyBonus
	case Good:
		boost = 0.7
		gain = 0.15 + 0.15*difficultyBonus
	default: // Easy — less effort, less consolidation
		boost = 0.9
		gain = 0.1 + 0.05*difficultyBonus
	}

	return math.Min(1.0, decayed+boost), math.Min(1.0, storage+gain)
}

// Review applies one review to a memory state. This is the single entry
// point for all state mutation: first reviews initialize stability and
// difficulty from the parameter table, later reviews branch on grade.
func Review(state State, grade Grade, now time.Time, p Params) ReviewResult {
	var elapsedDays float64
	if state.LastReview != nil {
		elapsedDays = now.Sub(*state.LastReview).Seconds() / 86400.0
	}

	retrBefore := 1.0
	if state.ReviewCount > 0 {
		retrBefore = Retrievability(elapsedDays, state.Stability, p.W[20])
	}

	var newStability, newDifficulty float64
	if state.ReviewCount == 0 {
		newStability = InitialStability(grade, p)
		newDifficulty = InitialDifficulty(grade, p)
	} else {
		newDifficulty = UpdateDifficulty(state.Difficulty, grade, p)
		if grade == Again {
			newStability = UpdateStabilityFailure(state.Stability, state.Difficulty, retrBefore, p)
		} else {
			newStability = UpdateStabilitySuccess(state.Stability, state.Difficulty, retrBefore, grade, p)
		}
	}

	newRetrieval, newStorage := UpdateDualStrength(state.RetrievalStrength, state.StorageStrength, grade, elapsedDays)

	reviewedAt := now
	return ReviewResult{
		NewState: State{
			Stability:         newStability,
			Difficulty:        newDifficulty,
			RetrievalStrength: newRetrieval,
			StorageStrength:   newStorage,
			LastReview:        &reviewedAt,
			ReviewCount:       state.ReviewCount + 1,
		},
		RetrievabilityBefore: retrBefore,
		// Next check when R is expected back at ~90%
		NextReviewDays: newStability,
	}
}

// MemoryScore blends retrievability and storage strength into one ranking
// signal. Retrievability dominates because it reflects immediate usefulness.
func MemoryScore(retrievability, storageStrength, importanceWeight float64) float64 {
	return (0.7*retrievability + 0.3*storageStrength) * importanceWeight
}

// GradeFromSignal maps an implicit usage signal onto a review grade. There
// is no explicit review UI, so grades are inferred from how the memory was
// actually used.
func GradeFromSignal(signalType string) Grade {
	switch signalType {
	case "used_in_response":
		return Good
	case "mentioned_by_user":
		return Easy
	case "user_correction":
		return Again
	case "task_completed":
		return Easy
	case "explicit_recall":
		return Good
	case "contradiction_detected":
		return Again
	case "implicit_reference":
		return Good
	case "partial_recall":
		return Hard
	}
	return Good
}
