// Package memtype classifies memory content into persistence categories and
// provides recency weighting for temporal-aware retrieval.
package memtype

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

// Category is a persistence category with an associated decay rate.
type Category string

const (
	Stable    Category = "stable"    // identity, preferences, relationships
	Active    Category = "active"    // projects, current work, ongoing efforts
	Ephemeral Category = "ephemeral" // status, events, temporary states
)

// HalfLifeDays returns the decay half-life for the category. After this many
// days without update, the recency weight drops to 0.5.
func (c Category) HalfLifeDays() float64 {
	switch c {
	case Stable:
		return 60.0
	case Active:
		return 14.0
	case Ephemeral:
		return 7.0
	}
	return 14.0
}

// Label returns the short label used when formatting memories for context.
func (c Category) Label() string {
	if c == Ephemeral {
		return "temp"
	}
	return string(c)
}

// Parse returns the category for a stored tag, or an error if the tag is not
// one of the three known categories.
func Parse(s string) (Category, error) {
	switch Category(s) {
	case Stable, Active, Ephemeral:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// recencyFloor prevents old important memories from disappearing entirely.
const recencyFloor = 0.1

var (
	stablePatterns = regexp.MustCompile(`(?i)\b(name is|wife|husband|daughter|son|partner|spouse|` +
		`married|family|parent|sibling|brother|sister|` +
		`prefers to be called|nickname|born|birthday|` +
		`lives in|home|address|always|never|` +
		`favorite|loves|hates|allergic|` +
		`profession|job title|works as|career)\b`)

	activePatterns = regexp.MustCompile(`(?i)\b(working on|building|implementing|developing|` +
		`creating|writing|designing|planning|` +
		`project|task|sprint|milestone|` +
		`current|ongoing|active|in progress|` +
		`learning|studying|practicing|` +
		`goal|objective|target|deadline)\b`)

	ephemeralPatterns = regexp.MustCompile(`(?i)\b(feeling|mood|stressed|overwhelmed|tired|exhausted|` +
		`excited|anxious|frustrated|happy|sad|angry|` +
		`today|tonight|this morning|this afternoon|` +
		`yesterday|last night|earlier|just|recently|` +
		`meeting|call|appointment|scheduled|` +
		`submitted|sent|received|completed|finished|` +
		`going to|about to|planning to|will be)\b`)
)

// Classify assigns a persistence category from content keywords.
//
// Tie-break order matters: ephemeral signals are the most specific, then
// active, then stable. Unclassified content defaults to Active — better to
// decay than to persist stale information indefinitely.
func Classify(content string) Category {
	ephemeral := len(ephemeralPatterns.FindAllString(content, -1))
	active := len(activePatterns.FindAllString(content, -1))
	stable := len(stablePatterns.FindAllString(content, -1))

	if ephemeral > 0 && ephemeral >= active {
		return Ephemeral
	}
	if active > stable {
		return Active
	}
	if stable > 0 {
		return Stable
	}
	return Active
}

// RecencyWeight computes an exponential decay weight for a timestamp:
// ~1.0 today, ~0.5 at the half-life, ~0.25 at twice the half-life, never
// below the floor. A nil timestamp is treated as current.
func RecencyWeight(timestamp *time.Time, halfLifeDays float64, now time.Time) float64 {
	if timestamp == nil {
		return 1.0
	}
	ageDays := now.Sub(*timestamp).Seconds() / 86400
	if ageDays <= 0 {
		return 1.0
	}
	weight := math.Pow(0.5, ageDays/halfLifeDays)
	return math.Max(weight, recencyFloor)
}

// HumanizeAge renders a timestamp as a rough age string for context display.
func HumanizeAge(timestamp *time.Time, now time.Time) string {
	if timestamp == nil {
		return "unknown"
	}

	delta := now.Sub(*timestamp)
	days := int(delta.Hours() / 24)

	switch {
	case days == 0:
		if delta < time.Hour {
			return "just now"
		}
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 14:
		return "1 week ago"
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 60:
		return "1 month ago"
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	}

	years := days / 365
	if years == 1 {
		return "1 year ago"
	}
	return fmt.Sprintf("%d years ago", years)
}
