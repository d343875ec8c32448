package conflict

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind labels the lexical layer that flagged a contradiction.
type Kind string

const (
	KindNone     Kind = "none"
	KindNegation Kind = "negation"
	KindAntonym  Kind = "antonym"
	KindTemporal Kind = "temporal"
	KindNumeric  Kind = "numeric"
)

// Contradiction is the outcome of running a Detector over two memory texts.
type Contradiction struct {
	Contradicts bool
	Kind        Kind
	Confidence  float64
	Explanation string
}

// Detector decides whether new content contradicts existing content.
// The default implementation is purely lexical; a semantic detector
// backed by a model can be swapped in without touching the resolver.
type Detector interface {
	Detect(newContent, existingContent string) Contradiction
}

type negationPair struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
}

var negationPairs = []negationPair{
	{regexp.MustCompile(`\b(is|am|are|was|were)\b`), regexp.MustCompile(`\b(is|am|are|was|were)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(do|does|did)\b`), regexp.MustCompile(`\b(do|does|did)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(has|have|had)\b`), regexp.MustCompile(`\b(has|have|had)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(can|could|will|would|should|might)\b`), regexp.MustCompile(`\b(can|could|will|would|should|might)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\blikes?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+like\b`)},
	{regexp.MustCompile(`\bloves?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+love\b`)},
	{regexp.MustCompile(`\bwants?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+want\b`)},
	{regexp.MustCompile(`\bworks?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+work\b`)},
	{regexp.MustCompile(`\bprefers?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+prefer\b`)},
}

var antonymPairs = [][2]string{
	{"available", "busy"},
	{"available", "unavailable"},
	{"free", "busy"},
	{"happy", "sad"},
	{"happy", "unhappy"},
	{"good", "bad"},
	{"like", "dislike"},
	{"like", "hate"},
	{"love", "hate"},
	{"agree", "disagree"},
	{"want", "avoid"},
	{"prefer", "dislike"},
	{"enjoy", "dislike"},
	{"enjoy", "hate"},
	{"interested", "uninterested"},
	{"interested", "bored"},
	{"yes", "no"},
	{"true", "false"},
	{"correct", "incorrect"},
	{"right", "wrong"},
	{"active", "inactive"},
	{"enabled", "disabled"},
	{"on", "off"},
	{"open", "closed"},
	{"start", "end"},
	{"begin", "finish"},
	{"alive", "dead"},
	{"married", "single"},
	{"married", "divorced"},
	{"employed", "unemployed"},
	{"working", "retired"},
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`),
	regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s*(\d{4})?\b`),
	regexp.MustCompile(`\b(\d{1,2})\s+(january|february|march|april|may|june|july|august|september|october|november|december),?\s*(\d{4})?\b`),
}

var numericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(years?|months?|weeks?|days?|hours?|minutes?|seconds?)?\s+old\b`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(years?|months?|weeks?|days?|hours?|minutes?|seconds?)\b`),
	regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\b`),
	regexp.MustCompile(`\b(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(dollars?|USD|EUR|GBP|JPY)\b`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*%`),
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "to": true,
	"of": true, "and": true, "or": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "that": true, "this": true,
	"it": true, "i": true, "you": true, "he": true, "she": true,
	"they": true, "we": true,
}

// LexicalDetector runs regex and word-list heuristics over the two texts,
// fastest layer first. No network calls, no model.
type LexicalDetector struct{}

func (LexicalDetector) Detect(newContent, existingContent string) Contradiction {
	newLower := strings.ToLower(strings.TrimSpace(newContent))
	existingLower := strings.ToLower(strings.TrimSpace(existingContent))

	if newLower == existingLower {
		return Contradiction{Kind: KindNone}
	}

	if c := checkNegation(newLower, existingLower); c.Contradicts {
		return c
	}
	if c := checkAntonyms(newLower, existingLower); c.Contradicts {
		return c
	}
	if c := checkTemporal(newLower, existingLower); c.Contradicts {
		return c
	}
	if c := checkNumeric(newLower, existingLower); c.Contradicts {
		return c
	}

	return Contradiction{Kind: KindNone}
}

func checkNegation(newContent, existingContent string) Contradiction {
	for _, p := range negationPairs {
		newPos := p.positive.MatchString(newContent)
		newNeg := p.negative.MatchString(newContent)
		existingPos := p.positive.MatchString(existingContent)
		existingNeg := p.negative.MatchString(existingContent)

		// One side asserts, the other negates.
		if (newPos && existingNeg && !newNeg) || (newNeg && existingPos && !existingNeg) {
			return Contradiction{
				Contradicts: true,
				Kind:        KindNegation,
				Confidence:  0.8,
				Explanation: "negation pattern contradiction",
			}
		}
	}
	return Contradiction{Kind: KindNone}
}

func checkAntonyms(newContent, existingContent string) Contradiction {
	newWords := words(newContent)
	existingWords := words(existingContent)

	for _, pair := range antonymPairs {
		split := (newWords[pair[0]] && existingWords[pair[1]]) ||
			(newWords[pair[1]] && existingWords[pair[0]])
		if !split {
			continue
		}
		// Require shared context so unrelated statements don't collide.
		if hasMeaningfulOverlap(newWords, existingWords) {
			return Contradiction{
				Contradicts: true,
				Kind:        KindAntonym,
				Confidence:  0.7,
				Explanation: fmt.Sprintf("antonym pair: %q vs %q", pair[0], pair[1]),
			}
		}
	}
	return Contradiction{Kind: KindNone}
}

func checkTemporal(newContent, existingContent string) Contradiction {
	var newDates, existingDates []string
	for _, p := range datePatterns {
		newDates = append(newDates, p.FindAllString(newContent, -1)...)
		existingDates = append(existingDates, p.FindAllString(existingContent, -1)...)
	}
	if len(newDates) == 0 || len(existingDates) == 0 {
		return Contradiction{Kind: KindNone}
	}
	if setsIntersect(newDates, existingDates) {
		return Contradiction{Kind: KindNone}
	}
	if hasMeaningfulOverlap(words(newContent), words(existingContent)) {
		return Contradiction{
			Contradicts: true,
			Kind:        KindTemporal,
			Confidence:  0.6,
			Explanation: "different dates for potentially the same event",
		}
	}
	return Contradiction{Kind: KindNone}
}

func checkNumeric(newContent, existingContent string) Contradiction {
	for _, p := range numericPatterns {
		newVals := firstGroups(p, newContent)
		existingVals := firstGroups(p, existingContent)
		if len(newVals) == 0 || len(existingVals) == 0 {
			continue
		}
		if setsIntersect(newVals, existingVals) {
			continue
		}
		if hasMeaningfulOverlap(words(newContent), words(existingContent)) {
			return Contradiction{
				Contradicts: true,
				Kind:        KindNumeric,
				Confidence:  0.65,
				Explanation: "different numeric values for potentially the same property",
			}
		}
	}
	return Contradiction{Kind: KindNone}
}

func firstGroups(p *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range p.FindAllStringSubmatch(s, -1) {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

func setsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func hasMeaningfulOverlap(a, b map[string]bool) bool {
	for w := range a {
		if b[w] && !stopWords[w] {
			return true
		}
	}
	return false
}
