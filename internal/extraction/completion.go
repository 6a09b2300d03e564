package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

const (
	// CompletionThreshold is the minimum confidence at which a match is
	// applied to the store.
	CompletionThreshold = 0.7

	// DefaultCompletionWindow bounds how many recent active entities are
	// considered for completion matching.
	DefaultCompletionWindow = 20

	minCandidateConfidence = 0.3
	previewLength          = 60

	explicitWeight = 1.0
	implicitWeight = 0.85
)

var (
	explicitCompletion = regexp.MustCompile(`(?i)\b(?:done\s+with|finished|completed|crossed\s+off|checked\s+off|mark(?:ed)?\b.*\b(?:as\s+)?(?:done|complete(?:d)?))\b`)
	implicitCompletion = regexp.MustCompile(`(?i)\b(?:bought|picked\s+up|called|did|got|paid|sent)\b`)
	wordToken          = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "my": true, "and": true,
	"for": true, "of": true, "at": true, "in": true, "on": true, "with": true,
	"some": true, "i": true, "me": true, "is": true, "it": true, "up": true,
}

// CompletionMatcher detects transcripts that report finishing an existing
// entity ("I called mom", "done with the report").
type CompletionMatcher struct {
	window int
}

// NewCompletionMatcher returns a matcher that considers the window most
// recent active entities. A non-positive window selects the default.
func NewCompletionMatcher(window int) *CompletionMatcher {
	if window <= 0 {
		window = DefaultCompletionWindow
	}
	return &CompletionMatcher{window: window}
}

// Window returns the most recently created active entities, newest first,
// capped at the matcher's window.
func (m *CompletionMatcher) Window(active []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(active))
	for _, e := range active {
		if e.Status == entity.StatusActive {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > m.window {
		out = out[:m.window]
	}
	return out
}

// Match scores each windowed entity against transcript. The confidence of a
// candidate is the cue weight times the share of the entity's content words
// present in the transcript. Results are ordered by confidence, then ID.
func (m *CompletionMatcher) Match(transcript string, active []entity.Entity) []entity.CompletionMatch {
	kind, weight := "", 0.0
	switch {
	case explicitCompletion.MatchString(transcript):
		kind, weight = "explicit", explicitWeight
	case implicitCompletion.MatchString(transcript):
		kind, weight = "implicit", implicitWeight
	default:
		return nil
	}

	spoken := tokenSet(transcript)
	var matches []entity.CompletionMatch
	for _, e := range m.Window(active) {
		words := tokens(e.Content)
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if spoken[w] {
				hits++
			}
		}
		confidence := weight * float64(hits) / float64(len(words))
		if confidence < minCandidateConfidence {
			continue
		}
		matches = append(matches, entity.CompletionMatch{
			EntityID:   e.ID,
			Confidence: confidence,
			Reason:     fmt.Sprintf("%s completion cue matched %d/%d words of %q", kind, hits, len(words), e.Preview(previewLength)),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].EntityID < matches[j].EntityID
	})
	return matches
}

// AutoApplicable reports whether a match is confident enough to apply.
func AutoApplicable(match entity.CompletionMatch) bool {
	return match.Confidence >= CompletionThreshold
}

// Previews renders the windowed entities as prompt lines, one per entity.
func (m *CompletionMatcher) Previews(active []entity.Entity) []string {
	return previewLines(m.Window(active))
}

func previewLines(active []entity.Entity) []string {
	lines := make([]string, 0, len(active))
	for _, e := range active {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", e.Type, e.ID, e.Preview(previewLength)))
	}
	return lines
}

// restrictCompletions keeps model-reported completions that name a known
// active entity, clamping confidence to [0,1].
func restrictCompletions(reported []entity.CompletionMatch, known map[string]bool) []entity.CompletionMatch {
	out := make([]entity.CompletionMatch, 0, len(reported))
	seen := map[string]bool{}
	for _, c := range reported {
		if !known[c.EntityID] || seen[c.EntityID] {
			continue
		}
		seen[c.EntityID] = true
		switch {
		case c.Confidence < 0:
			c.Confidence = 0
		case c.Confidence > 1:
			c.Confidence = 1
		}
		out = append(out, c)
	}
	return out
}

func tokens(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range wordToken.FindAllString(strings.ToLower(s), -1) {
		if stopWords[w] {
			continue
		}
		w = stem(w)
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range tokens(s) {
		set[w] = true
	}
	return set
}

// stem strips common English inflections so "called" meets "call".
func stem(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
