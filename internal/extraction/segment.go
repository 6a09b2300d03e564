package extraction

import (
	"regexp"
	"strings"
)

var (
	sentenceBoundary    = regexp.MustCompile(`[.!?]+`)
	conjunctionBoundary = regexp.MustCompile(`(?i)\s+(?:also|and\s+then|then)\s+`)
)

// Segment splits a transcript into clauses on sentence terminators and on
// the conjunctions "also", "then" and "and then". Segments are trimmed,
// empty ones dropped, and order preserved.
func Segment(transcript string) []string {
	var segments []string
	for _, sentence := range sentenceBoundary.Split(transcript, -1) {
		for _, clause := range conjunctionBoundary.Split(sentence, -1) {
			if clause = strings.TrimSpace(clause); clause != "" {
				segments = append(segments, clause)
			}
		}
	}
	return segments
}
