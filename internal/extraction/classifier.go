package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voxnotes/internal/dates"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// Trigger vocabulary.
var (
	shoppingCue = regexp.MustCompile(`(?i)\b(?:buy|shopping|grocery|groceries|get\s+some|pick\s+up|need\s+to\s+get)\b`)
	eventCue    = regexp.MustCompile(`(?i)\b(?:appointment|meeting|doctor|dentist|interview|class|session|game|match|practice)\b`)
	atWord      = regexp.MustCompile(`(?i)\bat\b`)
	timeToken   = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)

	reminderCue = regexp.MustCompile(`(?i)\b(?:remind(?:er)?|don[’']?t\s+forget)\b(?:\s+me)?(?:\s+to)?[\s:,]*(.*)`)
	todoCue     = regexp.MustCompile(`(?i)\b(?:need\s+to|have\s+to|to-?do|task)\b[\s:,]*(.*)`)
	ideaCue     = regexp.MustCompile(`(?i)\b(?:idea|thought\s+about)\b[\s:,]*(.*)`)
	ideaLead    = regexp.MustCompile(`(?i)^(?:for|about|is|that)\s+`)

	leadingConnective = regexp.MustCompile(`(?i)^(?:also|and|then|so|oh|plus|okay|ok)\b[\s,]*`)
)

// Shopping phrase stripping, applied in order.
var shoppingStrip = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:i\s+)?(?:need\s+to\s+|have\s+to\s+)?(?:go\s+to\s+)?(?:the\s+)?(?:grocery\s+)?(?:shop|store)\b\s*(?:and\s+)?`),
	regexp.MustCompile(`(?i)\b(?:i\s+)?(?:need\s+to\s+|have\s+to\s+|should\s+|want\s+to\s+)?(?:go\s+)?(?:grocery\s+)?shopping(?:\s+for)?\b\s*`),
	regexp.MustCompile(`(?i)\b(?:and\s+)?(?:i\s+)?(?:need\s+to\s+|have\s+to\s+|should\s+|want\s+to\s+)?(?:get|buy|pick\s+up)\s+(?:some\s+)?`),
	regexp.MustCompile(`(?i)\bon\s+(?:the|my)\s+way(?:\s+home)?\b`),
}

var (
	itemSplit     = regexp.MustCompile(`(?i),\s*|\s+and\s+`)
	itemTime      = regexp.MustCompile(`(?i)\d{1,2}\s*(?:am|pm)|\d{1,2}:\d{2}`)
	itemRejectSub = []string{"appointment", "meeting", "have a", "i have", "need to"}
	connectives   = map[string]bool{"also": true, "then": true, "and then": true, "too": true, "and": true, "so": true}
)

// Event purpose extraction.
var (
	eventFor         = regexp.MustCompile(`(?i)\bfor\s+(?:the\s+)?([^,.]+)`)
	eventHave        = regexp.MustCompile(`(?i)^(?:i\s+)?(?:have|got|had|there'?s)\s+(?:an?\s+|the\s+|my\s+)?`)
	eventKeyword     = regexp.MustCompile(`(?i)\b(?:i\s+)?(?:have\s+)?(?:an?\s+)?(?:appointment|meeting)\b`)
	eventBareKeyword = regexp.MustCompile(`(?i)\b(?:appointment|meeting)\b`)
	eventAfterKw     = regexp.MustCompile(`(?i)(?:appointment|meeting)\s+(?:with\s+)?(?:the\s+)?(\w+(?:\s+\w+)?)`)
	eventLead        = regexp.MustCompile(`(?i)^(?:a|an|the|with|for|my)\s+`)
	eventNoise       = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bat\s+\d{1,2}(?::\d{2})?\s*(?:am|pm)?\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b`),
		regexp.MustCompile(`(?i)\b(?:in\s+the|this)\s+(?:morning|afternoon|evening)\b|\btonight\b`),
		regexp.MustCompile(`(?i)\b(?:on\s+|this\s+|next\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		regexp.MustCompile(`(?i)\b(?:today|tomorrow|next\s+week)\b`),
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// Classifier extracts entities with ordered clause rules. Output depends
// only on the transcript and the resolver's clock.
type Classifier struct {
	resolver *dates.Resolver
}

// NewClassifier returns a classifier resolving dates with r.
func NewClassifier(r *dates.Resolver) *Classifier {
	if r == nil {
		r = dates.NewResolver(nil)
	}
	return &Classifier{resolver: r}
}

// Resolver returns the classifier's date resolver.
func (c *Classifier) Resolver() *dates.Resolver {
	return c.resolver
}

// Extract classifies every segment of transcript. Shopping and event rules
// may both fire on one segment. Reminder, todo and idea rules only run on
// segments that matched neither. When nothing matches, the result is one
// note holding the verbatim transcript.
func (c *Classifier) Extract(transcript string) entity.ExtractionResult {
	now := c.resolver.Now()
	eventDate := c.resolver.ResolveDate(transcript)

	var out []entity.ExtractedEntity
	seen := map[string]bool{}
	add := func(e entity.ExtractedEntity) {
		key := string(e.Type) + "|" + normalize(e.Content)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, e)
	}

	for _, segment := range Segment(transcript) {
		segment = leadingConnective.ReplaceAllString(segment, "")
		if segment == "" {
			continue
		}

		shopping := isShopping(segment)
		event := isEvent(segment)

		if shopping {
			if items := shoppingItems(segment); len(items) > 0 {
				add(entity.ExtractedEntity{
					Type:     entity.TypeShopping,
					Content:  strings.Join(items, ", "),
					Metadata: map[string]any{"items": items},
				})
			}
		}

		if event {
			purpose, hhmm, hasTime := eventDetails(segment)
			if len(purpose) > 1 {
				meta := map[string]any{"eventDate": eventDate}
				content := purpose
				if hasTime {
					meta["eventTime"] = hhmm
					content = purpose + " at " + hhmm
				}
				add(entity.ExtractedEntity{Type: entity.TypeEvent, Content: content, Metadata: meta})
			}
		}

		if shopping || event {
			continue
		}

		if content, ok := clauseAfter(reminderCue, segment); ok {
			add(entity.ExtractedEntity{
				Type:     entity.TypeReminder,
				Content:  content,
				Metadata: map[string]any{"reminderTime": now.Add(time.Hour).Format(time.RFC3339)},
			})
			continue
		}
		if content, ok := clauseAfter(todoCue, segment); ok {
			add(entity.ExtractedEntity{
				Type:     entity.TypeTodo,
				Content:  content,
				Metadata: map[string]any{"priority": string(entity.PriorityMedium)},
			})
			continue
		}
		if content, ok := clauseAfter(ideaCue, segment); ok {
			content = ideaLead.ReplaceAllString(content, "")
			if content != "" {
				add(entity.ExtractedEntity{Type: entity.TypeIdea, Content: content, Metadata: map[string]any{}})
			}
		}
	}

	if len(out) == 0 {
		out = append(out, entity.ExtractedEntity{
			Type:     entity.TypeNote,
			Content:  transcript,
			Metadata: map[string]any{},
		})
	}

	return entity.ExtractionResult{
		Entities:    out,
		Completions: []entity.CompletionMatch{},
		Summary:     fmt.Sprintf("Extracted %d item(s) from voice note", len(out)),
		Strategy:    entity.StrategyLocal,
	}
}

func isShopping(segment string) bool {
	return shoppingCue.MatchString(segment)
}

func isEvent(segment string) bool {
	if eventCue.MatchString(segment) {
		return true
	}
	return atWord.MatchString(segment) && timeToken.MatchString(segment)
}

// shoppingItems splits segment on commas and "and", strips intent phrasing
// from each part, and keeps parts that read as items.
func shoppingItems(segment string) []string {
	var items []string
	for _, part := range itemSplit.Split(segment, -1) {
		for _, re := range shoppingStrip {
			part = re.ReplaceAllString(part, "")
		}
		item := trimConnectives(strings.Trim(strings.TrimSpace(part), ",;:!?\"' "))
		if isItem(item) {
			items = append(items, item)
		}
	}
	return items
}

// trimConnectives drops connective words left at either edge of an item
// when a clause boundary cut through "and also".
func trimConnectives(item string) string {
	words := strings.Fields(item)
	for len(words) > 0 && connectives[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && connectives[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isItem(item string) bool {
	lower := strings.ToLower(item)
	n := len([]rune(item))
	if n < 2 || n >= 50 || connectives[lower] || itemTime.MatchString(item) {
		return false
	}
	for _, sub := range itemRejectSub {
		if strings.Contains(lower, sub) {
			return false
		}
	}
	return true
}

// eventClause narrows a mixed-intent segment to the part naming the event.
func eventClause(segment string) string {
	for _, part := range itemSplit.Split(segment, -1) {
		if eventCue.MatchString(part) || timeToken.MatchString(part) {
			return strings.TrimSpace(part)
		}
	}
	return segment
}

// eventDetails derives the event purpose and first time token of segment.
func eventDetails(segment string) (purpose, hhmm string, hasTime bool) {
	if tok := timeToken.FindString(segment); tok != "" {
		hhmm, hasTime = dates.ParseTime(tok)
	}

	clause := eventClause(segment)
	if m := eventFor.FindStringSubmatch(clause); m != nil {
		purpose = m[1]
	} else {
		purpose = eventHave.ReplaceAllString(clause, "")
		purpose = eventKeyword.ReplaceAllString(purpose, "")
	}
	purpose = eventLead.ReplaceAllString(stripEventNoise(purpose), "")

	lowerPurpose := strings.ToLower(purpose)
	if strings.Contains(lowerPurpose, "appointment") || strings.Contains(lowerPurpose, "meeting") {
		if m := eventAfterKw.FindStringSubmatch(clause); m != nil {
			purpose = strings.TrimSpace(m[1])
		}
	}

	lower := strings.ToLower(segment)
	for _, kind := range []string{"doctor", "dentist"} {
		if strings.Contains(lower, kind) && !strings.Contains(strings.ToLower(purpose), kind) {
			purpose = strings.TrimSpace(kind + " " + purpose)
		}
	}

	if purpose == "" {
		if kw := eventBareKeyword.FindString(clause); kw != "" {
			purpose = strings.ToLower(kw)
		} else {
			purpose = "appointment"
		}
	}
	return purpose, hhmm, hasTime
}

func stripEventNoise(s string) string {
	for _, re := range eventNoise {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Trim(whitespace.ReplaceAllString(s, " "), " ,;:")
}

// clauseAfter returns the trimmed text following the cue re matched.
func clauseAfter(re *regexp.Regexp, segment string) (string, bool) {
	m := re.FindStringSubmatch(segment)
	if m == nil {
		return "", false
	}
	content := strings.Trim(strings.TrimSpace(m[1]), ",;: ")
	return content, content != ""
}

// normalize folds case, whitespace and trailing punctuation for de-duplication.
func normalize(s string) string {
	s = whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
	return strings.TrimRight(s, ".,;:!? ")
}
