package entity

import (
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voxnotes/internal/dates"
)

// Strategy names the extraction strategy that produced a result.
type Strategy string

const (
	StrategyLocal    Strategy = "local"
	StrategyOnDevice Strategy = "on_device"
	StrategyCloud    Strategy = "cloud"
)

// ExtractedEntity is a classifier or model output not yet persisted.
type ExtractedEntity struct {
	Type     Type           `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CompletionMatch is a detected reference to finishing an existing entity.
type CompletionMatch struct {
	EntityID   string  `json:"entityId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ExtractionResult is the single finalized output of one extraction pass.
type ExtractionResult struct {
	Entities    []ExtractedEntity `json:"entities"`
	Completions []CompletionMatch `json:"completions"`
	Summary     string            `json:"summary"`
	Strategy    Strategy          `json:"strategy"`
}

// HasSpecific reports whether any entity is something other than a note.
func (r ExtractionResult) HasSpecific() bool {
	for _, e := range r.Entities {
		if e.Type != TypeNote {
			return true
		}
	}
	return false
}

// VoiceNote is one recording or typed transcript. It is saved before the
// entities derived from it so they can reference it.
type VoiceNote struct {
	ID         string    `json:"id"`
	Transcript string    `json:"transcript"`
	AudioRef   string    `json:"audioRef,omitempty"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FromExtracted allocates an ID and timestamps for x and merges its
// metadata into the matching variant. Unknown types become notes. Required
// variant fields missing from metadata get defaults: a reminder fires one
// hour after now, an event falls on today, a person is named by the content.
func FromExtracted(x ExtractedEntity, now time.Time) Entity {
	t, err := ParseType(string(x.Type))
	if err != nil {
		t = TypeNote
	}
	e := Entity{
		ID:        NewID(now),
		Type:      t,
		Content:   strings.TrimSpace(x.Content),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m := metadata(x.Metadata)

	switch t {
	case TypeTodo:
		d := &TodoDetails{DueDate: m.date("dueDate", "due_date", "date")}
		switch p := Priority(strings.ToLower(m.str("priority"))); p {
		case PriorityLow, PriorityMedium, PriorityHigh:
			d.Priority = p
		}
		e.Todo = d
	case TypeReminder:
		d := &ReminderDetails{
			IsRecurring:      m.boolean("isRecurring", "is_recurring"),
			RecurringPattern: m.str("recurringPattern", "recurring_pattern"),
		}
		if ts, ok := m.timestamp(now.Location(), "reminderTime", "reminder_time", "time"); ok {
			d.ReminderTime = ts
		} else {
			d.ReminderTime = now.Add(time.Hour)
		}
		e.Reminder = d
	case TypeEvent:
		d := &EventDetails{
			EventDate: m.date("eventDate", "event_date", "date"),
			Location:  m.str("location"),
			Duration:  int(m.number("duration")),
		}
		if d.EventDate == "" {
			d.EventDate = now.Format(DateLayout)
		}
		if raw := m.str("eventTime", "event_time", "time"); raw != "" {
			if hhmm, ok := dates.ParseTime(raw); ok {
				d.EventTime = hhmm
			}
		}
		e.Event = d
	case TypeShopping:
		d := &ShoppingDetails{
			Items:    m.strings("items"),
			Quantity: m.number("quantity"),
			Unit:     m.str("unit"),
			Category: m.str("category"),
		}
		if len(d.Items) == 0 && e.Content != "" {
			for _, item := range strings.Split(e.Content, ",") {
				if item = strings.TrimSpace(item); item != "" {
					d.Items = append(d.Items, item)
				}
			}
		}
		e.Shopping = d
	case TypePerson:
		d := &PersonDetails{
			Name:         m.str("name"),
			Relationship: m.str("relationship"),
			Notes:        m.str("notes"),
		}
		if d.Name == "" {
			d.Name = e.Content
		}
		e.Person = d
	case TypeIdea:
		e.Idea = &IdeaDetails{Category: m.str("category"), Tags: m.strings("tags")}
	case TypeJournal:
		d := &JournalDetails{}
		switch mood := Mood(strings.ToLower(m.str("mood"))); mood {
		case MoodHappy, MoodNeutral, MoodSad, MoodExcited, MoodAnxious:
			d.Mood = mood
		}
		e.Journal = d
	}
	return e
}

// metadata reads loosely typed model output.
type metadata map[string]any

func (m metadata) str(keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func (m metadata) number(keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func (m metadata) boolean(keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

func (m metadata) strings(key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// date returns the first key holding a YYYY-MM-DD value (or an RFC3339
// timestamp, reduced to its date).
func (m metadata) date(keys ...string) string {
	for _, k := range keys {
		s := m.str(k)
		if s == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, s); err == nil {
			return s
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.Format(DateLayout)
		}
	}
	return ""
}

func (m metadata) timestamp(loc *time.Location, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		s := m.str(k)
		if s == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, true
		}
		if ts, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
