// Package entity defines the records a voice note is turned into.
//
// An Entity is a tagged union: Type selects which one of the variant detail
// pointers (Todo, Reminder, Event, ...) may be set. Note entities carry no
// details.
package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies an entity variant.
type Type string

const (
	TypeNote     Type = "note"
	TypeJournal  Type = "journal"
	TypeTodo     Type = "todo"
	TypeReminder Type = "reminder"
	TypeEvent    Type = "event"
	TypeShopping Type = "shopping"
	TypePerson   Type = "person"
	TypeIdea     Type = "idea"
)

// Types lists every variant in display order.
var Types = []Type{TypeNote, TypeJournal, TypeTodo, TypeReminder, TypeEvent, TypeShopping, TypePerson, TypeIdea}

// Valid reports whether t is a known variant.
func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// ParseType parses a type name, accepting the aliases model backends emit.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, nil
	}
	if alias, ok := typeAliases[string(t)]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

var typeAliases = map[string]Type{
	"task":          TypeTodo,
	"to-do":         TypeTodo,
	"action":        TypeTodo,
	"appointment":   TypeEvent,
	"meeting":       TypeEvent,
	"calendar":      TypeEvent,
	"grocery":       TypeShopping,
	"groceries":     TypeShopping,
	"shopping_item": TypeShopping,
	"diary":         TypeJournal,
	"contact":       TypePerson,
	"thought":       TypeIdea,
}

// Status is the lifecycle state of an entity.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is returned for any status change other than leaving active.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether from may move to to. Completed and
// cancelled are terminal.
func CanTransition(from, to Status) bool {
	return from == StatusActive && (to == StatusCompleted || to == StatusCancelled)
}

// Priority of a todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Mood of a journal entry.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
	MoodExcited Mood = "excited"
	MoodAnxious Mood = "anxious"
)

// Entity is a persisted record derived from a voice note.
type Entity struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Content       string    `json:"content"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	RawTranscript string    `json:"rawTranscript,omitempty"`
	// VoiceNoteID is a weak back-reference to the originating recording.
	VoiceNoteID string `json:"voiceNoteId,omitempty"`

	Todo     *TodoDetails     `json:"todo,omitempty"`
	Reminder *ReminderDetails `json:"reminder,omitempty"`
	Event    *EventDetails    `json:"event,omitempty"`
	Shopping *ShoppingDetails `json:"shopping,omitempty"`
	Person   *PersonDetails   `json:"person,omitempty"`
	Idea     *IdeaDetails     `json:"idea,omitempty"`
	Journal  *JournalDetails  `json:"journal,omitempty"`
}

type TodoDetails struct {
	DueDate  string   `json:"dueDate,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

type ReminderDetails struct {
	ReminderTime     time.Time `json:"reminderTime"`
	IsRecurring      bool      `json:"isRecurring,omitempty"`
	RecurringPattern string    `json:"recurringPattern,omitempty"`
}

type EventDetails struct {
	EventDate string `json:"eventDate"`
	EventTime string `json:"eventTime,omitempty"`
	Location  string `json:"location,omitempty"`
	// Duration in minutes.
	Duration int `json:"duration,omitempty"`
}

type ShoppingDetails struct {
	Items    []string `json:"items,omitempty"`
	Quantity float64  `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Category string   `json:"category,omitempty"`
}

type PersonDetails struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type IdeaDetails struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type JournalDetails struct {
	Mood Mood `json:"mood,omitempty"`
}

// Details returns the variant detail struct, or nil for notes.
func (e *Entity) Details() any {
	switch e.Type {
	case TypeTodo:
		return e.Todo
	case TypeReminder:
		return e.Reminder
	case TypeEvent:
		return e.Event
	case TypeShopping:
		return e.Shopping
	case TypePerson:
		return e.Person
	case TypeIdea:
		return e.Idea
	case TypeJournal:
		return e.Journal
	}
	return nil
}

// Validate checks the union invariant: only the detail pointer matching
// Type may be set, and required variant fields are present.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return errors.New("entity id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown entity type %q", e.Type)
	}
	switch e.Status {
	case StatusActive, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("unknown entity status %q", e.Status)
	}

	set := map[Type]bool{
		TypeTodo:     e.Todo != nil,
		TypeReminder: e.Reminder != nil,
		TypeEvent:    e.Event != nil,
		TypeShopping: e.Shopping != nil,
		TypePerson:   e.Person != nil,
		TypeIdea:     e.Idea != nil,
		TypeJournal:  e.Journal != nil,
	}
	for t, ok := range set {
		if ok && t != e.Type {
			return fmt.Errorf("%s entity carries %s details", e.Type, t)
		}
	}

	switch e.Type {
	case TypeReminder:
		if e.Reminder == nil || e.Reminder.ReminderTime.IsZero() {
			return errors.New("reminder entity requires reminderTime")
		}
	case TypeEvent:
		if e.Event == nil || e.Event.EventDate == "" {
			return errors.New("event entity requires eventDate")
		}
	case TypePerson:
		if e.Person == nil || e.Person.Name == "" {
			return errors.New("person entity requires name")
		}
	}
	return nil
}

// DueAt returns the moment the entity is due: a todo's due date, a
// reminder's time, or an event's date and time. Dates are interpreted in loc.
func (e *Entity) DueAt(loc *time.Location) (time.Time, bool) {
	switch {
	case e.Type == TypeTodo && e.Todo != nil && e.Todo.DueDate != "":
		t, err := time.ParseInLocation(DateLayout, e.Todo.DueDate, loc)
		return t, err == nil
	case e.Type == TypeReminder && e.Reminder != nil:
		return e.Reminder.ReminderTime, !e.Reminder.ReminderTime.IsZero()
	case e.Type == TypeEvent && e.Event != nil:
		if e.Event.EventTime != "" {
			if t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Event.EventDate+" "+e.Event.EventTime, loc); err == nil {
				return t, true
			}
		}
		t, err := time.ParseInLocation(DateLayout, e.Event.EventDate, loc)
		return t, err == nil
	}
	return time.Time{}, false
}

// Layouts for date-only and time-only values.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Preview returns content truncated to n runes with an ellipsis.
func (e *Entity) Preview(n int) string {
	r := []rune(strings.Join(strings.Fields(e.Content), " "))
	if len(r) <= n {
		return string(r)
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
