package entity

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func TestNewID_Format(t *testing.T) {
	id := NewID(now)
	assert.Regexp(t, regexp.MustCompile(`^ent_\d+_[0-9a-f]{9}$`), id)
	assert.Contains(t, id, "_1741597200000_")
	assert.NotEqual(t, id, NewID(now))

	assert.Regexp(t, regexp.MustCompile(`^rec_\d+_[0-9a-f]{9}$`), NewVoiceNoteID(now))
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"todo", TypeTodo, false},
		{" Shopping ", TypeShopping, false},
		{"task", TypeTodo, false},
		{"appointment", TypeEvent, false},
		{"groceries", TypeShopping, false},
		{"hologram", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusCompleted))
	assert.True(t, CanTransition(StatusActive, StatusCancelled))
	assert.False(t, CanTransition(StatusCompleted, StatusActive))
	assert.False(t, CanTransition(StatusCancelled, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusCompleted))
	assert.False(t, CanTransition(StatusActive, StatusActive))
}

func TestFromExtracted_Variants(t *testing.T) {
	tests := []struct {
		name  string
		in    ExtractedEntity
		check func(t *testing.T, e Entity)
	}{
		{
			name: "shopping items",
			in:   ExtractedEntity{Type: TypeShopping, Content: "milk, eggs", Metadata: map[string]any{"items": []any{"milk", "eggs"}}},
			check: func(t *testing.T, e Entity) {
				require.NotNil(t, e.Shopping)
				assert.Equal(t, []string{"milk", "eggs"}, e.Shopping.Items)
			},
		},
		{
			name: "shopping items derived from content",
			in:   ExtractedEntity{Type: TypeShopping, Content: "bread, jam"},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, []string{"bread", "jam"}, e.Shopping.Items)
			},
		},
		{
			name: "event with model time",
			in:   ExtractedEntity{Type: "meeting", Content: "standup", Metadata: map[string]any{"eventDate": "2025-03-11", "time": "5pm"}},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, TypeEvent, e.Type)
				assert.Equal(t, "2025-03-11", e.Event.EventDate)
				assert.Equal(t, "17:00", e.Event.EventTime)
			},
		},
		{
			name: "event defaults to today and ignores non-clock time",
			in:   ExtractedEntity{Type: TypeEvent, Content: "lunch with Sarah", Metadata: map[string]any{"time": "lunch"}},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, "2025-03-10", e.Event.EventDate)
				assert.Empty(t, e.Event.EventTime)
			},
		},
		{
			name: "reminder defaults to one hour",
			in:   ExtractedEntity{Type: TypeReminder, Content: "call mom"},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, now.Add(time.Hour), e.Reminder.ReminderTime)
			},
		},
		{
			name: "reminder explicit time",
			in:   ExtractedEntity{Type: TypeReminder, Content: "call mom", Metadata: map[string]any{"reminderTime": "2025-03-10T18:00:00Z"}},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), e.Reminder.ReminderTime.UTC())
			},
		},
		{
			name: "todo priority normalized",
			in:   ExtractedEntity{Type: TypeTodo, Content: "file taxes", Metadata: map[string]any{"priority": "HIGH", "dueDate": "2025-04-15"}},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, PriorityHigh, e.Todo.Priority)
				assert.Equal(t, "2025-04-15", e.Todo.DueDate)
			},
		},
		{
			name: "person named by content",
			in:   ExtractedEntity{Type: TypePerson, Content: "Dana"},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, "Dana", e.Person.Name)
			},
		},
		{
			name: "unknown type falls back to note",
			in:   ExtractedEntity{Type: "hologram", Content: "something"},
			check: func(t *testing.T, e Entity) {
				assert.Equal(t, TypeNote, e.Type)
				assert.Nil(t, e.Details())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromExtracted(tt.in, now)
			assert.Equal(t, StatusActive, e.Status)
			assert.Equal(t, now, e.CreatedAt)
			assert.Equal(t, now, e.UpdatedAt)
			require.NoError(t, e.Validate())
			tt.check(t, e)
		})
	}
}

func TestValidate_RejectsMismatchedDetails(t *testing.T) {
	e := FromExtracted(ExtractedEntity{Type: TypeTodo, Content: "x"}, now)
	e.Event = &EventDetails{EventDate: "2025-03-10"}
	assert.Error(t, e.Validate())
}

func TestDueAt(t *testing.T) {
	event := FromExtracted(ExtractedEntity{Type: TypeEvent, Content: "dentist", Metadata: map[string]any{"eventDate": "2025-03-12", "eventTime": "14:30"}}, now)
	due, ok := event.DueAt(time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC), due)

	note := FromExtracted(ExtractedEntity{Type: TypeNote, Content: "x"}, now)
	_, ok = note.DueAt(time.UTC)
	assert.False(t, ok)
}

func TestPreview(t *testing.T) {
	e := Entity{Content: "pick   up the dry cleaning before the shop closes tonight"}
	assert.Equal(t, "pick up the dry...", e.Preview(18))
	assert.Equal(t, "pick up the dry cleaning before the shop closes tonight", e.Preview(100))
}

func TestExtractionResult_HasSpecific(t *testing.T) {
	assert.False(t, ExtractionResult{Entities: []ExtractedEntity{{Type: TypeNote}}}.HasSpecific())
	assert.True(t, ExtractionResult{Entities: []ExtractedEntity{{Type: TypeNote}, {Type: TypeIdea}}}.HasSpecific())
}
