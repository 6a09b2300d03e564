package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnotes/internal/dates"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// Monday 2025-03-10 09:00 local.
var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.Local)

func newTestClassifier() *Classifier {
	return NewClassifier(dates.NewResolver(func() time.Time { return testNow }))
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       []string
	}{
		{"single clause", "buy milk", []string{"buy milk"}},
		{"sentences", "Buy milk. Call mom!", []string{"Buy milk", "Call mom"}},
		{"leading conjunction after terminator", "Buy milk. Then call mom! Also book flights?", []string{"Buy milk", "call mom", "book flights"}},
		{"and then", "call mom and then email Bob", []string{"call mom", "email Bob"}},
		{"case insensitive", "call mom THEN email Bob", []string{"call mom", "email Bob"}},
		{"runs of terminators", "really?!  ok...", []string{"really", "ok"}},
		{"empty", "   ", nil},
		{"then inside a word is kept", "call Athena", []string{"call Athena"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Segment(tt.transcript))
		})
	}
}

func TestSegment_Idempotent(t *testing.T) {
	for _, transcript := range []string{
		"Buy milk. Then call mom! Also book flights?",
		"dentist tomorrow at 3pm and then pick up bread",
	} {
		for _, seg := range Segment(transcript) {
			assert.Equal(t, []string{seg}, Segment(seg))
		}
	}
}

func TestClassifier_Extract(t *testing.T) {
	tomorrow := testNow.AddDate(0, 0, 1).Format(entity.DateLayout)
	today := testNow.Format(entity.DateLayout)

	tests := []struct {
		name       string
		transcript string
		want       []entity.ExtractedEntity
	}{
		{
			name:       "shopping items split on and",
			transcript: "buy milk and eggs",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeShopping, Content: "milk, eggs", Metadata: map[string]any{"items": []string{"milk", "eggs"}}},
			},
		},
		{
			name:       "shopping with store phrasing and commas",
			transcript: "I need to go to the store and get some apples, bread and cheese",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeShopping, Content: "apples, bread, cheese", Metadata: map[string]any{"items": []string{"apples", "bread", "cheese"}}},
			},
		},
		{
			name:       "event and shopping in one clause",
			transcript: "Meeting at 5pm and pick up bread",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeShopping, Content: "bread", Metadata: map[string]any{"items": []string{"bread"}}},
				{Type: entity.TypeEvent, Content: "meeting at 17:00", Metadata: map[string]any{"eventDate": today, "eventTime": "17:00"}},
			},
		},
		{
			name:       "dentist tomorrow",
			transcript: "Dentist appointment tomorrow at 3pm",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeEvent, Content: "Dentist at 15:00", Metadata: map[string]any{"eventDate": tomorrow, "eventTime": "15:00"}},
			},
		},
		{
			name:       "todo",
			transcript: "I need to finish the report",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeTodo, Content: "finish the report", Metadata: map[string]any{"priority": "medium"}},
			},
		},
		{
			name:       "idea",
			transcript: "I had an idea for a podcast about cooking",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeIdea, Content: "a podcast about cooking", Metadata: map[string]any{}},
			},
		},
		{
			name:       "note fallback keeps the verbatim transcript",
			transcript: "The weather is lovely today.",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeNote, Content: "The weather is lovely today.", Metadata: map[string]any{}},
			},
		},
		{
			name:       "duplicate clauses collapse",
			transcript: "Buy milk. buy milk.",
			want: []entity.ExtractedEntity{
				{Type: entity.TypeShopping, Content: "milk", Metadata: map[string]any{"items": []string{"milk"}}},
			},
		},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Extract(tt.transcript)
			assert.Equal(t, tt.want, result.Entities)
			assert.Equal(t, entity.StrategyLocal, result.Strategy)
			assert.Empty(t, result.Completions)
		})
	}
}

func TestClassifier_Reminder(t *testing.T) {
	result := newTestClassifier().Extract("Remind me to call mom")

	require.Len(t, result.Entities, 1)
	got := result.Entities[0]
	assert.Equal(t, entity.TypeReminder, got.Type)
	assert.Equal(t, "call mom", got.Content)
	assert.Equal(t, testNow.Add(time.Hour).Format(time.RFC3339), got.Metadata["reminderTime"])
}

func TestClassifier_NeverEmpty(t *testing.T) {
	c := newTestClassifier()
	for _, transcript := range []string{"", "hmm", "...", "okay so yeah"} {
		result := c.Extract(transcript)
		require.NotEmpty(t, result.Entities, transcript)
		assert.Equal(t, "Extracted 1 item(s) from voice note", result.Summary)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := newTestClassifier()
	transcript := "Remind me to water the plants. Dentist on Friday at 10am, also buy coffee and filters"

	first := c.Extract(transcript)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Extract(transcript))
	}
}

func TestClassifier_WeekdayResolvesAgainstWholeTranscript(t *testing.T) {
	result := newTestClassifier().Extract("On Monday. Meeting with Sam at 9am")

	var event *entity.ExtractedEntity
	for i := range result.Entities {
		if result.Entities[i].Type == entity.TypeEvent {
			event = &result.Entities[i]
		}
	}
	require.NotNil(t, event)
	// testNow is a Monday, so "Monday" is a week out.
	assert.Equal(t, "2025-03-17", event.Metadata["eventDate"])
	assert.Equal(t, "09:00", event.Metadata["eventTime"])
}

func TestClassifier_ShoppingAndEventSkipOtherRules(t *testing.T) {
	result := newTestClassifier().Extract("I need to get batteries")

	require.Len(t, result.Entities, 1)
	assert.Equal(t, entity.TypeShopping, result.Entities[0].Type)
	assert.Equal(t, "batteries", result.Entities[0].Content)
}

func TestClassifier_ShoppingDropsTrailingConnective(t *testing.T) {
	result := newTestClassifier().Extract("buy milk and eggs and also remind me to pay rent")

	var shopping *entity.ExtractedEntity
	for i := range result.Entities {
		if result.Entities[i].Type == entity.TypeShopping {
			shopping = &result.Entities[i]
		}
	}
	require.NotNil(t, shopping)
	assert.Equal(t, "milk, eggs", shopping.Content)
	assert.Equal(t, []string{"milk", "eggs"}, shopping.Metadata["items"])
}

func TestTrimConnectives(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"eggs and", "eggs"},
		{"also bread", "bread"},
		{"and then coffee filters too", "coffee filters"},
		{"and", ""},
		{"peanut butter", "peanut butter"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trimConnectives(tt.in), tt.in)
	}
}
