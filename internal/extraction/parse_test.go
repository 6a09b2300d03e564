package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

func TestParseModelOutput(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n" + `{
  "entities": [
    { "type": "shopping", "content": "milk, eggs", "metadata": { "items": ["milk", "eggs"] } },
    { "type": "task", "content": " call the bank " },
    { "type": "banana", "content": "something odd" },
    { "type": "todo", "content": "" }
  ],
  "completions": [
    { "entityId": "ent_1", "confidence": 0.92, "reason": "user said they called" },
    { "entityId": "ent_unknown", "confidence": 0.99, "reason": "hallucinated" }
  ],
  "summary": "Two things"
}` + "\n```"

	result, err := ParseModelOutput(raw, map[string]bool{"ent_1": true})
	require.NoError(t, err)

	require.Len(t, result.Entities, 3)
	assert.Equal(t, entity.TypeShopping, result.Entities[0].Type)
	assert.Equal(t, []any{"milk", "eggs"}, result.Entities[0].Metadata["items"])
	assert.Equal(t, entity.TypeTodo, result.Entities[1].Type)
	assert.Equal(t, "call the bank", result.Entities[1].Content)
	assert.Equal(t, map[string]any{}, result.Entities[1].Metadata)
	assert.Equal(t, entity.TypeNote, result.Entities[2].Type)

	require.Len(t, result.Completions, 1)
	assert.Equal(t, "ent_1", result.Completions[0].EntityID)
	assert.InDelta(t, 0.92, result.Completions[0].Confidence, 1e-9)
	assert.Equal(t, "Two things", result.Summary)
}

func TestParseModelOutput_DefaultSummary(t *testing.T) {
	result, err := ParseModelOutput(`{"entities":[{"type":"idea","content":"solar kettle"}]}`, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultModelSummary, result.Summary)
	assert.Empty(t, result.Completions)
}

func TestParseModelOutput_NoExtraction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I could not find anything."},
		{"braces reversed", "} nothing {"},
		{"invalid json", "{entities: [oops}"},
		{"entities not an array", `{"entities": "milk"}`},
		{"no usable entities", `{"entities": [{"type": "todo", "content": "  "}, 3]}`},
		{"missing entities", `{"summary": "hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelOutput(tt.raw, nil)
			assert.ErrorIs(t, err, ErrNoExtraction)
		})
	}
}
