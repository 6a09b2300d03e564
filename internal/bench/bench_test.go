package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnotes/internal/dates"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
)

func localOrchestrator(t *testing.T) *extraction.Orchestrator {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local) }
	o, err := extraction.NewOrchestrator(extraction.ModeLocal, extraction.NewClassifier(dates.NewResolver(now)))
	require.NoError(t, err)
	return o
}

type erroringExtractor struct{}

func (erroringExtractor) Extract(context.Context, string, []entity.Entity) (entity.ExtractionResult, error) {
	return entity.ExtractionResult{}, extraction.ErrCloudUnavailable
}

func (erroringExtractor) Mode() extraction.Mode { return extraction.ModeRemote }

func TestDefaultCases_CoverCategories(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range DefaultCases() {
		seen[c.Category] = true
		assert.NotEmpty(t, c.Expect, c.Name)
	}
	for _, cat := range Categories {
		assert.True(t, seen[cat], "missing category %s", cat)
	}
}

func TestRunner_LocalPassesDefaults(t *testing.T) {
	rep, err := NewRunner(localOrchestrator(t), nil).Run(context.Background(), DefaultCases())
	require.NoError(t, err)

	for _, res := range rep.Results {
		assert.True(t, res.Passed, "%s: expected %v, got %v", res.Case.Name, res.Case.Expect, res.Got)
		assert.Equal(t, entity.StrategyLocal, res.Strategy)
	}
	assert.Equal(t, len(DefaultCases()), rep.Passed)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, extraction.ModeLocal, rep.Mode)
	assert.Equal(t, [2]int{2, 2}, rep.ByCategory()["complex"])
}

func TestRunner_MismatchAndErrors(t *testing.T) {
	cases := []Case{{Name: "wrong", Category: "edge", Transcript: "buy milk", Expect: []entity.Type{entity.TypeTodo}}}

	rep, err := NewRunner(localOrchestrator(t), nil).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []entity.Type{entity.TypeShopping}, rep.Results[0].Got)

	rep, err = NewRunner(erroringExtractor{}, nil).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.ErrorIs(t, rep.Results[0].Err, extraction.ErrCloudUnavailable)
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(localOrchestrator(t), nil).Run(ctx, DefaultCases())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSameTypes(t *testing.T) {
	tests := []struct {
		name      string
		want, got []entity.Type
		same      bool
	}{
		{"order ignored", []entity.Type{entity.TypeEvent, entity.TypeShopping}, []entity.Type{entity.TypeShopping, entity.TypeEvent}, true},
		{"count matters", []entity.Type{entity.TypeTodo}, []entity.Type{entity.TypeTodo, entity.TypeTodo}, false},
		{"different", []entity.Type{entity.TypeTodo}, []entity.Type{entity.TypeNote}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, sameTypes(tt.want, tt.got))
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name: "valid with alias",
			input: `
[[case]]
name = "call"
category = "task"
transcript = "remind me to call mom"
expect = ["reminder"]

[[case]]
transcript = "I need to do the taxes"
expect = ["task"]
`,
		},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown type", input: "[[case]]\ntranscript = \"x y z\"\nexpect = [\"banana\"]\n", wantErr: true},
		{name: "missing transcript", input: "[[case]]\nexpect = [\"note\"]\n", wantErr: true},
		{name: "unknown key", input: "[[case]]\ntranscript = \"x y z\"\nexpect = [\"note\"]\nexpected = 1\n", wantErr: true},
		{name: "malformed", input: "[[case]\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, err := Decode(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCases)
				return
			}
			require.NoError(t, err)
			require.Len(t, cases, 2)
			assert.Equal(t, "call", cases[0].Name)
			assert.Equal(t, "custom", cases[1].Category)
			assert.Equal(t, "I need to do the taxes", cases[1].Name)
			assert.Equal(t, []entity.Type{entity.TypeTodo}, cases[1].Expect)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[case]]\ntranscript = \"buy milk\"\nexpect = [\"shopping\"]\n"), 0o600))

	cases, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReport_WriteText(t *testing.T) {
	rep := Report{
		Mode: extraction.ModeLocal,
		Results: []CaseResult{
			{Case: Case{Name: "list", Category: "shopping", Expect: []entity.Type{entity.TypeShopping}}, Got: []entity.Type{entity.TypeShopping}, Strategy: entity.StrategyLocal, Passed: true},
			{Case: Case{Name: "broken", Category: "edge", Expect: []entity.Type{entity.TypeNote}}, Err: errors.New("timeout")},
		},
		Passed: 1,
		Failed: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "error: timeout")
	assert.Contains(t, out, "1/2 passed (50%)")
	assert.Contains(t, out, "mode local")
}
