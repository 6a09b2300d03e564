package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnotes/internal/bench"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

// testEnv points config at a temporary home with local extraction.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("VOXNOTES_EXTRACTION_MODE", "local")
	t.Setenv("VOXNOTES_STORE_PATH", filepath.Join(dir, "voxnotes.db"))
	t.Setenv("VOXNOTES_MODEL_DIR", filepath.Join(dir, "models"))
	t.Setenv("VOXNOTES_INBOX_DIR", filepath.Join(dir, "inbox"))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNoteAndQueries(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "", "note", "--json", "buy", "milk", "and", "eggs")
	require.NoError(t, err)
	var outcome notes.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	require.Len(t, outcome.Entities, 1)
	id := outcome.Entities[0].ID
	assert.Equal(t, entity.TypeShopping, outcome.Entities[0].Type)

	out, err = execute(t, "Remind me to call mom", "note", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "call mom")

	out, err = execute(t, "", "list", "--type", "shopping")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "", "search", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "", "upcoming", "--json")
	require.NoError(t, err)
	var upcoming []entity.Entity
	require.NoError(t, json.Unmarshal([]byte(out), &upcoming))
	require.Len(t, upcoming, 1)
	assert.Equal(t, entity.TypeReminder, upcoming[0].Type)

	out, err = execute(t, "", "complete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")

	_, err = execute(t, "", "complete", id)
	require.Error(t, err)
	assert.Equal(t, "That item is already completed or cancelled.", err.Error())

	out, err = execute(t, "", "list", "--status", "completed", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	_, err = execute(t, "", "delete", id)
	require.Error(t, err)
	assert.Equal(t, "That item no longer exists.", err.Error())
}

func TestNote_Validation(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "", "note", "hi")
	require.Error(t, err)
	assert.Equal(t, "Please enter at least 3 characters.", err.Error())

	_, err = execute(t, "", "list", "--type", "banana")
	assert.Error(t, err)

	_, err = execute(t, "", "list", "--status", "archived")
	assert.Error(t, err)

	_, err = execute(t, "", "note", "--mode", "psychic", "buy milk")
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing here yet.")

	out, err = execute(t, "", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestBench(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "", "bench")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "mode local")

	file := filepath.Join(dir, "cases.toml")
	require.NoError(t, os.WriteFile(file, []byte("[[case]]\nname = \"milk\"\ntranscript = \"buy milk\"\nexpect = [\"shopping\"]\n"), 0o600))
	out, err = execute(t, "", "bench", "--json", "--file", file)
	require.NoError(t, err)
	var rep bench.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, "milk", rep.Results[0].Case.Name)

	_, err = execute(t, "", "bench", "--file", filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestModelStatusAndReset(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "", "model", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not initialized")
	assert.Contains(t, out, "Downloaded: false")

	modelDir := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(modelDir, 0o700))
	out, err = execute(t, "", "model", "status", "--json")
	require.NoError(t, err)
	var st struct {
		Ready      bool   `json:"ready"`
		Path       string `json:"path"`
		Downloaded bool   `json:"downloaded"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Ready)
	assert.Equal(t, modelDir, filepath.Dir(st.Path))

	require.NoError(t, os.WriteFile(st.Path, []byte("gguf"), 0o600))
	out, err = execute(t, "", "model", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Model removed.")
	assert.NoFileExists(t, st.Path)
}

func TestNoteText(t *testing.T) {
	text, err := noteText(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	text, err = noteText(strings.NewReader("ignored"), []string{"call", "mom"})
	require.NoError(t, err)
	assert.Equal(t, "call mom", text)
}
