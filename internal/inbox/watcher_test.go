package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

type fakeProcessor struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeProcessor) ProcessText(_ context.Context, text string) (notes.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return notes.Outcome{}, f.err
	}
	text = strings.TrimSpace(text)
	if len(text) < notes.MinTextLength {
		return notes.Outcome{}, notes.ErrTextTooShort
	}
	f.texts = append(f.texts, text)
	return notes.Outcome{
		VoiceNote: entity.VoiceNote{ID: "vn_1", Transcript: text},
		Entities:  []entity.Entity{{ID: "ent_1", Type: entity.TypeNote, Content: text}},
	}, nil
}

func (f *fakeProcessor) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", &fakeProcessor{})
	assert.Error(t, err)
	_, err = New(t.TempDir(), nil)
	assert.Error(t, err)

	w, err := New("/tmp/inbox", &fakeProcessor{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/inbox", w.Dir())
}

func TestProcessFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		procErr  error
		wantErr  error
		wantFile string
	}{
		{name: "ingested", content: "buy milk and eggs\n", wantFile: "note.done"},
		{name: "too short", content: " hi ", wantErr: notes.ErrTextTooShort, wantFile: "note.failed"},
		{name: "transient failure", content: "call the bank", procErr: notes.ErrPersistence, wantErr: notes.ErrPersistence, wantFile: "note.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := write(t, dir, "note.txt", tt.content)
			w, err := New(dir, &fakeProcessor{err: tt.procErr})
			require.NoError(t, err)

			out, err := w.ProcessFile(context.Background(), path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, out.Entities, 1)
			}
			assert.True(t, exists(filepath.Join(dir, tt.wantFile)), "expected %s", tt.wantFile)
		})
	}
}

func TestProcessFile_Missing(t *testing.T) {
	w, err := New(t.TempDir(), &fakeProcessor{})
	require.NoError(t, err)
	_, err = w.ProcessFile(context.Background(), filepath.Join(w.Dir(), "gone.txt"))
	assert.Error(t, err)
}

func TestDrain(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "water the plants")
	write(t, dir, "b.txt", "dentist tomorrow at 3pm")
	write(t, dir, "ignored.wav", "RIFF")
	write(t, dir, ".hidden.txt", "partial write")

	proc := &fakeProcessor{}
	w, err := New(dir, proc)
	require.NoError(t, err)
	require.NoError(t, w.Drain(context.Background()))

	assert.ElementsMatch(t, []string{"water the plants", "dentist tomorrow at 3pm"}, proc.seen())
	assert.True(t, exists(filepath.Join(dir, "a.done")))
	assert.True(t, exists(filepath.Join(dir, "b.done")))
	assert.True(t, exists(filepath.Join(dir, "ignored.wav")))
	assert.True(t, exists(filepath.Join(dir, ".hidden.txt")))
}

func TestRun_IngestsExistingAndNewFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	write(t, dir, "early.txt", "pick up the dry cleaning")

	proc := &fakeProcessor{}
	results := make(chan Result, 4)
	w, err := New(dir, proc,
		WithSettle(20*time.Millisecond),
		OnResult(func(r Result) { results <- r }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		assert.Equal(t, filepath.Join(dir, "early.txt"), r.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("existing file not ingested")
	}

	write(t, dir, "late.txt", "book a table for friday")
	select {
	case r := <-results:
		require.NoError(t, r.Err)
		assert.Equal(t, "book a table for friday", r.Outcome.VoiceNote.Transcript)
	case <-time.After(2 * time.Second):
		t.Fatal("new file not ingested")
	}
	assert.True(t, exists(filepath.Join(dir, "late.done")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "inbox")
	w, err := New(dir, &fakeProcessor{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.DirExists(t, dir)
}

func TestPermanent(t *testing.T) {
	assert.True(t, permanent(notes.ErrTextTooShort))
	assert.False(t, permanent(notes.ErrPersistence))
	assert.False(t, permanent(errors.New("boom")))
}

func TestSchedule_ReleasedAfterRunReturns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, err := New(t.TempDir(), &fakeProcessor{}, WithSettle(time.Millisecond))
	require.NoError(t, err)

	// Nobody reads ready any more, as after Run has returned.
	ready := make(chan string)
	done := make(chan struct{})
	close(done)
	w.schedule(filepath.Join(w.Dir(), "late.txt"), ready, done)

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.timers) == 0
	}, time.Second, time.Millisecond)
}
