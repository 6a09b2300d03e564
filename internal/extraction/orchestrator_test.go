package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

type fakeOnDevice struct {
	ready   bool
	output  string
	err     error
	prompts []string
}

func (f *fakeOnDevice) Ready() bool { return f.ready }

func (f *fakeOnDevice) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.output, f.err
}

type fakeCloud struct {
	result entity.ExtractionResult
	err    error
	calls  int
}

func (f *fakeCloud) ExtractEntities(context.Context, string, []entity.Entity) (entity.ExtractionResult, error) {
	f.calls++
	return f.result, f.err
}

var cloudResult = entity.ExtractionResult{
	Entities: []entity.ExtractedEntity{{Type: entity.TypeJournal, Content: "felt great after the run"}},
	Summary:  "One journal entry",
}

const noteOnly = "The sunset over the lake was something else"

func TestNewOrchestrator(t *testing.T) {
	c := newTestClassifier()

	_, err := NewOrchestrator(ModeRemote, c)
	assert.ErrorIs(t, err, ErrCloudUnavailable)

	_, err = NewOrchestrator(Mode("psychic"), c)
	assert.Error(t, err)

	_, err = NewOrchestrator(ModeLocal, nil)
	assert.Error(t, err)

	o, err := NewOrchestrator(ModeHybrid, c)
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, o.Mode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	_, err = ParseMode("cloud")
	assert.Error(t, err)
}

func TestOrchestrator_LocalMode(t *testing.T) {
	cloud := &fakeCloud{result: cloudResult}
	o, err := NewOrchestrator(ModeLocal, newTestClassifier(), WithCloud(cloud))
	require.NoError(t, err)

	result, err := o.Extract(context.Background(), noteOnly, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StrategyLocal, result.Strategy)
	assert.Equal(t, 0, cloud.calls)
	assert.Equal(t, "Extracted 1 item(s) from voice note (via local)", result.Summary)
}

func TestOrchestrator_RemoteMode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		o, err := NewOrchestrator(ModeRemote, newTestClassifier(), WithCloud(&fakeCloud{result: cloudResult}))
		require.NoError(t, err)

		result, err := o.Extract(context.Background(), "buy milk", nil)
		require.NoError(t, err)
		assert.Equal(t, entity.StrategyCloud, result.Strategy)
		assert.Equal(t, cloudResult.Entities, result.Entities)
		assert.True(t, strings.HasSuffix(result.Summary, "(via cloud)"))
	})

	t.Run("errors propagate", func(t *testing.T) {
		boom := errors.New("network down")
		o, err := NewOrchestrator(ModeRemote, newTestClassifier(), WithCloud(&fakeCloud{err: boom}))
		require.NoError(t, err)

		_, err = o.Extract(context.Background(), "buy milk", nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unparseable output surfaces ErrNoExtraction", func(t *testing.T) {
		o, err := NewOrchestrator(ModeRemote, newTestClassifier(), WithCloud(&fakeCloud{err: ErrNoExtraction}))
		require.NoError(t, err)

		_, err = o.Extract(context.Background(), "buy milk", nil)
		assert.ErrorIs(t, err, ErrNoExtraction)
	})
}

func TestOrchestrator_HybridAcceptsSpecificLocalResult(t *testing.T) {
	model := &fakeOnDevice{ready: true, output: `{"entities":[{"type":"idea","content":"x"}]}`}
	cloud := &fakeCloud{result: cloudResult}
	o, err := NewOrchestrator(ModeHybrid, newTestClassifier(), WithOnDevice(model), WithCloud(cloud))
	require.NoError(t, err)

	result, err := o.Extract(context.Background(), "buy milk and eggs", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StrategyLocal, result.Strategy)
	assert.Empty(t, model.prompts)
	assert.Equal(t, 0, cloud.calls)
}

func TestOrchestrator_HybridInvokesModelOnNoteOnlyResult(t *testing.T) {
	model := &fakeOnDevice{
		ready:  true,
		output: "<think>ok</think>\n" + `{"entities":[{"type":"journal","content":"watched the sunset at the lake","metadata":{"mood":"happy"}}],"summary":"A calm evening"}`,
	}
	cloud := &fakeCloud{result: cloudResult}
	o, err := NewOrchestrator(ModeHybrid, newTestClassifier(), WithOnDevice(model), WithCloud(cloud))
	require.NoError(t, err)

	result, err := o.Extract(context.Background(), noteOnly, nil)
	require.NoError(t, err)

	require.Len(t, model.prompts, 1)
	assert.True(t, strings.HasPrefix(model.prompts[0], "<|im_start|>system\n"))
	assert.Contains(t, model.prompts[0], noteOnly)
	assert.True(t, strings.HasSuffix(model.prompts[0], "<|im_start|>assistant\n"))

	assert.Equal(t, entity.StrategyOnDevice, result.Strategy)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, entity.TypeJournal, result.Entities[0].Type)
	assert.Equal(t, "A calm evening (via on_device)", result.Summary)
	assert.Equal(t, 0, cloud.calls)
}

func TestOrchestrator_HybridFallthrough(t *testing.T) {
	tests := []struct {
		name         string
		model        *fakeOnDevice
		cloud        *fakeCloud
		wantStrategy entity.Strategy
		wantCalls    int
	}{
		{
			name:         "model not ready uses cloud",
			model:        &fakeOnDevice{ready: false},
			cloud:        &fakeCloud{result: cloudResult},
			wantStrategy: entity.StrategyCloud,
			wantCalls:    1,
		},
		{
			name:         "unparseable model output uses cloud",
			model:        &fakeOnDevice{ready: true, output: "I don't know"},
			cloud:        &fakeCloud{result: cloudResult},
			wantStrategy: entity.StrategyCloud,
			wantCalls:    1,
		},
		{
			name:         "model error uses cloud",
			model:        &fakeOnDevice{ready: true, err: errors.New("runtime crashed")},
			cloud:        &fakeCloud{result: cloudResult},
			wantStrategy: entity.StrategyCloud,
			wantCalls:    1,
		},
		{
			name:         "everything fails settles for local",
			model:        &fakeOnDevice{ready: true, output: "{broken"},
			cloud:        &fakeCloud{err: errors.New("401 unauthorized")},
			wantStrategy: entity.StrategyLocal,
			wantCalls:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrchestrator(ModeHybrid, newTestClassifier(), WithOnDevice(tt.model), WithCloud(tt.cloud))
			require.NoError(t, err)

			result, err := o.Extract(context.Background(), noteOnly, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrategy, result.Strategy)
			assert.Equal(t, tt.wantCalls, tt.cloud.calls)
			assert.NotEmpty(t, result.Entities)
		})
	}
}

func TestOrchestrator_HybridWithoutBackendsIsLocal(t *testing.T) {
	o, err := NewOrchestrator(ModeHybrid, newTestClassifier())
	require.NoError(t, err)

	result, err := o.Extract(context.Background(), noteOnly, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StrategyLocal, result.Strategy)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, entity.TypeNote, result.Entities[0].Type)
	assert.Equal(t, noteOnly, result.Entities[0].Content)
}

func TestOrchestrator_Completions(t *testing.T) {
	active := []entity.Entity{
		activeEntity("ent_1", entity.TypeTodo, "call mom", testNow),
		activeEntity("ent_2", entity.TypeTodo, "book flights", testNow),
	}

	t.Run("heuristic when the strategy reports none", func(t *testing.T) {
		o, err := NewOrchestrator(ModeLocal, newTestClassifier())
		require.NoError(t, err)

		result, err := o.Extract(context.Background(), "I called mom", active)
		require.NoError(t, err)
		require.NotEmpty(t, result.Completions)
		assert.Equal(t, "ent_1", result.Completions[0].EntityID)
		assert.True(t, AutoApplicable(result.Completions[0]))
	})

	t.Run("model-reported completions win", func(t *testing.T) {
		model := &fakeOnDevice{
			ready:  true,
			output: `{"entities":[{"type":"journal","content":"long day"}],"completions":[{"entityId":"ent_2","confidence":0.9,"reason":"booked"},{"entityId":"ent_404","confidence":1}]}`,
		}
		o, err := NewOrchestrator(ModeHybrid, newTestClassifier(), WithOnDevice(model))
		require.NoError(t, err)

		result, err := o.Extract(context.Background(), "Long day, sorted the trip out", active)
		require.NoError(t, err)
		assert.Equal(t, []entity.CompletionMatch{{EntityID: "ent_2", Confidence: 0.9, Reason: "booked"}}, result.Completions)
		assert.Contains(t, model.prompts[0], "ent_1")
	})
}
