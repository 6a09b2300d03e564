package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testTimeout = 50 * time.Millisecond

type fakeMic struct {
	mu        sync.Mutex
	openErr   error
	closeErr  error
	opened    bool
	closed    bool
	discarded bool
}

func (m *fakeMic) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *fakeMic) Close() (Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.closeErr != nil {
		return Recording{}, m.closeErr
	}
	return Recording{AudioRef: "/audio/rec.wav", Duration: 3 * time.Second}, nil
}

func (m *fakeMic) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded = true
	return nil
}

func (m *fakeMic) released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || m.discarded
}

type fakeSpeech struct {
	mu        sync.Mutex
	events    chan Event
	startErr  error
	opts      SpeechOptions
	stopped   bool
	closed    bool
	onStop    func(chan<- Event)
	closeOnce sync.Once
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{events: make(chan Event, 16)}
}

func (f *fakeSpeech) Start(_ context.Context, opts SpeechOptions) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.opts = opts
	return f.events, nil
}

func (f *fakeSpeech) Stop() error {
	f.mu.Lock()
	f.stopped = true
	onStop := f.onStop
	f.mu.Unlock()
	if onStop != nil {
		onStop(f.events)
	}
	return nil
}

func (f *fakeSpeech) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeSpeech) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func transcribing() Options {
	return Options{Transcribe: true, FinalizeTimeout: testTimeout}
}

func waitTranscript(t *testing.T, s *Session, want string) {
	t.Helper()
	assert.Eventually(t, func() bool { return s.Transcript() == want }, time.Second, time.Millisecond)
}

func waitPreview(t *testing.T, s *Session, want string) {
	t.Helper()
	assert.Eventually(t, func() bool { return s.Preview() == want }, time.Second, time.Millisecond)
}

func TestSession_PendingFinalSettlesImmediately(t *testing.T) {
	mic, speech := &fakeMic{}, newFakeSpeech()
	s := NewSession(mic, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, SpeechOptions{Lang: "en-US", InterimResults: true, Continuous: true}, speech.opts)

	speech.events <- ResultEvent{Transcript: "buy milk and eggs", IsFinal: true}
	waitTranscript(t, s, "buy milk and eggs")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "buy milk and eggs", res.Transcript)
	assert.Equal(t, finalizeImmediate, res.Finalize)
	assert.Equal(t, "/audio/rec.wav", res.AudioRef)
	assert.Equal(t, 3*time.Second, res.Duration)
	assert.NoError(t, res.Err())
	assert.Equal(t, StateCompleted, s.State())
	assert.True(t, mic.released())
	assert.True(t, speech.wasClosed())
}

func TestSession_FinalReplacesAccumulator(t *testing.T) {
	speech := newFakeSpeech()
	s := NewSession(&fakeMic{}, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))

	speech.events <- ResultEvent{Transcript: "buy"}
	speech.events <- ResultEvent{Transcript: "buy milk", IsFinal: true}
	speech.events <- ResultEvent{Transcript: "call mom", IsFinal: true}
	waitTranscript(t, s, "call mom")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "call mom", res.Transcript)
}

func TestSession_FinalAfterStopWinsRace(t *testing.T) {
	speech := newFakeSpeech()
	speech.onStop = func(ev chan<- Event) {
		ev <- ResultEvent{Transcript: "  remind me to call mom  ", IsFinal: true}
		ev <- EndEvent{}
	}
	s := NewSession(&fakeMic{}, speech, Options{Transcribe: true, FinalizeTimeout: 5 * time.Second})
	require.NoError(t, s.Start(context.Background()))
	speech.events <- ResultEvent{Transcript: "remind me"}
	waitPreview(t, s, "remind me")
	assert.Empty(t, s.Transcript())

	start := time.Now()
	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, string(RaceEvent), res.Finalize)
	assert.Equal(t, "remind me to call mom", res.Transcript)
}

func TestSession_TrailingInterimIsDropped(t *testing.T) {
	speech := newFakeSpeech()
	s := NewSession(&fakeMic{}, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))
	speech.events <- ResultEvent{Transcript: "pick up the dry cleaning", IsFinal: true}
	waitTranscript(t, s, "pick up the dry cleaning")
	speech.events <- ResultEvent{Transcript: "and the"}
	waitPreview(t, s, "and the")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finalizeImmediate, res.Finalize)
	assert.Equal(t, "pick up the dry cleaning", res.Transcript)
	assert.False(t, res.NoSpeech)
}

func TestSession_StopNeverFailsOnRecognizerTimeout(t *testing.T) {
	speech := newFakeSpeech()
	s := NewSession(&fakeMic{}, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))
	speech.events <- ResultEvent{Transcript: "buy bre"}
	waitPreview(t, s, "buy bre")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(RaceTimeout), res.Finalize)
	assert.Empty(t, res.Transcript)
	assert.True(t, res.NoSpeech)
	assert.ErrorIs(t, res.Err(), ErrNoSpeechDetected)
}

func TestSession_StopWithCanceledContext(t *testing.T) {
	speech := newFakeSpeech()
	s := NewSession(&fakeMic{}, speech, Options{Transcribe: true, FinalizeTimeout: 5 * time.Second})
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(RaceCanceled), res.Finalize)
	assert.ErrorIs(t, res.Err(), ErrNoSpeechDetected)
}

func TestSession_BackendUnavailableFallsBackToTimeout(t *testing.T) {
	mic, speech := &fakeMic{}, newFakeSpeech()
	speech.startErr = errors.New("connection refused")
	s := NewSession(mic, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, speech.wasClosed())

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(RaceTimeout), res.Finalize)
	assert.Empty(t, res.Transcript)
	assert.True(t, res.NoSpeech)
	assert.ErrorIs(t, res.Err(), ErrNoSpeechDetected)
	assert.Equal(t, "/audio/rec.wav", res.AudioRef)
}

func TestSession_NoSpeechThreshold(t *testing.T) {
	tests := []struct {
		transcript string
		noSpeech   bool
	}{
		{"", true},
		{"  ok ", true},
		{"hey", false},
		{"buy milk", false},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			speech := newFakeSpeech()
			s := NewSession(&fakeMic{}, speech, transcribing())
			require.NoError(t, s.Start(context.Background()))
			speech.events <- ResultEvent{Transcript: tt.transcript, IsFinal: true}
			waitTranscript(t, s, tt.transcript)

			res, err := s.Stop(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.noSpeech, res.NoSpeech)
		})
	}
}

func TestSession_WithoutTranscription(t *testing.T) {
	speech := newFakeSpeech()
	s := NewSession(&fakeMic{}, speech, Options{FinalizeTimeout: 5 * time.Second})
	require.NoError(t, s.Start(context.Background()))

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, finalizeImmediate, res.Finalize)
	assert.True(t, res.NoSpeech)
	assert.False(t, speech.wasClosed())
}

func TestSession_InterimPreview(t *testing.T) {
	var (
		mu       sync.Mutex
		previews []string
	)
	speech := newFakeSpeech()
	opts := transcribing()
	opts.OnInterim = func(p string) {
		mu.Lock()
		previews = append(previews, p)
		mu.Unlock()
	}
	s := NewSession(&fakeMic{}, speech, opts)
	require.NoError(t, s.Start(context.Background()))

	speech.events <- StartEvent{}
	speech.events <- ResultEvent{Transcript: "buy"}
	speech.events <- ErrorEvent{Code: "network"}
	speech.events <- ResultEvent{Transcript: "buy bread"}
	waitPreview(t, s, "buy bread")
	assert.Empty(t, s.Transcript())

	require.NoError(t, s.Cancel())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"buy", "buy bread"}, previews)
}

func TestSession_Cancel(t *testing.T) {
	mic, speech := &fakeMic{}, newFakeSpeech()
	s := NewSession(mic, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))
	speech.events <- ResultEvent{Transcript: "secret plans", IsFinal: true}
	waitTranscript(t, s, "secret plans")

	require.NoError(t, s.Cancel())
	assert.Equal(t, StateCancelled, s.State())
	assert.True(t, mic.discarded)
	assert.False(t, mic.closed)
	assert.True(t, speech.wasClosed())
	assert.Empty(t, s.Transcript())

	_, err := s.Stop(context.Background())
	assert.ErrorIs(t, err, ErrSessionState)
	assert.NoError(t, s.Cancel())
}

func TestSession_StartErrors(t *testing.T) {
	mic, speech := &fakeMic{openErr: errors.New("device busy")}, newFakeSpeech()
	s := NewSession(mic, speech, transcribing())

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "device busy")
	assert.Equal(t, StateFailed, s.State())
	assert.False(t, speech.wasClosed())

	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionState)
}

func TestSession_MicCloseFailureReleasesBackend(t *testing.T) {
	mic, speech := &fakeMic{closeErr: errors.New("disk full")}, newFakeSpeech()
	s := NewSession(mic, speech, transcribing())
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, StateFailed, s.State())
	assert.True(t, speech.wasClosed())
}

func TestRecorder_SingleActiveSession(t *testing.T) {
	var mics []*fakeMic
	r := NewRecorder(func() (Microphone, error) {
		m := &fakeMic{}
		mics = append(mics, m)
		return m, nil
	}, func() SpeechBackend { return newFakeSpeech() }, transcribing())

	first, err := r.Start(context.Background())
	require.NoError(t, err)
	second, err := r.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, first.State())
	assert.True(t, mics[0].discarded)
	assert.Same(t, second, r.Active())

	res, err := r.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/audio/rec.wav", res.AudioRef)
	assert.Nil(t, r.Active())

	_, err = r.Stop(context.Background())
	assert.ErrorIs(t, err, ErrSessionState)
	assert.NoError(t, r.Cancel())
}

func TestRecorder_MicrophoneUnavailable(t *testing.T) {
	r := NewRecorder(func() (Microphone, error) {
		return nil, errors.New("no input device")
	}, nil, Options{})

	_, err := r.Start(context.Background())
	assert.ErrorIs(t, err, ErrMicrophoneUnavailable)
	assert.Nil(t, r.Active())
}

func TestFirstOf(t *testing.T) {
	closed := make(chan struct{})
	close(closed)
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		event <-chan struct{}
		want  RaceOutcome
	}{
		{"event first", context.Background(), closed, RaceEvent},
		{"timeout first", context.Background(), make(chan struct{}), RaceTimeout},
		{"nil event times out", context.Background(), nil, RaceTimeout},
		{"canceled", canceled, make(chan struct{}), RaceCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstOf(tt.ctx, 10*time.Millisecond, tt.event))
		})
	}
}

func TestFirstOf_EventDuringWait(t *testing.T) {
	event := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(event)
	}()
	assert.Equal(t, RaceEvent, FirstOf(context.Background(), time.Second, event))
}
