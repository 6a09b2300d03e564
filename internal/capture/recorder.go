package capture

import (
	"context"
	"fmt"
	"sync"
)

// Recorder runs at most one recording at a time. Starting a new one
// cancels the previous one first.
type Recorder struct {
	newMic    func() (Microphone, error)
	newSpeech func() SpeechBackend
	opts      Options
	sopts     []SessionOption

	mu     sync.Mutex
	active *Session
}

// NewRecorder returns a Recorder. newSpeech may be nil to record without
// live transcription.
func NewRecorder(newMic func() (Microphone, error), newSpeech func() SpeechBackend, opts Options, sopts ...SessionOption) *Recorder {
	return &Recorder{
		newMic:    newMic,
		newSpeech: newSpeech,
		opts:      opts,
		sopts:     sopts,
	}
}

// Start begins a new session, cancelling any session still recording.
func (r *Recorder) Start(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		if err := r.active.Cancel(); err != nil {
			return nil, fmt.Errorf("cancel previous session: %w", err)
		}
		r.active = nil
	}

	mic, err := r.newMic()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	var speech SpeechBackend
	opts := r.opts
	if r.newSpeech != nil {
		speech = r.newSpeech()
	} else {
		opts.Transcribe = false
	}

	s := NewSession(mic, speech, opts, r.sopts...)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	r.active = s
	return s, nil
}

// Stop finalizes the active session.
func (r *Recorder) Stop(ctx context.Context) (Result, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return Result{}, fmt.Errorf("%w: no active session", ErrSessionState)
	}
	return s.Stop(ctx)
}

// Cancel discards the active session, if any.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Cancel()
}

// Active returns the recording session, or nil.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
