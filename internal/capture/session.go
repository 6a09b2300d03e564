// Package capture records a voice note and finalizes its live transcript.
//
// A Session owns a Microphone and an optional streaming SpeechBackend. When
// stopped it settles the transcript by racing the backend's end of stream
// against a bounded timeout, so a silent or stuck recognizer can delay Stop
// by at most FinalizeTimeout and never makes it fail.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/logging"
)

// DefaultFinalizeTimeout bounds the wait for a final transcript after Stop.
const DefaultFinalizeTimeout = 2000 * time.Millisecond

// MinTranscriptLength is the shortest transcript treated as speech.
const MinTranscriptLength = 3

var (
	// ErrNoSpeechDetected means the finalized transcript was too short. The
	// caller should offer manual text entry.
	ErrNoSpeechDetected = errors.New("no speech detected")
	// ErrMicrophoneUnavailable means no input device could be opened.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrSessionState is returned for an operation the current state forbids.
	ErrSessionState = errors.New("invalid session state")
)

// State is a session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Recording is what a closed microphone produced.
type Recording struct {
	AudioRef string
	Duration time.Duration
}

// Microphone is an exclusive audio input. Close and Discard release it;
// Discard also deletes what was recorded.
type Microphone interface {
	Open(ctx context.Context) error
	Close() (Recording, error)
	Discard() error
}

// Options configures a session.
type Options struct {
	// Transcribe starts the speech backend alongside the microphone.
	Transcribe      bool
	Lang            string
	FinalizeTimeout time.Duration
	// OnInterim receives the best transcript so far for live preview.
	OnInterim func(string)
}

// Result is a finalized capture.
type Result struct {
	AudioRef   string        `json:"audioRef"`
	Duration   time.Duration `json:"duration"`
	Transcript string        `json:"transcript"`
	NoSpeech   bool          `json:"noSpeech"`
	// Finalize records how the transcript settled: immediately from a
	// pending final, by the backend, by timeout, or by cancellation.
	Finalize string `json:"finalize"`
}

// Err returns ErrNoSpeechDetected when the transcript was too short.
func (r Result) Err() error {
	if r.NoSpeech {
		return ErrNoSpeechDetected
	}
	return nil
}

const finalizeImmediate = "immediate"

// Session is one recording. It is not reusable.
type Session struct {
	id      string
	mic     Microphone
	speech  SpeechBackend
	opts    Options
	logger  *zap.Logger
	metrics *Metrics

	mu           sync.Mutex
	state        State
	started      time.Time
	accumulator  string
	pendingFinal string
	interim      string
	hasFinal     bool
	lastErrCode  string
	backendLive  bool

	settled    chan struct{}
	settleOnce sync.Once
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets session metrics.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession returns an idle session. speech may be nil.
func NewSession(mic Microphone, speech SpeechBackend, opts Options, sopts ...SessionOption) *Session {
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if opts.Lang == "" {
		opts.Lang = "en-US"
	}
	s := &Session{
		id:      uuid.NewString(),
		mic:     mic,
		speech:  speech,
		opts:    opts,
		logger:  zap.NewNop(),
		state:   StateIdle,
		settled: make(chan struct{}),
	}
	for _, opt := range sopts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("capture.session_id", s.id))
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Preview returns the latest hypothesis, interim or final, for display.
func (s *Session) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interim != "" {
		return s.interim
	}
	return s.accumulator
}

// Transcript returns the committed transcript so far. Interim hypotheses
// are never part of it.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasFinal {
		return s.pendingFinal
	}
	return s.accumulator
}

// Start opens the microphone and, if requested, the speech backend. An
// unreachable backend is logged and recording continues without it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrSessionState, st)
	}
	s.mu.Unlock()

	ctx = logging.WithCaptureSessionID(ctx, s.id)
	if err := s.mic.Open(ctx); err != nil {
		s.setState(StateFailed)
		s.metrics.RecordSession(ctx, StateFailed)
		return fmt.Errorf("open microphone: %w", err)
	}

	if s.opts.Transcribe && s.speech != nil {
		s.startSpeech(ctx)
	}

	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		s.releaseSpeech()
		if err := s.mic.Discard(); err != nil {
			s.logger.Debug("discard recording", zap.Error(err))
		}
		return fmt.Errorf("%w: cancelled while starting", ErrSessionState)
	}
	s.state = StateRecording
	s.started = time.Now()
	s.mu.Unlock()
	s.logger.Info("recording started", zap.Bool("transcribing", s.backendLive))
	return nil
}

func (s *Session) startSpeech(ctx context.Context) {
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := s.speech.Start(pumpCtx, SpeechOptions{
		Lang:           s.opts.Lang,
		InterimResults: true,
		Continuous:     true,
	})
	if err != nil {
		cancel()
		s.logger.Warn("speech backend unavailable, transcript will settle by timeout",
			zap.Error(fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)))
		if cerr := s.speech.Close(); cerr != nil {
			s.logger.Debug("close speech backend", zap.Error(cerr))
		}
		return
	}

	s.backendLive = true
	s.pumpCancel = cancel
	s.pumpDone = make(chan struct{})
	go s.pump(pumpCtx, events)
}

func (s *Session) pump(ctx context.Context, events <-chan Event) {
	defer close(s.pumpDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.settle()
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	switch ev := ev.(type) {
	case StartEvent:
		s.logger.Debug("recognition started")
	case ResultEvent:
		s.mu.Lock()
		if ev.IsFinal {
			s.pendingFinal = ev.Transcript
			s.hasFinal = true
			s.accumulator = ev.Transcript
			s.interim = ""
		} else {
			s.interim = ev.Transcript
		}
		s.mu.Unlock()
		if s.opts.OnInterim != nil {
			s.opts.OnInterim(ev.Transcript)
		}
		if ev.IsFinal {
			s.settle()
		}
	case ErrorEvent:
		s.mu.Lock()
		s.lastErrCode = ev.Code
		s.mu.Unlock()
		s.logger.Warn("recognizer error", zap.String("code", ev.Code), zap.String("message", ev.Message))
	case EndEvent:
		s.settle()
	}
}

func (s *Session) settle() {
	s.settleOnce.Do(func() { close(s.settled) })
}

// Stop ends the recording and settles the transcript. The microphone is
// released first. A recognizer that never finishes only delays Stop by the
// finalize timeout.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		st := s.state
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: stop from %s", ErrSessionState, st)
	}
	s.state = StateFinalizing
	hasFinal := s.hasFinal
	s.mu.Unlock()

	ctx = logging.WithCaptureSessionID(ctx, s.id)
	start := time.Now()

	rec, micErr := s.mic.Close()

	outcome := finalizeImmediate
	switch {
	case hasFinal:
		s.stopSpeech()
	case s.opts.Transcribe && s.speech != nil:
		s.stopSpeech()
		outcome = string(FirstOf(ctx, s.opts.FinalizeTimeout, s.settled))
	}
	s.releaseSpeech()

	if micErr != nil {
		s.setState(StateFailed)
		s.metrics.RecordSession(ctx, StateFailed)
		return Result{}, fmt.Errorf("close microphone: %w", micErr)
	}

	s.mu.Lock()
	transcript := s.accumulator
	if s.hasFinal {
		transcript = s.pendingFinal
	}
	s.state = StateCompleted
	s.mu.Unlock()

	res := Result{
		AudioRef:   rec.AudioRef,
		Duration:   rec.Duration,
		Transcript: strings.TrimSpace(transcript),
		Finalize:   outcome,
	}
	res.NoSpeech = len([]rune(res.Transcript)) < MinTranscriptLength

	s.metrics.RecordFinalize(ctx, outcome, time.Since(start))
	s.metrics.RecordSession(ctx, StateCompleted)
	if res.NoSpeech {
		s.metrics.RecordNoSpeech(ctx)
	}
	s.logger.Info("recording stopped",
		zap.String("finalize", outcome),
		zap.Duration("duration", res.Duration),
		zap.Int("transcript_len", len(res.Transcript)),
		zap.Bool("no_speech", res.NoSpeech))
	return res, nil
}

// Cancel discards the recording and transcript. It is a no-op on a
// session that already finished.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateRecording && s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	wasRecording := s.state == StateRecording
	s.state = StateCancelled
	s.accumulator = ""
	s.pendingFinal = ""
	s.interim = ""
	s.hasFinal = false
	s.mu.Unlock()

	if !wasRecording {
		return nil
	}
	s.stopSpeech()
	s.releaseSpeech()
	err := s.mic.Discard()
	s.metrics.RecordSession(context.Background(), StateCancelled)
	s.logger.Info("recording cancelled")
	if err != nil {
		return fmt.Errorf("discard recording: %w", err)
	}
	return nil
}

func (s *Session) stopSpeech() {
	if !s.backendLive {
		return
	}
	if err := s.speech.Stop(); err != nil {
		s.logger.Debug("stop speech backend", zap.Error(err))
	}
}

// releaseSpeech closes the backend and waits for the event pump to exit.
func (s *Session) releaseSpeech() {
	if !s.backendLive {
		return
	}
	s.backendLive = false
	if err := s.speech.Close(); err != nil {
		s.logger.Debug("close speech backend", zap.Error(err))
	}
	s.pumpCancel()
	<-s.pumpDone
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
