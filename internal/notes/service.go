// Package notes turns transcripts into persisted entities.
//
// Service is the single entry point for both recorded and typed notes: it
// extracts entities, saves the voice note and then each entity in order,
// and applies completion matches that clear the confidence threshold.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/logging"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// MinTextLength is the shortest accepted typed note.
const MinTextLength = 3

var (
	// ErrPersistence wraps any store failure that abandons a note.
	ErrPersistence = errors.New("persistence failure")
	// ErrTextTooShort rejects typed notes under MinTextLength characters.
	ErrTextTooShort = errors.New("text too short")
)

// Store is the persistence the pipeline needs.
type Store interface {
	CreateVoiceNote(ctx context.Context, v entity.VoiceNote) error
	Create(ctx context.Context, e entity.Entity) error
	MarkComplete(ctx context.Context, id string) error
	QueryActive(ctx context.Context) ([]entity.Entity, error)
}

// Extractor classifies a transcript.
type Extractor interface {
	Extract(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error)
	Mode() extraction.Mode
}

// Input is one transcript to process.
type Input struct {
	Transcript string
	AudioRef   string
	Duration   time.Duration
}

// Outcome reports what a processed note produced.
type Outcome struct {
	VoiceNote entity.VoiceNote         `json:"voiceNote"`
	Entities  []entity.Entity          `json:"entities"`
	Completed []entity.CompletionMatch `json:"completed"`
	// Suggested holds matches below the threshold, or ones the store
	// refused, for the caller to confirm by hand.
	Suggested []entity.CompletionMatch `json:"suggested,omitempty"`
	Summary   string                   `json:"summary"`
	Strategy  entity.Strategy          `json:"strategy"`
}

// Service runs the capture pipeline.
type Service struct {
	store     Store
	extractor Extractor
	fallback  Extractor
	logger    *zap.Logger
	now       func() time.Time
	threshold float64
}

// Option configures a Service.
type Option func(*Service)

// WithFallback sets the extractor used when a remote extraction fails.
func WithFallback(e Extractor) Option {
	return func(s *Service) { s.fallback = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCompletionThreshold sets the minimum confidence for applying a
// completion. Values outside (0,1] are ignored.
func WithCompletionThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// NewService returns a pipeline over st and ex.
func NewService(st Store, ex Extractor, opts ...Option) *Service {
	s := &Service{
		store:     st,
		extractor: ex,
		logger:    zap.NewNop(),
		now:       time.Now,
		threshold: extraction.CompletionThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessCapture processes a finished recording.
func (s *Service) ProcessCapture(ctx context.Context, res capture.Result) (Outcome, error) {
	if err := res.Err(); err != nil {
		return Outcome{}, err
	}
	return s.ProcessTranscript(ctx, Input{
		Transcript: res.Transcript,
		AudioRef:   res.AudioRef,
		Duration:   res.Duration,
	})
}

// ProcessText processes a typed note through the same pipeline as a
// recording.
func (s *Service) ProcessText(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinTextLength {
		return Outcome{}, fmt.Errorf("%w: need at least %d characters", ErrTextTooShort, MinTextLength)
	}
	return s.ProcessTranscript(ctx, Input{Transcript: text})
}

// ProcessTranscript extracts and persists in.Transcript. The voice note is
// saved before its entities. A store failure abandons the note and returns
// ErrPersistence.
func (s *Service) ProcessTranscript(ctx context.Context, in Input) (Outcome, error) {
	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		return Outcome{}, capture.ErrNoSpeechDetected
	}
	now := s.now()

	active, err := s.store.QueryActive(ctx)
	if err != nil {
		s.logger.Warn("loading active entities failed, completions disabled", zap.Error(err))
		active = nil
	}

	result, err := s.extract(ctx, transcript, active)
	if err != nil {
		return Outcome{}, err
	}

	vn := entity.VoiceNote{
		ID:         entity.NewVoiceNoteID(now),
		Transcript: transcript,
		AudioRef:   in.AudioRef,
		DurationMs: in.Duration.Milliseconds(),
		CreatedAt:  now,
	}
	ctx = logging.WithVoiceNoteID(ctx, vn.ID)
	log := s.logger.With(logging.ContextFields(ctx)...)

	if err := s.store.CreateVoiceNote(ctx, vn); err != nil {
		log.Error("saving voice note failed", zap.Error(err))
		return Outcome{}, fmt.Errorf("%w: save voice note: %v", ErrPersistence, err)
	}

	out := Outcome{
		VoiceNote: vn,
		Summary:   result.Summary,
		Strategy:  result.Strategy,
	}
	for _, x := range result.Entities {
		e := entity.FromExtracted(x, now)
		e.RawTranscript = transcript
		e.VoiceNoteID = vn.ID
		if err := s.store.Create(ctx, e); err != nil {
			log.Error("saving entity failed", zap.String("type", string(e.Type)), zap.Error(err))
			return Outcome{}, fmt.Errorf("%w: save %s entity: %v", ErrPersistence, e.Type, err)
		}
		out.Entities = append(out.Entities, e)
	}

	for _, c := range result.Completions {
		if c.Confidence < s.threshold {
			out.Suggested = append(out.Suggested, c)
			continue
		}
		if err := s.store.MarkComplete(ctx, c.EntityID); err != nil {
			log.Warn("applying completion failed",
				zap.String("entity_id", c.EntityID),
				zap.Float64("confidence", c.Confidence),
				zap.Error(err))
			if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidTransition) {
				out.Suggested = append(out.Suggested, c)
			}
			continue
		}
		out.Completed = append(out.Completed, c)
	}

	log.Info("note processed",
		zap.String("strategy", string(result.Strategy)),
		zap.Int("entities", len(out.Entities)),
		zap.Int("completed", len(out.Completed)))
	return out, nil
}

func (s *Service) extract(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error) {
	result, err := s.extractor.Extract(ctx, transcript, active)
	if err == nil {
		return result, nil
	}
	// Only unparseable model output falls back. Auth and network failures
	// must reach the user.
	if s.fallback == nil || !errors.Is(err, extraction.ErrNoExtraction) {
		return entity.ExtractionResult{}, fmt.Errorf("extract: %w", err)
	}
	s.logger.Warn("extraction failed, falling back",
		zap.String("mode", string(s.extractor.Mode())),
		zap.String("fallback", string(s.fallback.Mode())),
		zap.Error(err))
	result, ferr := s.fallback.Extract(ctx, transcript, active)
	if ferr != nil {
		return entity.ExtractionResult{}, fmt.Errorf("extract: %w", errors.Join(err, ferr))
	}
	return result, nil
}
