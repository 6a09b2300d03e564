package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrTranscriptionUnavailable means the speech backend could not be reached.
var ErrTranscriptionUnavailable = errors.New("transcription backend unavailable")

// ErrInvalidEvent is returned by DecodeEvent for a malformed line.
var ErrInvalidEvent = errors.New("invalid speech event")

// SpeechOptions configures a streaming recognition run.
type SpeechOptions struct {
	Lang           string `json:"lang"`
	InterimResults bool   `json:"interimResults"`
	Continuous     bool   `json:"continuous"`
}

// SpeechBackend is a streaming recognizer. The channel returned by Start is
// closed once the backend is closed or the stream ends.
type SpeechBackend interface {
	Start(ctx context.Context, opts SpeechOptions) (<-chan Event, error)
	Stop() error
	Close() error
}

// Event is one of StartEvent, ResultEvent, ErrorEvent or EndEvent.
type Event interface {
	eventKind() string
}

// StartEvent reports that recognition began.
type StartEvent struct{}

// ResultEvent carries a hypothesis. Interim hypotheses replace each other;
// a final one commits.
type ResultEvent struct {
	Transcript string
	IsFinal    bool
}

// ErrorEvent reports a recognizer error code.
type ErrorEvent struct {
	Code    string
	Message string
}

// EndEvent reports that recognition stopped.
type EndEvent struct{}

func (StartEvent) eventKind() string  { return "start" }
func (ResultEvent) eventKind() string { return "result" }
func (ErrorEvent) eventKind() string  { return "error" }
func (EndEvent) eventKind() string    { return "end" }

// DecodeEvent parses one NDJSON line from a recognizer. Unknown types and
// missing or mistyped fields are rejected.
func DecodeEvent(line []byte) (Event, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidEvent)
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidEvent)
	}

	typ := doc.Get("type")
	if typ.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}

	switch typ.Str {
	case "start":
		return StartEvent{}, nil
	case "end":
		return EndEvent{}, nil
	case "result":
		transcript := doc.Get("transcript")
		if transcript.Type != gjson.String {
			return nil, fmt.Errorf("%w: result without transcript", ErrInvalidEvent)
		}
		final := doc.Get("isFinal")
		if final.Type != gjson.True && final.Type != gjson.False {
			return nil, fmt.Errorf("%w: result without isFinal", ErrInvalidEvent)
		}
		return ResultEvent{Transcript: transcript.Str, IsFinal: final.Bool()}, nil
	case "error":
		code := doc.Get("code")
		if !code.Exists() || code.String() == "" {
			return nil, fmt.Errorf("%w: error without code", ErrInvalidEvent)
		}
		return ErrorEvent{Code: code.String(), Message: doc.Get("message").String()}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, typ.Str)
}
