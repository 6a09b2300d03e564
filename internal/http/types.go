package http

import (
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// CreateNoteRequest is the request body for POST /api/v1/notes.
type CreateNoteRequest struct {
	Text string `json:"text"`
}

// EntitiesResponse wraps entity listings.
type EntitiesResponse struct {
	Entities []entity.Entity `json:"entities"`
	Count    int             `json:"count"`
}

// VoiceNotesResponse is the response body for GET /api/v1/voice-notes.
type VoiceNotesResponse struct {
	VoiceNotes []entity.VoiceNote `json:"voiceNotes"`
	Count      int                `json:"count"`
}

// ErrorResponse carries the user-facing message for a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func entitiesResponse(es []entity.Entity) EntitiesResponse {
	if es == nil {
		es = []entity.Entity{}
	}
	return EntitiesResponse{Entities: es, Count: len(es)}
}
