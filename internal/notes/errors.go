package notes

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// UserMessage maps a pipeline error to the one line shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, capture.ErrNoSpeechDetected):
		return "No speech detected. Try again or type your note instead."
	case errors.Is(err, ErrTextTooShort):
		return "Please enter at least 3 characters."
	case errors.Is(err, capture.ErrMicrophoneUnavailable):
		return "The microphone is unavailable. You can type your note instead."
	case errors.Is(err, ErrPersistence):
		return "Your note could not be saved. Please try again."
	case errors.Is(err, store.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, store.ErrInvalidTransition):
		return "That item is already completed or cancelled."
	case errors.Is(err, ondevice.ErrModelDownloadFailed):
		return "The on-device model could not be downloaded. Check your connection and retry."
	case errors.Is(err, ondevice.ErrNotReady):
		return "The on-device model is not ready yet."
	case errors.Is(err, extraction.ErrCloudAuth):
		return "The cloud model rejected the API key. Check cloud.api_key."
	case errors.Is(err, extraction.ErrCloudUnavailable):
		return "Cloud extraction is not configured."
	case errors.Is(err, extraction.ErrNoExtraction):
		return "The note could not be understood. Try rephrasing it."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Processing took too long. Please try again."
	}
	return "Something went wrong while processing your note."
}
