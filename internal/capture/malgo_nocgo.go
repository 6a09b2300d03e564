//go:build !cgo

package capture

import "go.uber.org/zap"

// MalgoSource is unavailable without cgo.
type MalgoSource struct{}

var _ FrameSource = (*MalgoSource)(nil)

// NewMalgoSource returns a source that always fails to start.
func NewMalgoSource(int, *zap.Logger) *MalgoSource {
	return &MalgoSource{}
}

// Start returns ErrMicrophoneUnavailable.
func (*MalgoSource) Start(func([]byte)) error {
	return ErrMicrophoneUnavailable
}

// Stop is a no-op.
func (*MalgoSource) Stop() error { return nil }
