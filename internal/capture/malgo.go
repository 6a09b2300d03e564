//go:build cgo

package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// MalgoSource captures PCM16 mono frames from the default input device.
type MalgoSource struct {
	sampleRate int
	logger     *zap.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

var _ FrameSource = (*MalgoSource)(nil)

// NewMalgoSource returns a source for the default capture device.
func NewMalgoSource(sampleRate int, logger *zap.Logger) *MalgoSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MalgoSource{sampleRate: sampleRate, logger: logger}
}

// Start opens the device and begins delivering frames.
func (m *MalgoSource) Start(onFrame func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return errors.New("capture device already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("malgo", zap.String("message", message))
	})
	if err != nil {
		return fmt.Errorf("%w: init audio context: %v", ErrMicrophoneUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = numChannels
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onFrame(input)
		},
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: init capture device: %v", ErrMicrophoneUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: start capture device: %v", ErrMicrophoneUnavailable, err)
	}

	m.ctx = ctx
	m.device = device
	return nil
}

// Stop stops the device. No frames are delivered after it returns.
func (m *MalgoSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	if uerr := m.ctx.Uninit(); uerr != nil && err == nil {
		err = uerr
	}
	m.ctx.Free()
	m.ctx = nil
	return err
}
