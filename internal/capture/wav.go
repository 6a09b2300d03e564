package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	bitDepth    = 16
	numChannels = 1
	pcmFormat   = 1
)

// FrameSource delivers little-endian PCM16 mono frames to onFrame until
// Stop returns. onFrame must not retain the slice.
type FrameSource interface {
	Start(onFrame func(pcm []byte)) error
	Stop() error
}

// WAVMicrophone records a FrameSource into a WAV file under Dir.
type WAVMicrophone struct {
	Dir        string
	SampleRate int
	Source     FrameSource
	// OnLevel receives the RMS level in [0,1] of each frame.
	OnLevel func(float64)

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	path    string
	samples int64
	format  *audio.Format
	open    bool
}

var _ Microphone = (*WAVMicrophone)(nil)

// Open creates the WAV file and starts the source.
func (m *WAVMicrophone) Open(ctx context.Context) error {
	if err := m.create(); err != nil {
		return err
	}
	// The source may deliver frames before Start returns, so it runs
	// without the lock held.
	if err := m.Source.Start(m.write); err != nil {
		m.mu.Lock()
		m.open = false
		m.file.Close()
		os.Remove(m.path)
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	return nil
}

func (m *WAVMicrophone) create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return errors.New("microphone already open")
	}
	if m.Source == nil {
		return ErrMicrophoneUnavailable
	}
	if m.SampleRate <= 0 {
		m.SampleRate = 16000
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	m.path = filepath.Join(m.Dir, fmt.Sprintf("rec_%s_%s.wav", time.Now().Format("20060102T150405"), uuid.NewString()[:8]))
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	m.file = f
	m.enc = wav.NewEncoder(f, m.SampleRate, bitDepth, numChannels, pcmFormat)
	m.format = &audio.Format{SampleRate: m.SampleRate, NumChannels: numChannels}
	m.samples = 0
	m.open = true
	return nil
}

func (m *WAVMicrophone) write(pcm []byte) {
	data := pcmToInts(pcm)
	if len(data) == 0 {
		return
	}

	m.mu.Lock()
	if m.open {
		if err := m.enc.Write(&audio.IntBuffer{Format: m.format, Data: data, SourceBitDepth: bitDepth}); err == nil {
			m.samples += int64(len(data))
		}
	}
	m.mu.Unlock()

	if m.OnLevel != nil {
		m.OnLevel(rms(data))
	}
}

// Close stops the source and finalizes the WAV header.
func (m *WAVMicrophone) Close() (Recording, error) {
	if err := m.stopSource(); err != nil {
		return Recording{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return Recording{}, errors.New("microphone not open")
	}
	m.open = false

	encErr := m.enc.Close()
	fileErr := m.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return Recording{}, fmt.Errorf("finalize wav: %w", err)
	}
	return Recording{
		AudioRef: m.path,
		Duration: time.Duration(m.samples) * time.Second / time.Duration(m.SampleRate),
	}, nil
}

// Discard stops the source and deletes the file.
func (m *WAVMicrophone) Discard() error {
	stopErr := m.stopSource()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return stopErr
	}
	m.open = false
	m.enc.Close()
	m.file.Close()
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(stopErr, fmt.Errorf("remove recording: %w", err))
	}
	return stopErr
}

func (m *WAVMicrophone) stopSource() error {
	if m.Source == nil {
		return nil
	}
	if err := m.Source.Stop(); err != nil {
		return fmt.Errorf("stop audio source: %w", err)
	}
	return nil
}

func pcmToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

func rms(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}
