// Package ondevice runs a small language model on the local machine.
//
// The Service downloads a GGUF model once (resuming partial downloads),
// then drives a llama.cpp style runtime binary through langchaingo's local
// LLM adapter. Initialization is a singleton task: concurrent callers join
// the attempt already in flight, and Status never blocks on it.
package ondevice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
)

var (
	// ErrModelDownloadFailed wraps any failure fetching the model file.
	ErrModelDownloadFailed = errors.New("model download failed")
	// ErrNotReady is returned by Completion before Initialize succeeds.
	ErrNotReady = errors.New("on-device model not initialized")
	// ErrBusy is returned by Reset while initialization is running.
	ErrBusy = errors.New("on-device model initialization in progress")
)

// Config locates the model and sizes the runtime.
type Config struct {
	URL         string
	Dir         string
	File        string
	RuntimeBin  string
	ContextSize int
	BatchSize   int
	Threads     int
}

// ConfigFrom converts application config, expanding a leading ~ in Dir.
func ConfigFrom(c config.ModelConfig) (Config, error) {
	dir, err := config.ExpandPath(c.Dir)
	if err != nil {
		return Config{}, fmt.Errorf("model dir: %w", err)
	}
	return Config{
		URL:         c.URL,
		Dir:         dir,
		File:        c.File,
		RuntimeBin:  c.RuntimeBin,
		ContextSize: c.ContextSize,
		BatchSize:   c.BatchSize,
		Threads:     c.Threads,
	}, nil
}

// ModelPath is where the downloaded model lives.
func (c Config) ModelPath() string {
	return filepath.Join(c.Dir, c.File)
}

// SamplingParams controls one completion.
type SamplingParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// DefaultSampling favors precise, short JSON output.
func DefaultSampling() SamplingParams {
	return SamplingParams{
		MaxTokens:   512,
		Temperature: 0.1,
		TopP:        0.95,
		Stop:        []string{"</s>", "<|im_end|>", "```"},
	}
}

// Status is a point-in-time view of the service.
type Status struct {
	Ready            bool    `json:"ready"`
	Initializing     bool    `json:"initializing"`
	DownloadProgress float64 `json:"downloadProgress"`
	Error            string  `json:"error,omitempty"`
	ModelPath        string  `json:"modelPath,omitempty"`
}

// Service owns the on-device model lifecycle.
type Service struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
	factory    ModelFactory

	mu           sync.Mutex
	ready        bool
	initializing bool
	progress     float64
	lastErr      error
	inflight     chan struct{}

	// genMu serializes completions; the runtime holds one context.
	genMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithModelFactory replaces the runtime constructor.
func WithModelFactory(f ModelFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns an uninitialized service.
func NewService(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 0},
		factory:    LocalRuntime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize downloads the model if needed and verifies the runtime. It is
// idempotent: a ready service returns nil at once, and a caller arriving
// while another initialization runs waits for that attempt's outcome.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	if s.initializing {
		done := s.inflight
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastErr
	}
	s.initializing = true
	s.progress = 0
	s.lastErr = nil
	s.inflight = make(chan struct{})
	done := s.inflight
	s.mu.Unlock()

	start := time.Now()
	err := s.initialize(ctx)

	s.mu.Lock()
	s.initializing = false
	s.ready = err == nil
	s.lastErr = err
	close(done)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("on-device model initialization failed", zap.Error(err))
		return err
	}
	s.logger.Info("on-device model ready",
		zap.String("model", s.cfg.ModelPath()),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) initialize(ctx context.Context) error {
	path, err := s.Download(ctx, func(p float64) {
		s.mu.Lock()
		s.progress = p
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	if _, err := s.factory(s.runtimeSpec(path, DefaultSampling())); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	return nil
}

// Ready reports whether completions can run.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Path is where the model file is or will be downloaded.
func (s *Service) Path() string {
	return s.cfg.ModelPath()
}

// Status returns the current state without waiting on initialization.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Ready:            s.ready,
		Initializing:     s.initializing,
		DownloadProgress: s.progress,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	if s.ready {
		st.ModelPath = s.cfg.ModelPath()
	}
	return st
}

// Reset tears the model down and deletes the downloaded file so the next
// Initialize fetches it again.
func (s *Service) Reset() error {
	s.mu.Lock()
	if s.initializing {
		s.mu.Unlock()
		return ErrBusy
	}
	// New completions see ErrNotReady while Reset waits out the one running.
	s.ready = false
	s.mu.Unlock()

	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initializing {
		return ErrBusy
	}

	for _, p := range []string{s.cfg.ModelPath(), s.cfg.ModelPath() + partSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	s.ready = false
	s.progress = 0
	s.lastErr = nil
	s.logger.Info("on-device model reset")
	return nil
}

// Completion runs prompt through the model and truncates the output at the
// first stop sequence.
func (s *Service) Completion(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	if !s.Ready() {
		return "", ErrNotReady
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	model, err := s.factory(s.runtimeSpec(s.cfg.ModelPath(), params))
	if err != nil {
		return "", fmt.Errorf("start runtime: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, model, prompt,
		llms.WithMaxTokens(params.MaxTokens),
		llms.WithTemperature(params.Temperature),
		llms.WithTopP(params.TopP),
		llms.WithStopWords(params.Stop),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return applyStop(out, params.Stop), nil
}

// Generate is Completion with DefaultSampling.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	return s.Completion(ctx, prompt, DefaultSampling())
}

func (s *Service) runtimeSpec(modelPath string, params SamplingParams) RuntimeSpec {
	return RuntimeSpec{
		Bin:         s.cfg.RuntimeBin,
		ModelPath:   modelPath,
		ContextSize: s.cfg.ContextSize,
		BatchSize:   s.cfg.BatchSize,
		Threads:     s.cfg.Threads,
		Sampling:    params,
	}
}

// applyStop cuts out at the earliest stop sequence. A stop sequence at the
// very start (such as an opening code fence) is skipped so the fenced body
// survives.
func applyStop(out string, stop []string) string {
	trimmed := strings.TrimSpace(out)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(trimmed, fence) {
			trimmed = strings.TrimSpace(trimmed[len(fence):])
			break
		}
	}
	cut := len(trimmed)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(trimmed, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(trimmed[:cut])
}
