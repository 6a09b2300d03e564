// Package config provides configuration loading for voxnotes.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then VOXNOTES_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Extraction modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeHybrid = "hybrid"
)

// Cloud providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds the complete voxnotes configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Extraction    ExtractionConfig    `koanf:"extraction"`
	Cloud         CloudConfig         `koanf:"cloud"`
	Model         ModelConfig         `koanf:"model"`
	Capture       CaptureConfig       `koanf:"capture"`
	Store         StoreConfig         `koanf:"store"`
	Inbox         InboxConfig         `koanf:"inbox"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects level and encoding for the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Insecure        bool   `koanf:"insecure"`
}

// ExtractionConfig controls strategy arbitration.
type ExtractionConfig struct {
	Mode string `koanf:"mode"`
	// ActiveWindow is how many recent active entities are offered for
	// completion matching.
	ActiveWindow        int     `koanf:"active_window"`
	CompletionThreshold float64 `koanf:"completion_threshold"`
}

// CloudConfig configures the remote model fallback.
type CloudConfig struct {
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
	CacheTTL Duration `koanf:"cache_ttl"`
}

// Enabled reports whether a cloud backend can be constructed.
func (c CloudConfig) Enabled() bool {
	return c.APIKey.IsSet()
}

// ModelConfig configures the on-device model.
type ModelConfig struct {
	URL         string `koanf:"url"`
	Dir         string `koanf:"dir"`
	File        string `koanf:"file"`
	RuntimeBin  string `koanf:"runtime_bin"`
	ContextSize int    `koanf:"context_size"`
	BatchSize   int    `koanf:"batch_size"`
	Threads     int    `koanf:"threads"`
	AutoInit    bool   `koanf:"auto_init"`
}

// CaptureConfig configures recording and live transcription.
type CaptureConfig struct {
	FinalizeTimeout Duration `koanf:"finalize_timeout"`
	AudioDir        string   `koanf:"audio_dir"`
	SpeechSocket    string   `koanf:"speech_socket"`
	Lang            string   `koanf:"lang"`
	SampleRate      int      `koanf:"sample_rate"`
}

// StoreConfig locates the entity database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// InboxConfig configures the transcript drop folder.
type InboxConfig struct {
	Dir string `koanf:"dir"`
}

// Default returns configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName: "voxnotes",
			Endpoint:    "localhost:4318",
			Insecure:    true,
		},
		Extraction: ExtractionConfig{
			Mode:                ModeHybrid,
			ActiveWindow:        20,
			CompletionThreshold: 0.7,
		},
		Cloud: CloudConfig{
			Provider: ProviderAnthropic,
			Model:    "claude-3-haiku-20240307",
			Timeout:  Duration(30 * time.Second),
			CacheTTL: Duration(10 * time.Minute),
		},
		Model: ModelConfig{
			URL:         "https://huggingface.co/Qwen/Qwen2.5-0.5B-Instruct-GGUF/resolve/main/qwen2.5-0.5b-instruct-q4_k_m.gguf",
			Dir:         "~/.local/share/voxnotes/models",
			File:        "qwen2.5-0.5b-instruct-q4_k_m.gguf",
			RuntimeBin:  "llama-cli",
			ContextSize: 2048,
			BatchSize:   512,
			Threads:     4,
		},
		Capture: CaptureConfig{
			FinalizeTimeout: Duration(2000 * time.Millisecond),
			AudioDir:        "~/.local/share/voxnotes/audio",
			SpeechSocket:    "/tmp/voxnotes-speech.sock",
			Lang:            "en-US",
			SampleRate:      16000,
		},
		Store: StoreConfig{
			Path: "~/.local/share/voxnotes/voxnotes.db",
		},
		Inbox: InboxConfig{
			Dir: "~/.local/share/voxnotes/inbox",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Extraction.Mode) {
	case ModeLocal, ModeRemote, ModeHybrid:
	default:
		return fmt.Errorf("extraction mode must be local, remote or hybrid, got %q", c.Extraction.Mode)
	}
	if c.Extraction.Mode == ModeRemote && !c.Cloud.Enabled() {
		return errors.New("extraction mode remote requires cloud.api_key")
	}
	if c.Extraction.ActiveWindow <= 0 {
		return fmt.Errorf("extraction active window must be positive, got %d", c.Extraction.ActiveWindow)
	}
	if c.Extraction.CompletionThreshold < 0 || c.Extraction.CompletionThreshold > 1 {
		return fmt.Errorf("completion threshold must be within [0,1], got %v", c.Extraction.CompletionThreshold)
	}
	switch c.Cloud.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("cloud provider must be anthropic or openai, got %q", c.Cloud.Provider)
	}
	if c.Model.ContextSize <= 0 || c.Model.BatchSize <= 0 || c.Model.Threads <= 0 {
		return errors.New("model context_size, batch_size and threads must be positive")
	}
	if strings.ContainsAny(c.Model.Dir+c.Model.File, " \t") {
		return errors.New("model path must not contain whitespace")
	}
	if c.Capture.FinalizeTimeout.Duration() <= 0 {
		return errors.New("capture finalize timeout must be positive")
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture sample rate must be positive, got %d", c.Capture.SampleRate)
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	return nil
}
