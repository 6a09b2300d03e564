package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir for the duration of the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "voxnotes")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("", false)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, ModeHybrid, cfg.Extraction.Mode)
	assert.Equal(t, 2000*time.Millisecond, cfg.Capture.FinalizeTimeout.Duration())
	assert.Equal(t, 0.7, cfg.Extraction.CompletionThreshold)
	assert.Equal(t, 20, cfg.Extraction.ActiveWindow)
	assert.Equal(t, 2048, cfg.Model.ContextSize)
	assert.Equal(t, 512, cfg.Model.BatchSize)
	assert.Equal(t, 4, cfg.Model.Threads)
	assert.False(t, cfg.Cloud.Enabled())
}

func TestLoad_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `server:
  port: 8088
extraction:
  mode: LOCAL
capture:
  finalize_timeout: 1500ms
cloud:
  provider: openai
  api_key: sk-test-value
`, 0600)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, ModeLocal, cfg.Extraction.Mode)
	assert.Equal(t, 1500*time.Millisecond, cfg.Capture.FinalizeTimeout.Duration())
	assert.Equal(t, ProviderOpenAI, cfg.Cloud.Provider)
	assert.Equal(t, "sk-test-value", cfg.Cloud.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Cloud.APIKey.String())
	// Unset fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "server:\n  port: 8088\n", 0600)

	t.Setenv("VOXNOTES_SERVER_PORT", "7070")
	t.Setenv("VOXNOTES_CAPTURE_FINALIZE_TIMEOUT", "3s")
	t.Setenv("VOXNOTES_CLOUD_API_KEY", "from-env")

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Capture.FinalizeTimeout.Duration())
	assert.True(t, cfg.Cloud.Enabled())
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	home := setupTestHome(t)
	path := writeConfig(t, home, "server:\n  port: 8088\n", 0644)

	_, err := Load(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0600))

	_, err := Load(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")

	// An explicitly provided path skips the directory allow-list.
	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Server.Port)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	setupTestHome(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.Error(t, err)
}

func TestLoad_InvalidMode(t *testing.T) {
	setupTestHome(t)
	t.Setenv("VOXNOTES_EXTRACTION_MODE", "telepathy")

	_, err := Load("", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction mode")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VOXNOTES_SERVER_PORT", "server.port"},
		{"VOXNOTES_CAPTURE_FINALIZE_TIMEOUT", "capture.finalize_timeout"},
		{"VOXNOTES_MODEL_RUNTIME_BIN", "model.runtime_bin"},
		{"VOXNOTES_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := setupTestHome(t)

	got, err := ExpandPath("~/data/x.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "x.db"), got)

	got, err = ExpandPath("/abs/x.db")
	require.NoError(t, err)
	assert.Equal(t, "/abs/x.db", got)
}
