package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout())
	assert.Equal(t, 20, cfg.Cropper.Padding)
	assert.Equal(t, 90, cfg.Cropper.Quality)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Analysis.Backend = BackendOllama
	cfg.Analysis.Model = "llava:7b"
	cfg.Cropper.Padding = 8
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cropper": {"padding": 5}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Cropper.Padding)
	assert.Equal(t, 90, cfg.Cropper.Quality)
	assert.Equal(t, BackendMLService, cfg.Analysis.Backend)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Analysis.Backend = "gpt" }},
		{"empty url", func(c *Config) { c.Analysis.URL = "" }},
		{"ollama without model", func(c *Config) { c.Analysis.Backend = BackendOllama; c.Analysis.Model = "" }},
		{"zero timeout", func(c *Config) { c.Analysis.TimeoutSeconds = 0 }},
		{"send quality", func(c *Config) { c.Analysis.SendQuality = 0 }},
		{"negative padding", func(c *Config) { c.Cropper.Padding = -1 }},
		{"crop quality", func(c *Config) { c.Cropper.Quality = 101 }},
		{"output quality", func(c *Config) { c.Output.Quality = 0 }},
		{"output format", func(c *Config) { c.Output.DefaultFormat = "bmp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Analysis.Backend = BackendNone
	cfg.Analysis.URL = ""
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvMLURL, "http://ml:9000")
	t.Setenv(EnvBackend, "LlamaCpp")
	t.Setenv(EnvModel, "qwen2-vl")
	t.Setenv(EnvAPIURL, "https://clinic.example")
	t.Setenv(EnvAPIToken, "tok")
	t.Setenv(EnvAnalysisTimeout, "45s")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "http://ml:9000", cfg.Analysis.URL)
	assert.Equal(t, BackendLlamaCpp, cfg.Analysis.Backend)
	assert.Equal(t, "qwen2-vl", cfg.Analysis.Model)
	assert.Equal(t, "https://clinic.example", cfg.API.BaseURL)
	assert.Equal(t, "tok", cfg.API.Token)
	assert.Equal(t, 45*time.Second, cfg.Analysis.Timeout())

	t.Setenv(EnvAnalysisTimeout, "12")
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 12, cfg.Analysis.TimeoutSeconds)

	t.Setenv(EnvAnalysisTimeout, "soon")
	assert.Error(t, cfg.ApplyEnv())
}

func TestLoadEnv(t *testing.T) {
	// Registered with t.Setenv so the variable is removed again afterwards
	t.Setenv(EnvModel, "")
	require.NoError(t, os.Unsetenv(EnvModel))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WOUND_MODEL=minicpm-v4.5\n"), 0644))

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "minicpm-v4.5", os.Getenv(EnvModel))
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(GetConfigPath()))
}
