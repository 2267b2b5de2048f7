package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Analysis backends
const (
	BackendMLService = "mlservice"
	BackendOllama    = "ollama"
	BackendLlamaCpp  = "llamacpp"
	BackendNone      = "none"
)

// Environment overrides
const (
	EnvMLURL           = "WOUND_ML_URL"
	EnvBackend         = "WOUND_ANALYSIS_BACKEND"
	EnvModel           = "WOUND_MODEL"
	EnvAPIURL          = "WOUND_API_URL"
	EnvAPIToken        = "WOUND_API_TOKEN"
	EnvAnalysisTimeout = "WOUND_ANALYSIS_TIMEOUT"
)

// Config holds the application configuration
type Config struct {
	Analysis AnalysisConfig `json:"analysis"`
	Cropper  CropperConfig  `json:"cropper"`
	API      APIConfig      `json:"api"`
	Output   OutputConfig   `json:"output"`
}

// AnalysisConfig selects and tunes the AI measurement backend
type AnalysisConfig struct {
	Backend        string `json:"backend"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	SendMaxDim     int    `json:"send_max_dimension"`
	SendQuality    int    `json:"send_quality"`
}

// Timeout returns the per-request analysis timeout
func (a AnalysisConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CropperConfig holds configuration for polygon cropping
type CropperConfig struct {
	Padding int `json:"padding"`
	Quality int `json:"quality"`
}

// APIConfig holds the clinical records API endpoint
type APIConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Backend:        BackendMLService,
			URL:            "http://localhost:8001",
			Model:          "llava:13b",
			TimeoutSeconds: 30,
			SendMaxDim:     1536,
			SendQuality:    85,
		},
		Cropper: CropperConfig{
			Padding: 20,
			Quality: 90,
		},
		API: APIConfig{
			BaseURL: "http://localhost:8000",
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_selected",
			Quality:       90,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads .env style files into the process environment without
// replacing variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides the configuration from WOUND_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvMLURL); v != "" {
		c.Analysis.URL = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Analysis.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Analysis.Model = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv(EnvAnalysisTimeout); v != "" {
		seconds, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAnalysisTimeout, err)
		}
		c.Analysis.TimeoutSeconds = seconds
	}
	return nil
}

// parseSeconds accepts a bare number of seconds or a Go duration like "45s"
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return int(d.Round(time.Second) / time.Second), nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Analysis.Backend {
	case BackendMLService, BackendOllama, BackendLlamaCpp, BackendNone:
	default:
		return fmt.Errorf("analysis.backend must be one of mlservice, ollama, llamacpp, none; got %q", c.Analysis.Backend)
	}

	if c.Analysis.Backend != BackendNone && c.Analysis.URL == "" {
		return fmt.Errorf("analysis.url cannot be empty")
	}

	if (c.Analysis.Backend == BackendOllama || c.Analysis.Backend == BackendLlamaCpp) && c.Analysis.Model == "" {
		return fmt.Errorf("analysis.model cannot be empty for the %s backend", c.Analysis.Backend)
	}

	if c.Analysis.TimeoutSeconds < 1 {
		return fmt.Errorf("analysis.timeout_seconds must be positive")
	}

	if c.Analysis.SendQuality < 1 || c.Analysis.SendQuality > 100 {
		return fmt.Errorf("analysis.send_quality must be between 1 and 100")
	}

	if c.Cropper.Padding < 0 {
		return fmt.Errorf("cropper.padding cannot be negative")
	}

	if c.Cropper.Quality < 1 || c.Cropper.Quality > 100 {
		return fmt.Errorf("cropper.quality must be between 1 and 100")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.default_format must be jpg, png or webp")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "wound-roi", "config.json")
}
