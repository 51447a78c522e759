package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iambrandonn/vtask/internal/fsutil"
	"github.com/iambrandonn/vtask/internal/model"
)

// FileName is the config file searched for by the CLI
const FileName = "vtask.yaml"

// Config represents the vtask.yaml configuration file
type Config struct {
	Version    string     `yaml:"version"`
	TenantID   string     `yaml:"tenant_id"`
	Timezone   string     `yaml:"timezone"`
	LogLevel   string     `yaml:"log_level"`
	Model      Model      `yaml:"model"`
	Supervisor Supervisor `yaml:"supervisor"`
	Store      Store      `yaml:"store"`
	Audit      Audit      `yaml:"audit"`
	Calls      Calls      `yaml:"calls"`
}

// Model configures the language model used for intent extraction
type Model struct {
	Provider        string  `yaml:"provider"`
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	TimeoutMs       int     `yaml:"timeout_ms"`
	APIKey          string  `yaml:"api_key,omitempty"`
	BaseURL         string  `yaml:"base_url,omitempty"`
}

// Supervisor contains the per-call analysis settings
type Supervisor struct {
	MaxRecentTurns        int `yaml:"max_recent_turns"`
	ConflictWindowMinutes int `yaml:"conflict_window_minutes"`
	ListLimit             int `yaml:"list_limit"`
}

// Store locates the task database
type Store struct {
	Path string `yaml:"path"`
}

// Audit locates the NDJSON audit trail. An empty path logs entries only.
type Audit struct {
	Path string `yaml:"path,omitempty"`
}

// Calls locates the per-call records. An empty dir disables them.
type Calls struct {
	RecordDir string `yaml:"record_dir,omitempty"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:  "1.0",
		TenantID: "default",
		Timezone: "Europe/Rome",
		LogLevel: "info",
		Model: Model{
			Provider:        model.ProviderGemini,
			Name:            "gemini-2.5-flash-lite",
			Temperature:     0,
			MaxOutputTokens: 2000,
			TimeoutMs:       12000,
		},
		Supervisor: Supervisor{
			MaxRecentTurns:        12,
			ConflictWindowMinutes: 30,
			ListLimit:             20,
		},
		Store: Store{Path: ".vtask/tasks.db"},
		Audit: Audit{Path: ".vtask/audit.ndjson"},
		Calls: Calls{RecordDir: ".vtask/calls"},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  version: \"1.0\"")
	}

	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("configuration error: missing required field 'tenant_id'\n\nHint: Every task is stored under a tenant. Add:\n  tenant_id: default")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		return fmt.Errorf("configuration error: invalid 'timezone' value: %q\n\nHint: Use an IANA zone name, for example:\n  timezone: Europe/Rome", c.Timezone)
	}

	switch c.Model.Provider {
	case model.ProviderGemini, model.ProviderOllama:
	default:
		return fmt.Errorf("configuration error: unknown 'model.provider' value: %q\n\nHint: Supported providers are %q and %q:\n  model:\n    provider: %s", c.Model.Provider, model.ProviderGemini, model.ProviderOllama, model.ProviderGemini)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("configuration error: missing required field 'model.name'\n\nHint: Name the model to use, for example:\n  model:\n    name: gemini-2.5-flash-lite")
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("configuration error: invalid 'model.temperature' value: %g\n\nHint: Keep the temperature low for reliable extraction:\n  model:\n    temperature: 0", c.Model.Temperature)
	}

	if c.Model.TimeoutMs <= 0 {
		return fmt.Errorf("configuration error: invalid 'model.timeout_ms' value: %d\n\nHint: The model call must be bounded so a hung call never stalls a conversation:\n  model:\n    timeout_ms: 12000", c.Model.TimeoutMs)
	}

	if c.Supervisor.ConflictWindowMinutes < 0 {
		return fmt.Errorf("configuration error: invalid 'supervisor.conflict_window_minutes' value: %d\n\nHint: Use 0 for the default window or a positive number of minutes:\n  supervisor:\n    conflict_window_minutes: 30", c.Supervisor.ConflictWindowMinutes)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("configuration error: missing required field 'store.path'\n\nHint: Point the store at a sqlite file:\n  store:\n    path: .vtask/tasks.db")
	}

	return nil
}

// Location returns the tenant timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ModelTimeout returns the model call bound
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutMs) * time.Millisecond
}

// ConflictWindow returns the scheduling conflict window
func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.Supervisor.ConflictWindowMinutes) * time.Minute
}

// ApplyEnv fills settings left empty in the file from the environment
func (c *Config) ApplyEnv() {
	if c.Model.APIKey == "" && c.Model.Provider == model.ProviderGemini {
		c.Model.APIKey = os.Getenv(model.GeminiAPIKeyEnv)
	}
	if c.Model.BaseURL == "" && c.Model.Provider == model.ProviderOllama {
		c.Model.BaseURL = os.Getenv("OLLAMA_HOST")
	}
	if lvl := os.Getenv("VTASK_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

// ResolvePaths makes relative file locations relative to baseDir
func (c *Config) ResolvePaths(baseDir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.Store.Path = resolve(c.Store.Path)
	c.Audit.Path = resolve(c.Audit.Path)
	c.Calls.RecordDir = resolve(c.Calls.RecordDir)
}

// LoadFromFile loads a configuration from a YAML file. ${VAR} references are
// expanded and fields missing from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := GenerateDefault()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveToFile writes the configuration to a YAML file with 0600 permissions.
// The API key is never written out.
func (c *Config) SaveToFile(path string) error {
	out := *c
	out.Model.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
