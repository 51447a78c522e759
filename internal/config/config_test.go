package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGenerateDefault(t *testing.T) {
	cfg := GenerateDefault()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "default", cfg.TenantID)
	assert.Equal(t, "Europe/Rome", cfg.Timezone)

	// Model defaults
	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Model.Name)
	assert.Zero(t, cfg.Model.Temperature)
	assert.Equal(t, int32(2000), cfg.Model.MaxOutputTokens)
	assert.Equal(t, 12*time.Second, cfg.ModelTimeout())

	// Supervisor defaults
	assert.Equal(t, 12, cfg.Supervisor.MaxRecentTurns)
	assert.Equal(t, 30*time.Minute, cfg.ConflictWindow())
	assert.Equal(t, 20, cfg.Supervisor.ListLimit)
}

func TestGenerateDefaultMatchesGoldenFile(t *testing.T) {
	goldenBytes, err := os.ReadFile(filepath.Join("testdata", "golden_config.yaml"))
	require.NoError(t, err, "Failed to read golden config file")

	var golden Config
	require.NoError(t, yaml.Unmarshal(goldenBytes, &golden), "Failed to parse golden config")

	assert.Equal(t, &golden, GenerateDefault(), "Generated config should match golden file")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GenerateDefault()
	assert.NoError(t, cfg.Validate(), "Default config should be valid")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"missing tenant", func(c *Config) { c.TenantID = " " }, "tenant_id"},
		{"empty timezone", func(c *Config) { c.Timezone = "" }, "timezone"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "openai" }, "model.provider"},
		{"missing model name", func(c *Config) { c.Model.Name = "" }, "model.name"},
		{"hot temperature", func(c *Config) { c.Model.Temperature = 3 }, "model.temperature"},
		{"unbounded model call", func(c *Config) { c.Model.TimeoutMs = 0 }, "model.timeout_ms"},
		{"negative window", func(c *Config) { c.Supervisor.ConflictWindowMinutes = -1 }, "conflict_window_minutes"},
		{"missing store", func(c *Config) { c.Store.Path = "" }, "store.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GenerateDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "Hint:")
		})
	}
}

func TestValidate_OllamaProvider(t *testing.T) {
	cfg := GenerateDefault()
	cfg.Model.Provider = "ollama"
	cfg.Model.Name = "llama3.2"
	assert.NoError(t, cfg.Validate())
}

func TestLocation(t *testing.T) {
	cfg := GenerateDefault()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", loc.String())

	cfg.Timezone = "Nowhere/Land"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func TestLoadFromFile_ValidFile(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join("testdata", "golden_config.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, ".vtask/tasks.db", cfg.Store.Path)
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vtask.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenant_id: acme\nmodel:\n  name: gemini-2.5-flash\n"), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.Equal(t, 12000, cfg.Model.TimeoutMs)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("VTASK_TEST_TENANT", "from-env")
	path := filepath.Join(t.TempDir(), "vtask.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenant_id: ${VTASK_TEST_TENANT}\n"), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.TenantID)
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/vtask.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	invalidFile := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalidFile, []byte("model: [unclosed"), 0600))

	cfg, err := LoadFromFile(invalidFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("VTASK_LOG_LEVEL", "debug")

	cfg := GenerateDefault()
	cfg.ApplyEnv()
	assert.Equal(t, "key-123", cfg.Model.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg = GenerateDefault()
	cfg.Model.APIKey = "from-file"
	cfg.ApplyEnv()
	assert.Equal(t, "from-file", cfg.Model.APIKey, "a configured key wins over the environment")
}

func TestResolvePaths(t *testing.T) {
	cfg := GenerateDefault()
	cfg.Audit.Path = "/var/log/vtask/audit.ndjson"
	cfg.ResolvePaths("/srv/vtask")

	assert.Equal(t, "/srv/vtask/.vtask/tasks.db", cfg.Store.Path)
	assert.Equal(t, "/var/log/vtask/audit.ndjson", cfg.Audit.Path)
	assert.Equal(t, "/srv/vtask/.vtask/calls", cfg.Calls.RecordDir)
}

func TestSaveToFile(t *testing.T) {
	cfg := GenerateDefault()
	cfg.Model.APIKey = "secret"
	configPath := filepath.Join(t.TempDir(), "vtask.yaml")

	require.NoError(t, cfg.SaveToFile(configPath))

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, cfg.Supervisor, loaded.Supervisor)
	assert.Empty(t, loaded.Model.APIKey, "API keys are not written to disk")
	assert.Equal(t, "secret", cfg.Model.APIKey)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
