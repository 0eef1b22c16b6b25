package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/retrieval"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.6, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.4, cfg.Search.LexicalWeight)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 10, cfg.Search.NbSources)
	assert.True(t, cfg.Search.Hybrid)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "empty-xdg"))

	yaml := `
search:
  semantic_weight: 0.7
  lexical_weight: 0.3
  nb_sources: 20
oracle:
  model: gpt-4o
  timeout: 45s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".studyrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.LexicalWeight)
	assert.Equal(t, 20, cfg.Search.NbSources)
	assert.Equal(t, "gpt-4o", cfg.Oracle.Model)
	assert.Equal(t, 45*time.Second, cfg.Oracle.TimeoutDuration())
	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "empty-xdg"))

	yaml := "search:\n  nb_sources: 20\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".studyrag.yaml"), []byte(yaml), 0o644))
	t.Setenv("STUDYRAG_NB_SOURCES", "5")
	t.Setenv("STUDYRAG_ORACLE_MODEL", "gpt-4.1-mini")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Search.NbSources)
	assert.Equal(t, "gpt-4.1-mini", cfg.Oracle.Model)
}

func TestLoad_UserConfigApplied(t *testing.T) {
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "studyrag"), 0o755))
	yaml := "logging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "studyrag", "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "empty-xdg"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "empty-xdg"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".studyrag.yaml"), []byte("search: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights must sum to one", func(c *Config) { c.Search.SemanticWeight = 0.9 }},
		{"negative weight", func(c *Config) { c.Search.LexicalWeight = -0.1 }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"nb_sources too large", func(c *Config) { c.Search.NbSources = 51 }},
		{"nb_sources zero", func(c *Config) { c.Search.NbSources = 0 }},
		{"temperature out of range", func(c *Config) { c.Oracle.Temperature = 3 }},
		{"bad timeout", func(c *Config) { c.Oracle.Timeout = "soon" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOptions_MirrorsSearchSection(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.NbSources = 7
	cfg.Search.Rerank = false

	opts := cfg.Options()

	assert.Equal(t, 7, opts.NbSources)
	assert.True(t, opts.EnableHybrid)
	assert.False(t, opts.EnableRerank)
	assert.Equal(t, retrieval.DefaultMaxCompressDocs, opts.MaxCompressDocs)
}

func TestTimeoutDuration_Fallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, OracleConfig{}.TimeoutDuration())
	assert.Equal(t, 30*time.Second, OracleConfig{Timeout: "-5s"}.TimeoutDuration())
	assert.Equal(t, time.Minute, OracleConfig{Timeout: "1m"}.TimeoutDuration())
}
