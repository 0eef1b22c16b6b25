package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/studyrag/studyrag/internal/retrieval"
)

// Config is the complete StudyRAG configuration.
type Config struct {
	Notes      NotesConfig      `yaml:"notes" json:"notes"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Oracle     OracleConfig     `yaml:"oracle" json:"oracle"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// NotesConfig configures where course notes are read from.
type NotesConfig struct {
	// Dir is the notes root. Its first-level directories name subjects.
	Dir string `yaml:"dir" json:"dir"`
	// Extensions lists the file extensions that are indexed.
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// SearchConfig configures retrieval.
// Weights and the RRF constant are configurable via:
//  1. User config (~/.config/studyrag/config.yaml)
//  2. Project config (.studyrag.yaml)
//  3. Env vars (STUDYRAG_SEMANTIC_WEIGHT, STUDYRAG_LEXICAL_WEIGHT,
//     STUDYRAG_RRF_CONSTANT) - highest priority
type SearchConfig struct {
	// SemanticWeight and LexicalWeight are the fusion weights.
	// They must sum to 1.0.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// RRFConstant is the rank-fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// NbSources is the default number of documents returned (1-50).
	NbSources int `yaml:"nb_sources" json:"nb_sources"`

	// FetchKMultiplier scales the semantic over-fetch.
	FetchKMultiplier int `yaml:"fetch_k_multiplier" json:"fetch_k_multiplier"`

	// Stage toggles, overridable per query from the CLI.
	Rewrite  bool `yaml:"rewrite" json:"rewrite"`
	Hybrid   bool `yaml:"hybrid" json:"hybrid"`
	Rerank   bool `yaml:"rerank" json:"rerank"`
	Compress bool `yaml:"compress" json:"compress"`

	// MaxCompressDocs caps compression to the first N candidates.
	MaxCompressDocs int `yaml:"max_compress_docs" json:"max_compress_docs"`

	// StageWorkers bounds concurrent oracle calls per stage.
	StageWorkers int `yaml:"stage_workers" json:"stage_workers"`
}

// OracleConfig configures the LLM used for rewrite, rerank and compress.
// The API key is never read from files, only from OPENAI_API_KEY.
type OracleConfig struct {
	Model       string  `yaml:"model" json:"model"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
	// Timeout is a duration string, e.g. "30s".
	Timeout string `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses the timeout, falling back to 30s.
func (o OracleConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(o.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the embedding LRU capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Notes: NotesConfig{
			Dir:        "notes",
			Extensions: []string{".md", ".txt"},
		},
		Search: SearchConfig{
			SemanticWeight:   retrieval.DefaultSemanticWeight,
			LexicalWeight:    retrieval.DefaultLexicalWeight,
			RRFConstant:      60,
			NbSources:        retrieval.DefaultNbSources,
			FetchKMultiplier: retrieval.DefaultFetchKMultiplier,
			Rewrite:          true,
			Hybrid:           true,
			Rerank:           true,
			Compress:         true,
			MaxCompressDocs:  retrieval.DefaultMaxCompressDocs,
			StageWorkers:     retrieval.DefaultStageWorkers,
		},
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			Timeout:     "30s",
		},
		Embeddings: EmbeddingsConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
			CacheSize:  4096,
		},
		Storage: StorageConfig{
			Path: defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".studyrag", "index.db")
	}
	return filepath.Join(home, ".studyrag", "index.db")
}

// UserConfigPath returns the user configuration path, honoring
// XDG_CONFIG_HOME.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "studyrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "studyrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "studyrag", "config.yaml")
}

// Load builds the configuration for dir, applying sources in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/studyrag/config.yaml)
//  3. Project config (.studyrag.yaml in dir)
//  4. Environment variables (STUDYRAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
	}
	if err := cfg.loadProject(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadProject(dir string) error {
	for _, name := range []string{".studyrag.yaml", ".studyrag.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No project config is fine.
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies STUDYRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STUDYRAG_NOTES_DIR"); v != "" {
		c.Notes.Dir = v
	}
	if v := os.Getenv("STUDYRAG_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("STUDYRAG_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("STUDYRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("STUDYRAG_NB_SOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.NbSources = n
		}
	}
	if v := os.Getenv("STUDYRAG_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("STUDYRAG_ORACLE_BASE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
	if v := os.Getenv("STUDYRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("STUDYRAG_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("STUDYRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// APIKey returns the OpenAI API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// Validate rejects configurations no pipeline could run with.
func (c *Config) Validate() error {
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	sum := c.Search.SemanticWeight + c.Search.LexicalWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + lexical_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.NbSources < retrieval.MinNbSources || c.Search.NbSources > retrieval.MaxNbSources {
		return fmt.Errorf("nb_sources must be between %d and %d, got %d",
			retrieval.MinNbSources, retrieval.MaxNbSources, c.Search.NbSources)
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle.temperature must be between 0 and 2, got %f", c.Oracle.Temperature)
	}
	if c.Oracle.Timeout != "" {
		if _, err := time.ParseDuration(c.Oracle.Timeout); err != nil {
			return fmt.Errorf("oracle.timeout must be a duration like '30s', got %s", c.Oracle.Timeout)
		}
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// Options converts the search section into pipeline options.
func (c *Config) Options() retrieval.Options {
	return retrieval.Options{
		NbSources:        c.Search.NbSources,
		EnableRewrite:    c.Search.Rewrite,
		EnableHybrid:     c.Search.Hybrid,
		EnableRerank:     c.Search.Rerank,
		EnableCompress:   c.Search.Compress,
		SemanticWeight:   c.Search.SemanticWeight,
		LexicalWeight:    c.Search.LexicalWeight,
		FetchKMultiplier: c.Search.FetchKMultiplier,
		MaxCompressDocs:  c.Search.MaxCompressDocs,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
