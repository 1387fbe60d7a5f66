// Package config loads per-environment YAML configuration with env-var
// expansion. Built once at process start, immutable thereafter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitae-cloud/profilex/internal/domain"
)

// Config holds the profilex service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Sources    SourcesConfig    `yaml:"sources"`
	Enrich     EnrichConfig     `yaml:"enrich"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Chat       ChatConfig       `yaml:"chat"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// GenerationConfig holds the chat generation collaborator settings.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// SourceConfig holds one external source's quota and cache settings.
type SourceConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// SourcesConfig holds per-source adapter settings.
type SourcesConfig struct {
	GitHub    SourceConfig `yaml:"github"`
	Network   SourceConfig `yaml:"network"`
	Website   SourceConfig `yaml:"website"`
	WebSearch SourceConfig `yaml:"websearch"`
}

// EnrichConfig holds orchestrator settings.
type EnrichConfig struct {
	MaxParallel    int      `yaml:"max_parallel"`
	RetryAttempts  int      `yaml:"retry_attempts"`
	RetryBaseMS    int      `yaml:"retry_base_ms"`
	SourcePriority []string `yaml:"source_priority"`
	MaxFactsPerSrc int      `yaml:"max_facts_per_source"`
	MaxClaimLength int      `yaml:"max_claim_length"`
}

// IndexingConfig holds chunking and index build settings.
type IndexingConfig struct {
	TargetTokens    int `yaml:"chunk_target_tokens"`
	MaxTokens       int `yaml:"chunk_max_tokens"`
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	GCGraceHours    int `yaml:"gc_grace_hours"`
}

// RetrievalConfig holds search settings.
type RetrievalConfig struct {
	MinSimilarity float64 `yaml:"min_similarity"`
	DefaultK      int     `yaml:"default_k"`
}

// ChatConfig holds session manager settings.
type ChatConfig struct {
	HistoryLimit      int `yaml:"history_limit"`
	MessagesPerMinute int `yaml:"messages_per_minute"`
	SessionTTLMin     int `yaml:"session_ttl_min"`
	IdleTimeoutMin    int `yaml:"idle_timeout_min"`
	MaxContextChunks  int `yaml:"max_context_chunks"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.KeyPrefix
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 20
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1024
	}
	if c.Enrich.MaxParallel <= 0 {
		c.Enrich.MaxParallel = 4
	}
	if c.Enrich.RetryAttempts <= 0 {
		c.Enrich.RetryAttempts = 3
	}
	if c.Enrich.RetryBaseMS <= 0 {
		c.Enrich.RetryBaseMS = 250
	}
	if c.Enrich.MaxFactsPerSrc <= 0 {
		c.Enrich.MaxFactsPerSrc = 200
	}
	if c.Enrich.MaxClaimLength <= 0 {
		c.Enrich.MaxClaimLength = 2000
	}
	if c.Indexing.TargetTokens <= 0 {
		c.Indexing.TargetTokens = 250
	}
	if c.Indexing.MaxTokens <= 0 {
		c.Indexing.MaxTokens = 300
	}
	if c.Indexing.HNSWM <= 0 {
		c.Indexing.HNSWM = 16
	}
	if c.Indexing.HNSWEFConstruct <= 0 {
		c.Indexing.HNSWEFConstruct = 200
	}
	if c.Indexing.GCGraceHours <= 0 {
		c.Indexing.GCGraceHours = 24
	}
	if c.Retrieval.MinSimilarity <= 0 {
		c.Retrieval.MinSimilarity = 0.35
	}
	if c.Retrieval.DefaultK <= 0 {
		c.Retrieval.DefaultK = 6
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 20
	}
	if c.Chat.MessagesPerMinute <= 0 {
		c.Chat.MessagesPerMinute = 10
	}
	if c.Chat.SessionTTLMin <= 0 {
		c.Chat.SessionTTLMin = 120
	}
	if c.Chat.IdleTimeoutMin <= 0 {
		c.Chat.IdleTimeoutMin = 30
	}
	if c.Chat.MaxContextChunks <= 0 {
		c.Chat.MaxContextChunks = 6
	}
	applySourceDefaults(&c.Sources.GitHub, 30, 3600)
	applySourceDefaults(&c.Sources.Network, 10, 86400)
	applySourceDefaults(&c.Sources.Website, 20, 21600)
	applySourceDefaults(&c.Sources.WebSearch, 10, 1800)
}

func applySourceDefaults(s *SourceConfig, rpm float64, ttlSec int) {
	if s.RequestsPerMinute <= 0 {
		s.RequestsPerMinute = rpm
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.CacheTTLSec <= 0 {
		s.CacheTTLSec = ttlSec
	}
	if s.TimeoutSec <= 0 {
		s.TimeoutSec = 15
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Retrieval.MinSimilarity >= 1 {
		return fmt.Errorf("retrieval.min_similarity must be below 1, got %g", c.Retrieval.MinSimilarity)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
