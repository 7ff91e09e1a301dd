// Package config provides configuration loading and structs for the kotae engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine and its stores.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Inference InferenceConfig `yaml:"inference"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Citation  CitationConfig  `yaml:"citation"`
	Cache     CacheConfig     `yaml:"cache"`
}

// StorageConfig holds paths for the relational store and vector index.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// InferenceConfig holds settings for the chat-completion service used by the
// extraction fallback and the reranker.
type InferenceConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// RetrievalConfig holds per-path timeouts and candidate counts.
// The structured path is an indexed lookup, so its budget is short; the
// semantic path includes an embedding call plus nearest-neighbor search.
// ExtractTimeoutMs bounds parameter extraction, whose LLM fallback can
// otherwise stall a query when the inference service stops responding.
type RetrievalConfig struct {
	ExtractTimeoutMs    int `yaml:"extract_timeout_ms"`
	StructuredTimeoutMs int `yaml:"structured_timeout_ms"`
	SemanticTimeoutMs   int `yaml:"semantic_timeout_ms"`
	Oversample          int `yaml:"oversample"`
}

// RerankConfig holds reranker settings. Concurrency caps the number of
// in-flight relevance-scoring calls against the inference service.
type RerankConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
	TimeoutMs   int  `yaml:"timeout_ms"`
}

// FusionConfig holds the confidence bands and conflict penalty. These are
// calibration values, kept adjustable rather than hard-coded.
type FusionConfig struct {
	StructuredOnlyBase float64 `yaml:"structured_only_base"`
	StructuredOnlyStep float64 `yaml:"structured_only_step"`
	StructuredOnlyMax  float64 `yaml:"structured_only_max"`
	SemanticOnlyMin    float64 `yaml:"semantic_only_min"`
	SemanticOnlyMax    float64 `yaml:"semantic_only_max"`
	SemanticOnlySpread float64 `yaml:"semantic_only_spread"`
	AgreementBase      float64 `yaml:"agreement_base"`
	AgreementStep      float64 `yaml:"agreement_step"`
	AgreementCap       float64 `yaml:"agreement_cap"`
	ConflictPenalty    float64 `yaml:"conflict_penalty"`
}

// CitationConfig holds the allow-list of recognized sources. A citation whose
// normalized source matches an entry exactly, or an entry ending in "-" as a
// prefix, is marked trusted.
type CitationConfig struct {
	TrustedSources []string `yaml:"trusted_sources"`
}

// CacheConfig holds layered result-cache settings. MemoryEntries sizes the
// fast tier; PersistentPath enables the BadgerDB tier when non-empty.
type CacheConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MemoryEntries  int    `yaml:"memory_entries"`
	PersistentPath string `yaml:"persistent_path"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. The file is unmarshaled over a fully-defaulted config, so a key
// that is absent keeps its default while an explicit value sticks, including
// explicit zeros for calibration values like the conflict penalty.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Cache.PersistentPath != "" {
		cfg.Cache.PersistentPath = expandPath(cfg.Cache.PersistentPath, configDir)
	}

	return cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
