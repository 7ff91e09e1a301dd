package config

// Default returns a config with every value defaulted. Load unmarshals the
// config file over it, so file values override field by field.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/knowledge.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kotae/data/indices/chunks.idx"
	}
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Inference.Host == "" {
		cfg.Inference.Host = "http://localhost:11434/v1"
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "llama3.1:8b"
	}
	if cfg.Retrieval.ExtractTimeoutMs == 0 {
		cfg.Retrieval.ExtractTimeoutMs = 300
	}
	if cfg.Retrieval.StructuredTimeoutMs == 0 {
		cfg.Retrieval.StructuredTimeoutMs = 500
	}
	if cfg.Retrieval.SemanticTimeoutMs == 0 {
		cfg.Retrieval.SemanticTimeoutMs = 1000
	}
	if cfg.Retrieval.Oversample == 0 {
		cfg.Retrieval.Oversample = 50
	}
	if cfg.Rerank.Concurrency == 0 {
		cfg.Rerank.Concurrency = 4
	}
	if cfg.Rerank.TimeoutMs == 0 {
		cfg.Rerank.TimeoutMs = 700
	}
	if cfg.Fusion.StructuredOnlyBase == 0 {
		cfg.Fusion.StructuredOnlyBase = 0.75
	}
	if cfg.Fusion.StructuredOnlyStep == 0 {
		cfg.Fusion.StructuredOnlyStep = 0.01
	}
	if cfg.Fusion.StructuredOnlyMax == 0 {
		cfg.Fusion.StructuredOnlyMax = 0.80
	}
	if cfg.Fusion.SemanticOnlyMin == 0 {
		cfg.Fusion.SemanticOnlyMin = 0.60
	}
	if cfg.Fusion.SemanticOnlyMax == 0 {
		cfg.Fusion.SemanticOnlyMax = 0.75
	}
	if cfg.Fusion.SemanticOnlySpread == 0 {
		cfg.Fusion.SemanticOnlySpread = 0.15
	}
	if cfg.Fusion.AgreementBase == 0 {
		cfg.Fusion.AgreementBase = 0.85
	}
	if cfg.Fusion.AgreementStep == 0 {
		cfg.Fusion.AgreementStep = 0.03
	}
	if cfg.Fusion.AgreementCap == 0 {
		cfg.Fusion.AgreementCap = 0.99
	}
	if cfg.Fusion.ConflictPenalty == 0 {
		cfg.Fusion.ConflictPenalty = 0.10
	}
	if cfg.Citation.TrustedSources == nil {
		cfg.Citation.TrustedSources = []string{
			"fee_schedule",
			"formulary",
			"device_rules",
			"funding-manual-",
			"schedule-guide-",
		}
	}
	if cfg.Cache.MemoryEntries == 0 {
		cfg.Cache.MemoryEntries = 1024
	}
}
