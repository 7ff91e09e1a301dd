// Package main is the Kotae CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/engine"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/semantic"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/structured"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves any flags (and their values) that appear after the
// query text to the front of the slice so that flag.Parse() sees them. Go's
// flag package stops at the first non-flag argument.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae query [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "Question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae query is code C124 billable
  kotae query "is metformin covered"
  kotae query --category fees --top-k 5 consultation fee
  kotae query --codes C124,K030 --output json billing rules
`)
}

func runQuery() {
	queryArgs := queryArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	codes := fs.String("codes", "", "comma-separated billing codes to look up directly")
	entity := fs.String("entity", "", "drug, device, or service name to look up directly")
	category := fs.String("category", "", "restrict retrieval to a category (fees, formulary, devices)")
	fields := fs.String("fields", "", "comma-separated fields to return for structured items (default: all)")
	topK := fs.Int("top-k", 10, "maximum items in the answer")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	text := buildQueryText(fs.Args())
	if text == "" && *codes == "" && *entity == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	query := &models.Query{
		Text: text,
		Filters: models.Params{
			Entity:   *entity,
			Category: *category,
		},
		TopK: *topK,
	}
	if *codes != "" {
		for _, c := range strings.Split(*codes, ",") {
			if c = strings.TrimSpace(c); c != "" {
				query.Filters.Codes = append(query.Filters.Codes, strings.ToUpper(c))
			}
		}
	}
	if *fields != "" {
		for _, f := range strings.Split(*fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				query.Fields = append(query.Fields, f)
			}
		}
	}

	result, err := components.Engine.Query(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeResultText(result)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeResultText(result *models.FusedResult) {
	if result.NoEvidence() {
		fmt.Println("No evidence found. Confidence: 0.00")
		return
	}
	paths := make([]string, len(result.Provenance))
	for i, p := range result.Provenance {
		paths[i] = string(p)
	}
	fmt.Printf("confidence: %.2f   sources: %s\n", result.Confidence, strings.Join(paths, ", "))
	if result.Conflict {
		fmt.Printf("CONFLICT: %s\n", result.ConflictDetail)
	}
	fmt.Println()
	for _, item := range result.Items {
		switch item.Source {
		case models.SourceStructured:
			fmt.Printf("[%s] %s\n", item.Table, item.EntityID)
			for k, v := range item.Fields {
				fmt.Printf("    %s: %v\n", k, v)
			}
		case models.SourceSemantic:
			fmt.Printf("[document %.2f] %s\n", item.Score, utils.Truncate(item.Text, 200))
		}
	}
	if len(result.Citations) > 0 {
		fmt.Println("\ncitations:")
		for _, c := range result.Citations {
			mark := " "
			if c.Trusted {
				mark = "*"
			}
			loc := ""
			if c.Location != "" {
				loc = " " + c.Location
			}
			fmt.Printf("  %s %s%s\n", mark, c.Source, loc)
		}
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	dataVersion, err := components.Storage.DataVersion(context.Background())
	if err != nil {
		dataVersion = "unknown"
	}

	status := struct {
		DataVersion     string `json:"data_version"`
		VectorIndexSize int    `json:"vector_index_size"`
		DatabasePath    string `json:"database_path"`
		VectorIndexPath string `json:"vector_index_path"`
		ConfigPath      string `json:"config_path"`
		RerankEnabled   bool   `json:"rerank_enabled"`
		CacheEnabled    bool   `json:"cache_enabled"`
	}{
		DataVersion:     dataVersion,
		VectorIndexSize: components.VectorIndex.Size(),
		DatabasePath:    cfg.Storage.DatabasePath,
		VectorIndexPath: cfg.Storage.VectorIndexPath,
		ConfigPath:      resolvedPath,
		RerankEnabled:   cfg.Rerank.Enabled,
		CacheEnabled:    cfg.Cache.Enabled,
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("data_version:       %s\n", status.DataVersion)
		fmt.Printf("vector_index_size:  %d   # count of chunk embeddings\n", status.VectorIndexSize)
		fmt.Printf("database_path:      %s\n", status.DatabasePath)
		fmt.Printf("vector_index_path:  %s\n", status.VectorIndexPath)
		fmt.Printf("config_path:        %s\n", status.ConfigPath)
		fmt.Printf("rerank_enabled:     %t\n", status.RerankEnabled)
		fmt.Printf("cache_enabled:      %t\n", status.CacheEnabled)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage     *storage.SQLiteStore
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	Reranker    *rerank.Reranker
	Cache       *engine.ResultCache
	Engine      *engine.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Reranker != nil {
		c.Reranker.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	remote, err := embedding.NewOpenAIEmbedder(&cfg.Embedding)
	if err != nil {
		// Mock keeps the structured path usable when no embedding service is up.
		logger.Warn("embedding service unavailable, semantic answers will be degraded",
			zap.String("host", cfg.Embedding.Host), zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = remote
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized", zap.Int("size", vectorIndex.Size()))

	extractors := []extract.Extractor{extract.NewPatternExtractor()}
	if cfg.Inference.Host != "" {
		llmExtractor, err := extract.NewLLMExtractor(&cfg.Inference)
		if err != nil {
			logger.Warn("inference service unavailable, extraction is pattern-only", zap.Error(err))
		} else {
			extractors = append(extractors, llmExtractor)
		}
	}
	chain := extract.NewChain(logger, extractors...)

	structuredRetriever := structured.NewRetriever(store, logger)
	semanticRetriever := semantic.NewRetriever(embedder, vectorIndex, store, cfg.Retrieval.Oversample, logger)

	var reranker *rerank.Reranker
	if cfg.Rerank.Enabled && cfg.Inference.Host != "" {
		scorer, err := rerank.NewLLMScorer(&cfg.Inference)
		if err != nil {
			logger.Warn("reranker unavailable, using distance ordering", zap.Error(err))
		} else {
			reranker, err = rerank.NewReranker(scorer, cfg.Rerank.Concurrency,
				time.Duration(cfg.Rerank.TimeoutMs)*time.Millisecond, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize reranker: %w", err)
			}
		}
	}

	var cache *engine.ResultCache
	if cfg.Cache.Enabled {
		cache = engine.NewResultCache(cfg.Cache.MemoryEntries, cfg.Cache.PersistentPath, logger)
	}

	fuser := fusion.NewFuser(&cfg.Fusion, fusion.NewCitationBuilder(cfg.Citation.TrustedSources))

	var engineReranker engine.Reranker
	if reranker != nil {
		engineReranker = reranker
	}
	eng := engine.NewEngine(
		chain,
		structuredRetriever,
		semanticRetriever,
		engineReranker,
		fuser,
		cache,
		store,
		&cfg.Retrieval,
		logger,
	)

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		VectorIndex: vectorIndex,
		Reranker:    reranker,
		Cache:       cache,
		Engine:      eng,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Hybrid retrieval engine for health funding questions

Usage:
  kotae query [flags] <question>  Answer a question against the knowledge base
  kotae status [flags]            Show store and index status
  kotae version                   Show version
  kotae help                      Show this help

Query Flags:
  --config string     Config file path (default: /usr/local/etc/kotae/config.yaml)
  --codes string      Comma-separated billing codes to look up directly
  --entity string     Drug, device, or service name to look up directly
  --category string   Restrict retrieval to a category: fees, formulary, devices
  --fields string     Comma-separated fields to return for structured items
  --top-k int         Maximum items in the answer (default: 10)
  --output string     Output format: text or json (default: text)

Status Flags:
  --config string     Config file path
  --output string     Output format: text or json (default: text)

Examples:
  kotae query is code C124 billable
  kotae query "is metformin covered for type 2 diabetes"
  kotae query --codes C124 --output json billing
  kotae status`)
}
