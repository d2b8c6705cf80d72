package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kList
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "int"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kList:
		return "list"
	default:
		return "string"
	}
}

// keySpec binds a dotted key to its Config field. Secrets are never read
// from or written to the config file; account names their entry in the
// platform secret store. hashed marks keys that change pipeline output.
type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string
	hashed  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "pipeline.enable_caching", typ: kBool, env: "DESIGNGEN_PIPELINE_ENABLE_CACHING",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.EnableCaching = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.EnableCaching },
	},
	{
		key: "pipeline.enable_semantic_matching", typ: kBool, env: "DESIGNGEN_PIPELINE_ENABLE_SEMANTIC_MATCHING", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Pipeline.EnableSemanticMatching = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.EnableSemanticMatching },
	},
	{
		key: "pipeline.enable_visual_validation", typ: kBool, env: "DESIGNGEN_PIPELINE_ENABLE_VISUAL_VALIDATION", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Pipeline.EnableVisualValidation = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.EnableVisualValidation },
	},
	{
		key: "pipeline.max_retries", typ: kInt, env: "DESIGNGEN_PIPELINE_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxRetries },
	},
	{
		key: "pipeline.retry_delay_ms", typ: kInt, env: "DESIGNGEN_PIPELINE_RETRY_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RetryDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.RetryDelayMs },
	},
	{
		key: "pipeline.timeout_ms", typ: kInt, env: "DESIGNGEN_PIPELINE_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TimeoutMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TimeoutMs },
	},
	{
		key: "pipeline.concurrency", typ: kInt, env: "DESIGNGEN_PIPELINE_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.Concurrency },
	},
	{
		key: "pipeline.skip_stages", typ: kList, env: "DESIGNGEN_PIPELINE_SKIP_STAGES", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Pipeline.SkipStages = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Pipeline.SkipStages, ",") },
	},
	{
		key: "output.dir", typ: kString, env: "DESIGNGEN_OUTPUT_DIR", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Output.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Output.Dir },
	},
	{
		key: "output.create_subdirectories", typ: kBool, env: "DESIGNGEN_OUTPUT_CREATE_SUBDIRECTORIES", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Output.CreateSubdirectories = v.(bool) },
		extract: func(cfg Config) any { return cfg.Output.CreateSubdirectories },
	},
	{
		key: "log.level", typ: kString, env: "DESIGNGEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DESIGNGEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "matching.semantic_weight", typ: kFloat, env: "DESIGNGEN_MATCHING_SEMANTIC_WEIGHT", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Matching.SemanticWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.SemanticWeight },
	},
	{
		key: "matching.visual_weight", typ: kFloat, env: "DESIGNGEN_MATCHING_VISUAL_WEIGHT", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Matching.VisualWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.VisualWeight },
	},
	{
		key: "matching.exact_threshold", typ: kFloat, env: "DESIGNGEN_MATCHING_EXACT_THRESHOLD", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Matching.ExactThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.ExactThreshold },
	},
	{
		key: "matching.similar_threshold", typ: kFloat, env: "DESIGNGEN_MATCHING_SIMILAR_THRESHOLD", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Matching.SimilarThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.SimilarThreshold },
	},
	{
		key: "matching.max_candidates", typ: kInt, env: "DESIGNGEN_MATCHING_MAX_CANDIDATES", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Matching.MaxCandidates = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.MaxCandidates },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DESIGNGEN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "DESIGNGEN_OLLAMA_EMBED_MODEL", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.review_model", typ: kString, env: "DESIGNGEN_OLLAMA_REVIEW_MODEL", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Ollama.ReviewModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ReviewModel },
	},
	{
		key: "generation.provider", typ: kString, env: "DESIGNGEN_GENERATION_PROVIDER", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "generation.model", typ: kString, env: "DESIGNGEN_GENERATION_MODEL", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.openrouter_api_key", typ: kString, env: "DESIGNGEN_OPENROUTER_API_KEY",
		secret: true, account: "openrouter_api_key",
		apply:   func(cfg *Config, v any) { cfg.Generation.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OpenRouterAPIKey },
	},
	{
		key: "generation.requests_per_minute", typ: kInt, env: "DESIGNGEN_GENERATION_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Generation.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.RequestsPerMinute },
	},
	{
		key: "classify.rules_file", typ: kString, env: "DESIGNGEN_CLASSIFY_RULES_FILE", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Classify.RulesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Classify.RulesFile },
	},
	{
		key: "icons.map_file", typ: kString, env: "DESIGNGEN_ICONS_MAP_FILE", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Icons.MapFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Icons.MapFile },
	},
	{
		key: "library.auto_index", typ: kBool, env: "DESIGNGEN_LIBRARY_AUTO_INDEX", hashed: true,
		apply:   func(cfg *Config, v any) { cfg.Library.AutoIndex = v.(bool) },
		extract: func(cfg Config) any { return cfg.Library.AutoIndex },
	},
	{
		key: "server.port", typ: kInt, env: "DESIGNGEN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DESIGNGEN_API_TOKEN",
		secret: true, account: "server_api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text to the Go type of s.
func (s keySpec) parseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kList:
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return &ConfigurationError{Key: s.key, Reason: err.Error()}
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return &ConfigurationError{Key: s.key, Reason: err.Error()}
		}
		if !ok {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			return &ConfigurationError{Key: s.key, Reason: fmt.Sprintf("invalid %s value %q", s.typ, raw)}
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			return &ConfigurationError{Key: s.key, Reason: fmt.Sprintf("invalid %s value %q in %s", s.typ, raw, s.env)}
		}
		s.apply(cfg, v)
	}
	return nil
}
