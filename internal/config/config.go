// Package config loads designgen settings from a flat JSON file. DESIGNGEN_*
// environment variables override the file; secrets left unset come from the
// platform secret store.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/kalambet/designgen/internal/matching"
)

const secretService = "designgen"

// ConfigurationError reports an invalid or missing setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

type Config struct {
	Pipeline   PipelineConfig
	Output     OutputConfig
	Log        LogConfig
	Storage    StorageConfig
	Matching   MatchingConfig
	Ollama     OllamaConfig
	Generation GenerationConfig
	Classify   ClassifyConfig
	Icons      IconsConfig
	Library    LibraryConfig
	Server     ServerConfig

	// Path is the file the configuration was read from.
	Path string
}

type PipelineConfig struct {
	EnableCaching          bool
	EnableSemanticMatching bool
	EnableVisualValidation bool
	MaxRetries             int
	RetryDelayMs           int
	TimeoutMs              int
	Concurrency            int
	SkipStages             []string
}

type OutputConfig struct {
	Dir                  string
	CreateSubdirectories bool
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type MatchingConfig struct {
	SemanticWeight   float64
	VisualWeight     float64
	ExactThreshold   float64
	SimilarThreshold float64
	MaxCandidates    int
}

// Weights returns the scorer weights.
func (m MatchingConfig) Weights() matching.Weights {
	return matching.Weights{Semantic: m.SemanticWeight, Visual: m.VisualWeight}
}

// Thresholds returns the scorer tier bounds.
func (m MatchingConfig) Thresholds() matching.Thresholds {
	return matching.Thresholds{Exact: m.ExactThreshold, Similar: m.SimilarThreshold}
}

type OllamaConfig struct {
	BaseURL     string
	EmbedModel  string
	ReviewModel string
}

// Generation providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type GenerationConfig struct {
	Provider          string
	Model             string
	OpenRouterAPIKey  string
	RequestsPerMinute int
}

type ClassifyConfig struct {
	RulesFile string
}

type IconsConfig struct {
	MapFile string
}

type LibraryConfig struct {
	AutoIndex bool
}

type ServerConfig struct {
	Port     int
	APIToken string
}

func defaults() Config {
	w, t := matching.DefaultWeights(), matching.DefaultThresholds()
	return Config{
		Pipeline: PipelineConfig{
			EnableCaching:          true,
			EnableSemanticMatching: true,
			EnableVisualValidation: false,
			MaxRetries:             2,
			RetryDelayMs:           1000,
			TimeoutMs:              60000,
			Concurrency:            1,
		},
		Output:  OutputConfig{Dir: "./generated", CreateSubdirectories: true},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Matching: MatchingConfig{
			SemanticWeight:   w.Semantic,
			VisualWeight:     w.Visual,
			ExactThreshold:   t.Exact,
			SimilarThreshold: t.Similar,
			MaxCandidates:    10,
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			EmbedModel:  "nomic-embed-text",
			ReviewModel: "phi3.5",
		},
		Generation: GenerationConfig{
			Provider:          ProviderOpenRouter,
			Model:             "anthropic/claude-sonnet-4",
			RequestsPerMinute: 30,
		},
		Library: LibraryConfig{AutoIndex: true},
		Server:  ServerConfig{Port: 4100},
	}
}

// Defaults returns the built-in configuration.
func Defaults() Config { return defaults() }

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides and fills unset secrets from the platform secret
// store. It does not validate; call Validate before running work.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	b, err := newFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := loadWith(b, keychainReader{})
	cfg.Path = path
	return cfg, err
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}
	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel maps log.level to a slog level. Unknown names mean info.
func (c Config) LogLevel() slog.Level {
	if lvl, ok := logLevels[strings.ToLower(c.Log.Level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// Validate checks every setting and returns all problems joined. Each is a
// *ConfigurationError.
func (c Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Output.Dir) == "" {
		bad("output.dir", "is required")
	}
	switch c.Generation.Provider {
	case ProviderOpenRouter:
		if c.Generation.OpenRouterAPIKey == "" {
			bad("generation.openrouter_api_key", "is required for provider %q; set DESIGNGEN_OPENROUTER_API_KEY%s",
				ProviderOpenRouter, secretHint("openrouter_api_key"))
		}
	case ProviderOllama:
	default:
		bad("generation.provider", "must be %q or %q, got %q", ProviderOpenRouter, ProviderOllama, c.Generation.Provider)
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		bad("generation.model", "is required")
	}
	if c.Generation.RequestsPerMinute < 0 {
		bad("generation.requests_per_minute", "must not be negative")
	}
	if err := c.Matching.Weights().Validate(); err != nil {
		bad("matching.semantic_weight", "%v", err)
	}
	if err := c.Matching.Thresholds().Validate(); err != nil {
		bad("matching.exact_threshold", "%v", err)
	}
	if c.Matching.MaxCandidates < 1 {
		bad("matching.max_candidates", "must be at least 1")
	}
	if c.Pipeline.MaxRetries < 0 {
		bad("pipeline.max_retries", "must not be negative")
	}
	if c.Pipeline.RetryDelayMs < 0 {
		bad("pipeline.retry_delay_ms", "must not be negative")
	}
	if c.Pipeline.TimeoutMs <= 0 {
		bad("pipeline.timeout_ms", "must be positive")
	}
	if c.Pipeline.Concurrency < 1 {
		bad("pipeline.concurrency", "must be at least 1")
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		bad("log.level", "must be one of debug, info, warn, error")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		bad("server.port", "must be between 1 and 65535")
	}
	for key, path := range map[string]string{"classify.rules_file": c.Classify.RulesFile, "icons.map_file": c.Icons.MapFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			bad(key, "%v", err)
		}
	}
	sort.Slice(errs, func(i, j int) bool {
		return errs[i].(*ConfigurationError).Key < errs[j].(*ConfigurationError).Key
	})
	return errors.Join(errs...)
}

// Hash identifies the settings that change pipeline output. Secrets,
// logging, storage, server and retry settings are excluded. Rule and icon
// files contribute their content, not just their path.
func (c Config) Hash() string {
	h := sha256.New()
	for _, s := range specs {
		if !s.hashed {
			continue
		}
		fmt.Fprintf(h, "%s=%v\n", s.key, s.extract(c))
	}
	for _, path := range []string{c.Classify.RulesFile, c.Icons.MapFile} {
		if path == "" {
			continue
		}
		if b, err := os.ReadFile(path); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
