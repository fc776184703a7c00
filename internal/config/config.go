package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration for the orchestrator service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Intent    IntentConfig    `mapstructure:"intent"`
	Planner   PlannerConfig   `mapstructure:"planner"`
}

// IntentConfig points at an optional classifier lexicon override.
type IntentConfig struct {
	WordListsFile string `mapstructure:"word_lists_file"`
}

// PlannerConfig points at an optional plan-template catalog override.
type PlannerConfig struct {
	TemplatesFile string `mapstructure:"templates_file"`
}

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig configures the LLM backend transport.
type LLMConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// EmbeddingConfig configures the memory embedder.
type EmbeddingConfig struct {
	Model   string `mapstructure:"model"`
	Storage string `mapstructure:"storage"` // directory for the persisted vector stores
}

// EngineConfig bounds execution concurrency and retries.
type EngineConfig struct {
	MaxParallelSteps   int `mapstructure:"max_parallel_steps"`   // per-plan fan-out
	WorkerPoolSize     int `mapstructure:"worker_pool_size"`     // process-wide
	MaxRetries         int `mapstructure:"max_retries"`          // idempotent tools only
	PlanTimeoutSeconds int `mapstructure:"plan_timeout_seconds"` // bounds the whole plan
}

// MemoryConfig bounds the tiered memory stores.
type MemoryConfig struct {
	WorkingCapacity    int `mapstructure:"working_capacity"`
	EpisodicCapacity   int `mapstructure:"episodic_capacity"`
	ConceptCapacity    int `mapstructure:"concept_capacity"`
	FactCapacity       int `mapstructure:"fact_capacity"`
	ProceduralCapacity int `mapstructure:"procedural_capacity"`
}

// ToolsConfig carries tool-specific settings.
type ToolsConfig struct {
	SearchAPIKey   string `mapstructure:"search_api_key"`
	SearchEndpoint string `mapstructure:"search_endpoint"`
	WorkDir        string `mapstructure:"work_dir"`
}

// PlanTimeout converts the configured plan timeout into a duration.
func (c EngineConfig) PlanTimeout() time.Duration {
	return time.Duration(c.PlanTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Endpoint:       "http://localhost:11434/v1",
			Model:          "llama3.1",
			MaxTokens:      4096,
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
		Embedding: EmbeddingConfig{
			Model:   "nomic-embed-text",
			Storage: "~/.otto/memory",
		},
		Engine: EngineConfig{
			MaxParallelSteps:   4,
			WorkerPoolSize:     32,
			MaxRetries:         2,
			PlanTimeoutSeconds: 600,
		},
		Memory: MemoryConfig{
			WorkingCapacity:    100,
			EpisodicCapacity:   2000,
			ConceptCapacity:    20000,
			FactCapacity:       100000,
			ProceduralCapacity: 2000,
		},
		Tools: ToolsConfig{
			WorkDir: ".",
		},
	}
}

// Load reads otto-config.yaml (from path, $HOME, or the working directory)
// and applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigName("otto-config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	defaults := Default()
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	v.SetDefault("llm.endpoint", defaults.LLM.Endpoint)
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	v.SetDefault("llm.temperature", defaults.LLM.Temperature)
	v.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)
	v.SetDefault("embedding.model", defaults.Embedding.Model)
	v.SetDefault("embedding.storage", defaults.Embedding.Storage)
	v.SetDefault("engine.max_parallel_steps", defaults.Engine.MaxParallelSteps)
	v.SetDefault("engine.worker_pool_size", defaults.Engine.WorkerPoolSize)
	v.SetDefault("engine.max_retries", defaults.Engine.MaxRetries)
	v.SetDefault("engine.plan_timeout_seconds", defaults.Engine.PlanTimeoutSeconds)
	v.SetDefault("memory.working_capacity", defaults.Memory.WorkingCapacity)
	v.SetDefault("memory.episodic_capacity", defaults.Memory.EpisodicCapacity)
	v.SetDefault("memory.concept_capacity", defaults.Memory.ConceptCapacity)
	v.SetDefault("memory.fact_capacity", defaults.Memory.FactCapacity)
	v.SetDefault("memory.procedural_capacity", defaults.Memory.ProceduralCapacity)
	v.SetDefault("tools.work_dir", defaults.Tools.WorkDir)

	v.SetEnvPrefix("OTTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known unprefixed variables take precedence over the file.
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// bindEnvAliases maps the documented deployment variables onto config keys.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"embedding.model":             {"EMBEDDING_MODEL"},
		"embedding.storage":           {"EMBEDDING_STORAGE"},
		"engine.max_parallel_steps":   {"MAX_PARALLEL_STEPS"},
		"engine.plan_timeout_seconds": {"PLAN_TIMEOUT_SECONDS"},
		"llm.endpoint":                {"LLM_ENDPOINT"},
		"tools.search_api_key":        {"TAVILY_API_KEY"},
	}
	for key, envs := range aliases {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}
