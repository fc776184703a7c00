package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"otto/internal/config"
	"otto/internal/engine"
	"otto/internal/events"
	"otto/internal/intent"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/observability"
	"otto/internal/orchestrator"
	"otto/internal/planner"
	"otto/internal/ports"
	"otto/internal/toolregistry"
	"otto/internal/tools/builtin"
)

const toolCacheSize = 256

// Container holds the fully wired object graph shared by every command.
type Container struct {
	Config       config.Config
	LLM          ports.LLMClient
	Memory       *memory.Manager
	Registry     *toolregistry.Registry
	Dispatcher   ports.ToolDispatcher
	Bus          *events.Bus
	Orchestrator *orchestrator.Orchestrator
	Obs          *observability.Observability

	logger logging.Logger
}

// buildContainer loads configuration and wires llm, memory, tools, planner,
// engine, and orchestrator together.
func buildContainer(configPath string, withObservability bool) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	obs := observability.Disabled()
	if withObservability {
		obs, err = observability.New(configPath)
		if err != nil {
			return nil, err
		}
	}

	llmClient := llm.Instrument(llm.NewClient(cfg.LLM), obs)

	embedder, err := memory.NewHTTPEmbedder(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	storage, err := expandHome(cfg.Embedding.Storage)
	if err != nil {
		return nil, err
	}
	mem, err := memory.NewManager(cfg.Memory, storage, embedder, llmClient)
	if err != nil {
		return nil, fmt.Errorf("open memory stores: %w", err)
	}

	registry := toolregistry.NewRegistry()
	if err := builtin.RegisterAll(registry, builtin.Config{
		WorkDir:        cfg.Tools.WorkDir,
		SearchAPIKey:   cfg.Tools.SearchAPIKey,
		SearchEndpoint: cfg.Tools.SearchEndpoint,
		LLM:            llmClient,
	}); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	dispatcher, err := toolregistry.NewResultCache(registry, toolCacheSize, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("build tool cache: %w", err)
	}

	wordLists := intent.DefaultWordLists()
	if cfg.Intent.WordListsFile != "" {
		wordLists, err = intent.LoadWordLists(cfg.Intent.WordListsFile)
		if err != nil {
			return nil, err
		}
	}
	var templates []planner.Template
	if cfg.Planner.TemplatesFile != "" {
		templates, err = planner.LoadTemplates(cfg.Planner.TemplatesFile)
		if err != nil {
			return nil, err
		}
	}

	bus := events.NewBus()
	eng := engine.New(dispatcher, cfg.Engine)
	eng.SetObservability(obs)
	orch := orchestrator.New(
		intent.NewClassifier(wordLists),
		planner.New(llmClient, registry, templates),
		eng,
		mem,
		bus,
		llmClient,
	)
	orch.SetObservability(obs)

	return &Container{
		Config:       cfg,
		LLM:          llmClient,
		Memory:       mem,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Bus:          bus,
		Orchestrator: orch,
		Obs:          obs,
		logger:       logging.NewComponentLogger("CLI"),
	}, nil
}

// expandHome resolves a leading ~ against the current user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
