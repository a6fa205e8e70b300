package main

import (
	"context"
	"fmt"
	"os"

	"ekb/internal/classify"
	"ekb/internal/config"
	"ekb/internal/engine"
	"ekb/internal/kb"
	"ekb/internal/logging"
	"ekb/internal/storage"
	"ekb/internal/synth"
)

// getRepoRoot returns the knowledge base root directory.
func getRepoRoot() (string, error) {
	return os.Getwd()
}

// mustGetRepoRoot returns the knowledge base root or exits on error.
func mustGetRepoRoot() string {
	root, err := getRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// loadConfig loads configuration, falling back to defaults on error.
func loadConfig(root string, logger *logging.Logger) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		logger.Warn("Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
	}
	return cfg
}

// buildClassifier wires the intent rules and project registry from the
// configured files, keeping the built-in defaults when unset.
func buildClassifier(cfg *config.Config) (*classify.Classifier, error) {
	rules := classify.DefaultRuleSet()
	if cfg.Classify.RulesPath != "" {
		loaded, err := classify.LoadRuleSet(cfg.Classify.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load classify rules: %w", err)
		}
		rules = loaded
	}

	registry := classify.DefaultRegistry()
	if cfg.Projects.RegistryPath != "" {
		loaded, err := classify.LoadRegistry(cfg.Projects.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("load project registry: %w", err)
		}
		registry = loaded
	}

	return classify.NewClassifier(rules, registry), nil
}

// openStore opens the requested storage backend.
func openStore(backend string, cfg *config.Config, logger *logging.Logger) (kb.Store, error) {
	switch backend {
	case "memory":
		return kb.OpenSnapshot(cfg.Storage.SnapshotPath)
	case "sqlite":
		db, err := storage.Open(cfg.Storage.DBPath, logger)
		if err != nil {
			return nil, err
		}
		store, err := storage.OpenStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory or sqlite)", backend)
	}
}

// resolveBackend picks the effective backend from the CLI flag or config.
func resolveBackend(cfg *config.Config) string {
	if backendFlag != "" {
		return backendFlag
	}
	return cfg.Storage.Backend
}

// buildEngine assembles a query engine over the given backend. The
// engine answers with the raw retrieval result; callers that want LLM
// restatement attach a synthesizer themselves.
func buildEngine(backend string, cfg *config.Config, logger *logging.Logger) (*engine.Engine, error) {
	classifier, err := buildClassifier(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(backend, cfg, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(store, classifier, cfg.Query, logger), nil
}

// newSynth builds the synthesis client from config, or nil when
// synthesis is disabled.
func newSynth(cfg *config.Config, logger *logging.Logger) *synth.Client {
	if !cfg.Synthesis.Enabled {
		return nil
	}
	return synth.New(cfg.Synthesis, os.Getenv("EKB_API_KEY"), logger)
}

// mustBuildEngine builds the engine or exits on error.
func mustBuildEngine(backend string, cfg *config.Config, logger *logging.Logger) *engine.Engine {
	eng, err := buildEngine(backend, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	return eng
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newLogger creates a logger with the configured format and level.
func newLogger(cfg *config.Config) *logging.Logger {
	format := logging.HumanFormat
	if cfg != nil && cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	level := logging.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		level = logging.LogLevel(cfg.Logging.Level)
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  level,
	})
}
