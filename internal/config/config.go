// Package config loads and persists the engine configuration from
// .ekb/config.json, falling back to built-in defaults when the file is
// absent.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration (v1 schema)
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Query     QueryConfig     `json:"query" mapstructure:"query"`
	Classify  ClassifyConfig  `json:"classify" mapstructure:"classify"`
	Projects  ProjectsConfig  `json:"projects" mapstructure:"projects"`
	Synthesis SynthesisConfig `json:"synthesis" mapstructure:"synthesis"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// StorageConfig selects the knowledge base realization
type StorageConfig struct {
	// Backend is "memory" or "sqlite"
	Backend      string `json:"backend" mapstructure:"backend"`
	SnapshotPath string `json:"snapshotPath" mapstructure:"snapshotPath"`
	DBPath       string `json:"dbPath" mapstructure:"dbPath"`
}

// QueryConfig contains ranking thresholds and result limits
type QueryConfig struct {
	// MinScoreThreshold is the top-score floor below which the evidence
	// gate rejects an answer unless explicit IDs were mentioned
	MinScoreThreshold float64 `json:"minScoreThreshold" mapstructure:"minScoreThreshold"`
	// SemanticFloor is the minimum raw semantic score that keeps a
	// candidate with zero lexical overlap alive
	SemanticFloor  float64 `json:"semanticFloor" mapstructure:"semanticFloor"`
	ResultLimit    int     `json:"resultLimit" mapstructure:"resultLimit"`
	AnchorLimit    int     `json:"anchorLimit" mapstructure:"anchorLimit"`
	CandidateLimit int     `json:"candidateLimit" mapstructure:"candidateLimit"`
}

// ClassifyConfig points at an optional declarative intent rule file
type ClassifyConfig struct {
	RulesPath string `json:"rulesPath" mapstructure:"rulesPath"`
}

// ProjectsConfig points at an optional project registry file
type ProjectsConfig struct {
	RegistryPath string `json:"registryPath" mapstructure:"registryPath"`
}

// SynthesisConfig controls the optional LLM answer synthesis
type SynthesisConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	BaseURL        string `json:"baseUrl" mapstructure:"baseUrl"`
	Model          string `json:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr          string `json:"addr" mapstructure:"addr"`
	AuthTokenFile string `json:"authTokenFile" mapstructure:"authTokenFile"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Backend:      "memory",
			SnapshotPath: "graph_snapshot.json",
			DBPath:       filepath.Join(".ekb", "kb.db"),
		},
		Query: QueryConfig{
			MinScoreThreshold: 0.2,
			SemanticFloor:     0.05,
			ResultLimit:       12,
			AnchorLimit:       6,
			CandidateLimit:    36,
		},
		Classify: ClassifyConfig{},
		Projects: ProjectsConfig{},
		Synthesis: SynthesisConfig{
			Enabled:        false,
			BaseURL:        "http://127.0.0.1:1234/v1",
			Model:          "qwen2.5-7b-instruct",
			TimeoutSeconds: 40,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.ekb/config.json
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".ekb"))

	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to <root>/.ekb/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".ekb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return &ConfigError{Field: "storage.backend", Message: "must be 'memory' or 'sqlite'"}
	}
	if c.Query.MinScoreThreshold < 0 {
		return &ConfigError{Field: "query.minScoreThreshold", Message: "must be non-negative"}
	}
	if c.Query.ResultLimit <= 0 {
		return &ConfigError{Field: "query.resultLimit", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
