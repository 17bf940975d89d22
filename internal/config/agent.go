package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig describes the embedder an identity is configured to use.
// The embedder itself is supplied by the caller via the Embedder interface;
// this is only the declared shape it is expected to produce.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SearchConfig holds default hybrid search weights.
type SearchConfig struct {
	Alpha    float64 `yaml:"alpha"`
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// MemoryConfig holds memory-store tuning knobs.
type MemoryConfig struct {
	DatabasePath   string  `yaml:"database_path"`
	SessionBudget  int     `yaml:"session_budget"`
	DecayRate      float64 `yaml:"decay_rate"`
}

// AgentConfig is the parsed contents of agent.yaml: per-identity metadata,
// signing options, and component defaults. Unlike Config (environment
// variables, process-wide), this travels with the identity directory.
type AgentConfig struct {
	Name      string   `yaml:"name"`
	DID       string   `yaml:"did,omitempty"`
	Harnesses []string `yaml:"harnesses,omitempty"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// DefaultAgentConfig returns the baseline agent.yaml contents for a newly
// initialized identity rooted at home.
func DefaultAgentConfig(home string) AgentConfig {
	return AgentConfig{
		Name: "agent",
		Embedding: EmbeddingConfig{
			Provider:   "auto",
			Model:      "mxbai-embed-large",
			Dimensions: 1024,
		},
		Search: SearchConfig{
			Alpha:    0.7,
			TopK:     50,
			MinScore: 0.1,
		},
		Memory: MemoryConfig{
			DatabasePath:  filepath.Join(home, "memory", "memories.db"),
			SessionBudget: 4000,
			DecayRate:     0.03,
		},
	}
}

// LoadAgentConfig reads and parses agent.yaml from home. If the file does
// not exist, a default config is returned (not an error) so a fresh
// identity directory can be initialized lazily.
func LoadAgentConfig(home string) (AgentConfig, error) {
	path := filepath.Join(home, "agent.yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultAgentConfig(home), nil
	}
	if err != nil {
		return AgentConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := DefaultAgentConfig(home)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Save writes the config back to home/agent.yaml.
func (c AgentConfig) Save(home string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling agent.yaml: %w", err)
	}
	path := filepath.Join(home, "agent.yaml")
	if err := os.MkdirAll(home, 0o700); err != nil {
		return fmt.Errorf("config: creating %s: %w", home, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the agent config is internally consistent.
func (c AgentConfig) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("config: agent.yaml name must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("config: agent.yaml embedding.dimensions must be positive"))
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		errs = append(errs, errors.New("config: agent.yaml search.alpha must be in [0,1]"))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, errors.New("config: agent.yaml search.top_k must be positive"))
	}
	if c.Memory.DatabasePath == "" {
		errs = append(errs, errors.New("config: agent.yaml memory.database_path must not be empty"))
	}
	if c.Memory.DecayRate <= 0 {
		errs = append(errs, errors.New("config: agent.yaml memory.decay_rate must be positive"))
	}

	return errors.Join(errs...)
}

// harnessesOrDefault parses SIGNET_HARNESSES as a fallback override for the
// YAML-declared harness list, mirroring the env-first override convention
// the rest of Config uses.
func harnessesOrDefault(fallback []string) []string {
	return envStrSlice("SIGNET_HARNESSES", fallback)
}

// validatedKeyFilePath validates an optional explicit key file path, reusing
// the same permission checks Config applies to its own key material.
func validatedKeyFilePath(path string) error {
	if path == "" {
		return nil
	}
	return validateKeyFile(path, "SIGNET_KEY_FILE")
}
