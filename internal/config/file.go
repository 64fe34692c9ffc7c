package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// fileConfig is the agent.yaml schema. Workspace and config dir are absent
// on purpose: the file lives inside the config dir.
type fileConfig struct {
	Provider        string     `yaml:"provider"`
	Model           string     `yaml:"model"`
	Approval        string     `yaml:"approval"`
	SafeMode        string     `yaml:"safe_mode"`
	MaxSteps        int        `yaml:"max_steps"`
	RequestTimeout  int        `yaml:"request_timeout"`
	ToolTimeout     int        `yaml:"tool_timeout"`
	ServePort       int        `yaml:"serve_port"`
	Reasoning       string     `yaml:"reasoning"`
	ReasoningEffort string     `yaml:"reasoning_effort"`
	Stream          *bool      `yaml:"stream"`
	Verbose         *bool      `yaml:"verbose"`
	LogDir          string     `yaml:"log_dir"`
	MemoryBackend   string     `yaml:"memory_backend"`
	OTLPEndpoint    string     `yaml:"otlp_endpoint"`
	OllamaBaseURL   string     `yaml:"ollama_base_url"`
	LMStudioBaseURL string     `yaml:"lmstudio_base_url"`
	Schedules       []Schedule `yaml:"schedules"`
}

// loadFile reads agent.yaml, expands environment variables, and parses it.
func loadFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(expanded, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	if fc.Provider != "" {
		cfg.Provider = fc.Provider
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.Approval != "" {
		cfg.Approval = fc.Approval
	}
	if fc.SafeMode != "" {
		cfg.SafeMode = fc.SafeMode
	}
	if fc.MaxSteps > 0 {
		cfg.MaxSteps = fc.MaxSteps
	}
	if fc.RequestTimeout > 0 {
		cfg.RequestTimeout = time.Duration(fc.RequestTimeout) * time.Second
	}
	if fc.ToolTimeout > 0 {
		cfg.ToolTimeout = time.Duration(fc.ToolTimeout) * time.Second
	}
	if fc.ServePort > 0 {
		cfg.ServePort = fc.ServePort
	}
	if fc.Reasoning != "" {
		cfg.Reasoning = fc.Reasoning
	}
	if fc.ReasoningEffort != "" {
		cfg.ReasoningEffort = fc.ReasoningEffort
	}
	if fc.Stream != nil {
		cfg.Stream = *fc.Stream
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.LogDir != "" {
		cfg.LogDir = fc.LogDir
	}
	if fc.MemoryBackend != "" {
		cfg.MemoryBackend = fc.MemoryBackend
	}
	if fc.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = fc.OTLPEndpoint
	}
	if fc.OllamaBaseURL != "" {
		cfg.OllamaBaseURL = fc.OllamaBaseURL
	}
	if fc.LMStudioBaseURL != "" {
		cfg.LMStudioBaseURL = fc.LMStudioBaseURL
	}
	if len(fc.Schedules) > 0 {
		cfg.Schedules = append([]Schedule(nil), fc.Schedules...)
	}
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil
		defaultVal := ""
		if hasDefault {
			defaultVal = string(subs[2])
		}

		value, ok := os.LookupEnv(name)
		if ok {
			return []byte(value)
		}

		if hasDefault {
			return []byte(defaultVal)
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
