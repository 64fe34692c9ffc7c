// Package config assembles the runtime configuration from defaults, an
// optional YAML file, AGENT_* environment variables, and CLI flags, in that
// order of precedence (flags win).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid marks configuration errors that should surface as usage errors
// (exit code 2).
var ErrInvalid = errors.New("config: invalid")

// Approval policies.
const (
	ApprovalNever     = "never"
	ApprovalOnRequest = "on-request"
	ApprovalAlways    = "always"
)

// Reasoning modes.
const (
	ReasoningOff  = "off"
	ReasoningOn   = "on"
	ReasoningAuto = "auto"
)

// Memory backends.
const (
	MemoryJSONL  = "jsonl"
	MemorySQLite = "sqlite"
)

// Schedule is one cron-driven task run in serve mode.
type Schedule struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
	Task string `yaml:"task"`
}

// Config is immutable after Load returns it.
type Config struct {
	Provider        string
	Model           string
	Approval        string
	SafeMode        string
	WorkspaceRoot   string
	MaxSteps        int
	RequestTimeout  time.Duration
	ToolTimeout     time.Duration
	Verbose         bool
	LogDir          string
	ConfigDir       string
	MCPRegistryPath string
	ServePort       int
	Reasoning       string
	ReasoningEffort string
	Stream          bool
	MemoryBackend   string
	OTLPEndpoint    string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	OllamaBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterApp     string
	LMStudioBaseURL   string

	Schedules []Schedule
}

// Overrides carries explicit CLI flag values. Zero values mean "not set";
// booleans use pointers so false can be expressed.
type Overrides struct {
	Provider        string
	Model           string
	Approval        string
	SafeMode        string
	Workspace       string
	ConfigDir       string
	OllamaURL       string
	LMStudioURL     string
	Reasoning       string
	ReasoningEffort string
	MaxSteps        int
	RequestTimeout  int
	ToolTimeout     int
	ServePort       int
	Stream          *bool
	Verbose         *bool
}

func defaults() *Config {
	return &Config{
		Provider:        "ollama",
		Model:           "llama3.1:latest",
		Approval:        ApprovalOnRequest,
		SafeMode:        "extended",
		MaxSteps:        12,
		RequestTimeout:  120 * time.Second,
		ToolTimeout:     180 * time.Second,
		LogDir:          "logs",
		ServePort:       8080,
		Reasoning:       ReasoningAuto,
		ReasoningEffort: "medium",
		Stream:          true,
		MemoryBackend:   MemoryJSONL,
		OllamaBaseURL:   "http://localhost:11434",
		LMStudioBaseURL: "http://localhost:1234",
	}
}

// Load builds the configuration. Workspace and config dir are resolved
// first (they locate the optional agent.yaml); the file cannot relocate
// itself.
func Load(o Overrides) (*Config, error) {
	cfg := defaults()

	ws := firstOf(o.Workspace, os.Getenv("AGENT_WORKSPACE"))
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolving workspace: %w", err)
		}
		ws = wd
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return nil, fmt.Errorf("config: resolving workspace %q: %w", ws, err)
	}
	cfg.WorkspaceRoot = abs

	dir := firstOf(o.ConfigDir, os.Getenv("AGENT_CONFIG_DIR"))
	if dir == "" {
		dir = ".agentic"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.WorkspaceRoot, dir)
	}
	cfg.ConfigDir = filepath.Clean(dir)
	cfg.MCPRegistryPath = filepath.Join(cfg.ConfigDir, "mcp_registry.json")

	filePath := filepath.Join(cfg.ConfigDir, "agent.yaml")
	if _, err := os.Stat(filePath); err == nil {
		file, err := loadFile(filePath)
		if err != nil {
			return nil, err
		}
		file.apply(cfg)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyOverrides(cfg, o)

	if !filepath.IsAbs(cfg.LogDir) {
		abs, err := filepath.Abs(cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("config: resolving log dir %q: %w", cfg.LogDir, err)
		}
		cfg.LogDir = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}
	setSeconds := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer number of seconds, got %q", ErrInvalid, key, v)
		}
		*dst = time.Duration(n) * time.Second
		return nil
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = ParseBool(v)
		}
	}

	setString("AGENT_PROVIDER", &cfg.Provider)
	setString("AGENT_MODEL", &cfg.Model)
	setString("AGENT_APPROVAL", &cfg.Approval)
	setString("AGENT_SAFE_MODE", &cfg.SafeMode)
	if err := setInt("AGENT_MAX_STEPS", &cfg.MaxSteps); err != nil {
		return err
	}
	if err := setSeconds("AGENT_REQUEST_TIMEOUT", &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := setSeconds("AGENT_TOOL_TIMEOUT", &cfg.ToolTimeout); err != nil {
		return err
	}
	if err := setInt("AGENT_SERVE_PORT", &cfg.ServePort); err != nil {
		return err
	}
	setString("AGENT_REASONING", &cfg.Reasoning)
	setString("AGENT_REASONING_EFFORT", &cfg.ReasoningEffort)
	setBool("AGENT_STREAM", &cfg.Stream)
	setBool("AGENT_VERBOSE", &cfg.Verbose)
	setString("AGENT_LOG_DIR", &cfg.LogDir)
	setString("AGENT_MEMORY_BACKEND", &cfg.MemoryBackend)
	setString("AGENT_OTLP_ENDPOINT", &cfg.OTLPEndpoint)

	setString("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	setString("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	setString("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	setString("ANTHROPIC_BASE_URL", &cfg.AnthropicBaseURL)
	setString("OLLAMA_BASE_URL", &cfg.OllamaBaseURL)
	setString("OPENROUTER_API_KEY", &cfg.OpenRouterAPIKey)
	setString("OPENROUTER_BASE_URL", &cfg.OpenRouterBaseURL)
	setString("OPENROUTER_REFERER", &cfg.OpenRouterReferer)
	setString("OPENROUTER_APP_NAME", &cfg.OpenRouterApp)
	setString("LMSTUDIO_BASE_URL", &cfg.LMStudioBaseURL)
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Provider != "" {
		cfg.Provider = o.Provider
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.Approval != "" {
		cfg.Approval = o.Approval
	}
	if o.SafeMode != "" {
		cfg.SafeMode = o.SafeMode
	}
	if o.OllamaURL != "" {
		cfg.OllamaBaseURL = o.OllamaURL
	}
	if o.LMStudioURL != "" {
		cfg.LMStudioBaseURL = o.LMStudioURL
	}
	if o.Reasoning != "" {
		cfg.Reasoning = o.Reasoning
	}
	if o.ReasoningEffort != "" {
		cfg.ReasoningEffort = o.ReasoningEffort
	}
	if o.MaxSteps > 0 {
		cfg.MaxSteps = o.MaxSteps
	}
	if o.RequestTimeout > 0 {
		cfg.RequestTimeout = time.Duration(o.RequestTimeout) * time.Second
	}
	if o.ToolTimeout > 0 {
		cfg.ToolTimeout = time.Duration(o.ToolTimeout) * time.Second
	}
	if o.ServePort > 0 {
		cfg.ServePort = o.ServePort
	}
	if o.Stream != nil {
		cfg.Stream = *o.Stream
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case "ollama", "openai", "anthropic", "openrouter", "lmstudio":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalid, c.Provider)
	}
	switch c.Approval {
	case ApprovalNever, ApprovalOnRequest, ApprovalAlways:
	default:
		return fmt.Errorf("%w: approval must be never, on-request, or always, got %q", ErrInvalid, c.Approval)
	}
	switch c.SafeMode {
	case "safe", "extended", "unrestricted":
	default:
		return fmt.Errorf("%w: safe-mode must be safe, extended, or unrestricted, got %q", ErrInvalid, c.SafeMode)
	}
	switch c.Reasoning {
	case ReasoningOff, ReasoningOn, ReasoningAuto:
	default:
		return fmt.Errorf("%w: reasoning must be off, on, or auto, got %q", ErrInvalid, c.Reasoning)
	}
	switch c.ReasoningEffort {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("%w: reasoning-effort must be low, medium, or high, got %q", ErrInvalid, c.ReasoningEffort)
	}
	switch c.MemoryBackend {
	case MemoryJSONL, MemorySQLite:
	default:
		return fmt.Errorf("%w: memory backend must be jsonl or sqlite, got %q", ErrInvalid, c.MemoryBackend)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("%w: max-steps must be >= 1, got %d", ErrInvalid, c.MaxSteps)
	}
	if c.ServePort < 1 || c.ServePort > 65535 {
		return fmt.Errorf("%w: port must be in 1..65535, got %d", ErrInvalid, c.ServePort)
	}
	if !filepath.IsAbs(c.WorkspaceRoot) {
		return fmt.Errorf("%w: workspace root must be absolute, got %q", ErrInvalid, c.WorkspaceRoot)
	}
	for i, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" || s.Task == "" {
			return fmt.Errorf("%w: schedule %d needs name, cron, and task", ErrInvalid, i)
		}
	}
	return nil
}

// ParseBool accepts the loose truthy forms used by the AGENT_* variables.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
