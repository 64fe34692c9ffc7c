// Package tool defines the agent's builtin tools, their registry, and
// the dispatch boundary. Tools receive decoded JSON arguments and
// return JSON-shaped maps; errors never cross the dispatch boundary,
// they reify as {"error": ...} results the model can read.
package tool

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentd-dev/agentd/internal/memory"
	"github.com/agentd-dev/agentd/internal/plan"
)

// Spec describes a tool's argument schema for the system prompt. Values
// are short type hints like "str" or "int(optional)".
type Spec struct {
	Args map[string]string `json:"args"`
}

// Tool is one callable agent capability.
type Tool interface {
	Name() string
	Spec() Spec
	Run(ctx context.Context, args map[string]any, env Env) (map[string]any, error)
}

// Env is the runtime environment tools execute against.
type Env struct {
	// WorkspaceRoot confines all filesystem tools. Absolute.
	WorkspaceRoot string

	// ConfigDir holds agent state (plans, memory, registries).
	ConfigDir string

	// RegistryPath is the MCP server registry file.
	RegistryPath string

	// ToolTimeout bounds subprocess tools that take no explicit timeout.
	ToolTimeout time.Duration

	Memory memory.Store
	Plans  *plan.Store

	// HTTP serves the web tools. Nil falls back to a 30s-timeout client.
	HTTP *http.Client
}

// NewEnv assembles an Env from already-opened stores.
func NewEnv(workspaceRoot, configDir, registryPath string, toolTimeout time.Duration, mem memory.Store, plans *plan.Store) Env {
	return Env{
		WorkspaceRoot: workspaceRoot,
		ConfigDir:     configDir,
		RegistryPath:  registryPath,
		ToolTimeout:   toolTimeout,
		Memory:        mem,
		Plans:         plans,
	}
}

var defaultHTTP = &http.Client{Timeout: 30 * time.Second}

func (e Env) httpClient() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return defaultHTTP
}

// builtin is the compact Tool implementation all builtins share.
type builtin struct {
	name string
	spec Spec
	run  func(ctx context.Context, args map[string]any, env Env) (map[string]any, error)
}

func (b *builtin) Name() string { return b.name }
func (b *builtin) Spec() Spec   { return b.spec }

func (b *builtin) Run(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	return b.run(ctx, args, env)
}

// Argument coercion. Model-produced JSON is loosely typed: numbers
// arrive as float64, and some models quote them.

func argString(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func argStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func argMap(args map[string]any, key string) map[string]any {
	if m, ok := args[key].(map[string]any); ok {
		return m
	}
	return nil
}

func argStringMap(args map[string]any, key string) map[string]string {
	m, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// tailBytes keeps the last n bytes of s, mirroring how subprocess
// streams are capped.
func tailBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
