package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry holds registered tools. Instance-based, not global, so tests
// can build their own.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. It returns ErrEmptyName or ErrDuplicate when
// the name is unusable.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema returns name → Spec for every registered tool. The engine
// embeds its JSON form in the system prompt.
func (r *Registry) Schema() map[string]Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Spec, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.Spec()
	}
	return out
}

// Dispatch runs the named tool and normalizes every failure mode into a
// result map: unknown tools, returned errors, and panics all come back
// as {"error": ...}. The result is never nil.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, env Env) (result map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			result = map[string]any{"error": fmt.Sprintf("panic: %v", rec)}
		}
	}()

	t, ok := r.Get(name)
	if !ok {
		return map[string]any{"error": "unknown tool " + name}
	}
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.Run(ctx, args, env)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Builtins returns a registry with the full builtin tool set. It panics
// on registration conflicts, which only a bad edit here can cause.
func Builtins() *Registry {
	r := NewRegistry()
	all := [][]Tool{
		shellTools(),
		fsTools(),
		webTools(),
		tmuxTools(),
		serviceTools(),
		gitTools(),
		memoryTools(),
		planTools(),
		mcpTools(),
	}
	for _, group := range all {
		for _, t := range group {
			if err := r.Register(t); err != nil {
				panic(fmt.Sprintf("tool: builtin registration: %v", err))
			}
		}
	}
	return r
}
