// Package mcp connects the agent to model-context-protocol tool servers
// running as child processes, and keeps the server registry file.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
)

// Transports.
const (
	TransportStdio  = "stdio"
	TransportNDJSON = "ndjson"
)

// Server is one registry entry.
type Server struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	Command   []string          `json:"command"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env"`
	Enabled   bool              `json:"enabled"`
}

// fileServer is the on-disk shape. Command accepts either an argv list
// or a shell-style string; enabled defaults to true when absent.
type fileServer struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	Command   json.RawMessage   `json:"command"`
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env"`
	Enabled   *bool             `json:"enabled"`
}

// Registry is the configured server set, backed by one JSON file of the
// form {"servers": [...]}. Each dispatch loads its own copy; the type is
// not safe for concurrent use.
type Registry struct {
	path    string
	servers []Server
}

// LoadRegistry reads the registry at path. Missing and unparseable files
// both yield an empty registry; the next Save rewrites them.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: read registry %s: %w", path, err)
	}
	var file struct {
		Servers []fileServer `json:"servers"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return r, nil
	}
	for _, fs := range file.Servers {
		srv := Server{
			Name:      fs.Name,
			Transport: fs.Transport,
			Cwd:       fs.Cwd,
			Env:       fs.Env,
		}
		if cmd, err := decodeCommand(fs.Command); err == nil {
			srv.Command = cmd
		}
		srv.Enabled = fs.Enabled == nil || *fs.Enabled
		r.servers = append(r.servers, normalize(srv))
	}
	return r, nil
}

// Path returns the backing file path.
func (r *Registry) Path() string { return r.path }

// Servers returns the entries in file order.
func (r *Registry) Servers() []Server { return r.servers }

// Get returns the named server.
func (r *Registry) Get(name string) (Server, bool) {
	for _, srv := range r.servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return Server{}, false
}

// Put adds srv, replacing any entry with the same name in place.
func (r *Registry) Put(srv Server) {
	srv = normalize(srv)
	for i, cur := range r.servers {
		if cur.Name == srv.Name {
			r.servers[i] = srv
			return
		}
	}
	r.servers = append(r.servers, srv)
}

// Remove deletes the named server and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	for i, srv := range r.servers {
		if srv.Name == name {
			r.servers = append(r.servers[:i], r.servers[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the whole server set.
func (r *Registry) Replace(servers []Server) {
	r.servers = nil
	for _, srv := range servers {
		r.Put(srv)
	}
}

// Save writes the registry back to its file, creating parent directories
// as needed.
func (r *Registry) Save() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mcp: create %s: %w", dir, err)
		}
	}
	servers := r.servers
	if servers == nil {
		servers = []Server{}
	}
	data, err := json.MarshalIndent(map[string]any{"servers": servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("mcp: encode registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("mcp: write registry %s: %w", r.path, err)
	}
	return nil
}

// ParseCommand accepts an argv list or a shell-style command string.
func ParseCommand(v any) ([]string, error) {
	switch cmd := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return cmd, nil
	case []any:
		out := make([]string, 0, len(cmd))
		for _, item := range cmd {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, nil
	case string:
		parts, err := shlex.Split(cmd)
		if err != nil {
			return nil, fmt.Errorf("mcp: parse command %q: %w", cmd, err)
		}
		return parts, nil
	default:
		return nil, errors.New("mcp: command must be list or string")
	}
}

func decodeCommand(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return ParseCommand(str)
	}
	return nil, errors.New("mcp: command must be list or string")
}

func normalize(srv Server) Server {
	if srv.Transport == "" {
		srv.Transport = TransportStdio
	}
	if srv.Command == nil {
		srv.Command = []string{}
	}
	if srv.Env == nil {
		srv.Env = map[string]string{}
	}
	return srv
}
