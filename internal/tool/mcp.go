package tool

import (
	"context"
	"strings"

	"github.com/agentd-dev/agentd/internal/mcp"
)

func mcpTools() []Tool {
	return []Tool{
		&builtin{
			name: "mcp",
			spec: Spec{Args: map[string]string{
				"action":    "str(register|unregister|list_servers|list_tools|call_tool|get_config|set_config)",
				"name":      "str(optional)",
				"transport": "str(optional)",
				"command":   "str|list(optional)",
				"cwd":       "str(optional)",
				"env":       "object(optional)",
				"tool":      "str(optional)",
				"arguments": "object(optional)",
				"config":    "object(optional)",
			}},
			run: runMCP,
		},
	}
}

func runMCP(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	action := strings.ToLower(argString(args, "action", ""))
	reg, err := mcp.LoadRegistry(env.RegistryPath)
	if err != nil {
		return nil, err
	}

	switch action {
	case "list_servers":
		return map[string]any{"path": reg.Path(), "servers": serverDicts(reg.Servers())}, nil

	case "register":
		name := argString(args, "name", "")
		if name == "" {
			return map[string]any{"error": "name is required"}, nil
		}
		command, err := mcp.ParseCommand(args["command"])
		if err != nil {
			return map[string]any{"error": err.Error()}, nil
		}
		srv := mcp.Server{
			Name:      name,
			Transport: argString(args, "transport", ""),
			Command:   command,
			Cwd:       argString(args, "cwd", ""),
			Env:       argStringMap(args, "env"),
			Enabled:   true,
		}
		reg.Put(srv)
		if err := reg.Save(); err != nil {
			return nil, err
		}
		saved, _ := reg.Get(name)
		return map[string]any{"saved": true, "server": serverDict(saved), "path": reg.Path()}, nil

	case "unregister":
		name := argString(args, "name", "")
		if name == "" {
			return map[string]any{"error": "name is required"}, nil
		}
		if !reg.Remove(name) {
			return map[string]any{"removed": false, "error": "not found"}, nil
		}
		if err := reg.Save(); err != nil {
			return nil, err
		}
		return map[string]any{"removed": true, "name": name}, nil

	case "get_config":
		return map[string]any{
			"path":   reg.Path(),
			"config": map[string]any{"servers": serverDicts(reg.Servers())},
		}, nil

	case "set_config":
		cfg := argMap(args, "config")
		items, _ := cfg["servers"].([]any)
		servers := make([]mcp.Server, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			srv, err := serverFromMap(m)
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			servers = append(servers, srv)
		}
		reg.Replace(servers)
		if err := reg.Save(); err != nil {
			return nil, err
		}
		return map[string]any{"saved": true, "count": len(reg.Servers())}, nil

	case "list_tools", "call_tool":
		name := argString(args, "name", "")
		if name == "" {
			return map[string]any{"error": "name is required"}, nil
		}
		srv, ok := reg.Get(name)
		if !ok {
			return map[string]any{"error": "server " + name + " not found"}, nil
		}
		client, err := mcp.Dial(ctx, srv, env.ToolTimeout)
		if err != nil {
			return map[string]any{"error": err.Error()}, nil
		}
		defer client.Close()
		if action == "list_tools" {
			res, err := client.ListTools(ctx)
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}
			return res, nil
		}
		toolName := argString(args, "tool", "")
		if toolName == "" {
			return map[string]any{"error": "tool is required"}, nil
		}
		res, err := client.CallTool(ctx, toolName, argMap(args, "arguments"))
		if err != nil {
			return map[string]any{"error": err.Error()}, nil
		}
		return res, nil
	}
	return map[string]any{"error": "unknown action " + action}, nil
}

func serverDict(srv mcp.Server) map[string]any {
	cwd := any(nil)
	if srv.Cwd != "" {
		cwd = srv.Cwd
	}
	return map[string]any{
		"name":      srv.Name,
		"transport": srv.Transport,
		"command":   srv.Command,
		"cwd":       cwd,
		"env":       srv.Env,
		"enabled":   srv.Enabled,
	}
}

func serverDicts(servers []mcp.Server) []any {
	out := make([]any, 0, len(servers))
	for _, srv := range servers {
		out = append(out, serverDict(srv))
	}
	return out
}

func serverFromMap(m map[string]any) (mcp.Server, error) {
	name := argString(m, "name", "")
	if name == "" {
		return mcp.Server{}, errMissingServerName
	}
	command, err := mcp.ParseCommand(m["command"])
	if err != nil {
		return mcp.Server{}, err
	}
	return mcp.Server{
		Name:      name,
		Transport: argString(m, "transport", ""),
		Command:   command,
		Cwd:       argString(m, "cwd", ""),
		Env:       argStringMap(m, "env"),
		Enabled:   argBool(m, "enabled", true),
	}, nil
}
