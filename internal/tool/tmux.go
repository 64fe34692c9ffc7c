package tool

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	tmuxTimeout        = 30 * time.Second
	defaultTmuxSession = "agent"
)

func tmuxTools() []Tool {
	return []Tool{
		&builtin{
			name: "tmux",
			spec: Spec{Args: map[string]string{
				"action":     "str(ensure|send|capture|list)",
				"name":       "str(optional)",
				"cwd":        "str(optional)",
				"command":    "str(optional)",
				"last_lines": "int(optional)",
			}},
			run: runTmux,
		},
	}
}

func runTmux(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	action := strings.ToLower(argString(args, "action", ""))
	name := argString(args, "name", "")
	if name == "" {
		name = defaultTmuxSession
	}
	switch action {
	case "ensure":
		return tmuxEnsure(ctx, name, argString(args, "cwd", ""), env)
	case "send":
		return tmuxSend(ctx, name, argString(args, "command", ""), env)
	case "capture":
		return tmuxCapture(ctx, name, argInt(args, "last_lines", 500), env)
	case "list":
		return tmuxList(ctx, env)
	}
	return map[string]any{"error": "unknown tmux action " + action}, nil
}

func tmuxRun(ctx context.Context, env Env, argv ...string) (map[string]any, error) {
	res, err := runArgv(ctx, argv, env.WorkspaceRoot, tmuxTimeout)
	if err != nil {
		return nil, err
	}
	if res.notFound || res.timedOut || res.failure != "" {
		detail := res.failure
		if res.notFound {
			detail = "tmux not found"
		}
		if res.timedOut {
			detail = "timeout"
		}
		return map[string]any{"args": argv, "error": detail}, nil
	}
	return map[string]any{
		"args":       argv,
		"returncode": res.code,
		"stdout":     res.stdout,
		"stderr":     res.stderr,
	}, nil
}

func tmuxEnsure(ctx context.Context, name, cwd string, env Env) (map[string]any, error) {
	chk, err := tmuxRun(ctx, env, "tmux", "-V")
	if err != nil {
		return nil, err
	}
	if rc, ok := chk["returncode"].(int); !ok || rc != 0 {
		return map[string]any{"error": "tmux not available", "detail": chk}, nil
	}

	has, err := tmuxRun(ctx, env, "tmux", "has-session", "-t", name)
	if err != nil {
		return nil, err
	}
	if rc, ok := has["returncode"].(int); ok && rc == 0 {
		return map[string]any{"session": name, "created": false}, nil
	}

	argv := []string{"tmux", "new-session", "-d", "-s", name}
	if cwd != "" {
		argv = append(argv, "-c", cwd)
	}
	res, err := tmuxRun(ctx, env, argv...)
	if err != nil {
		return nil, err
	}
	if rc, ok := res["returncode"].(int); ok && rc == 0 {
		return map[string]any{"session": name, "created": true}, nil
	}
	return map[string]any{"session": name, "error": res}, nil
}

// tmuxSend types command into the session and presses the literal
// Enter key token.
func tmuxSend(ctx context.Context, name, command string, env Env) (map[string]any, error) {
	return tmuxRun(ctx, env, "tmux", "send-keys", "-t", name, command, "Enter")
}

func tmuxCapture(ctx context.Context, name string, lastLines int, env Env) (map[string]any, error) {
	res, err := tmuxRun(ctx, env, "tmux", "capture-pane", "-t", name, "-p", "-S", "-"+strconv.Itoa(lastLines))
	if err != nil {
		return nil, err
	}
	out, _ := res["stdout"].(string)
	return map[string]any{"session": name, "output": out, "returncode": res["returncode"]}, nil
}

func tmuxList(ctx context.Context, env Env) (map[string]any, error) {
	res, err := tmuxRun(ctx, env, "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		return nil, err
	}
	if rc, ok := res["returncode"].(int); !ok || rc != 0 {
		return map[string]any{"error": res}, nil
	}
	out, _ := res["stdout"].(string)
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return map[string]any{"sessions": names}, nil
}
