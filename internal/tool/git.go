package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/shlex"
)

const gitTimeout = 120 * time.Second

func gitTools() []Tool {
	return []Tool{
		&builtin{
			name: "git",
			spec: Spec{Args: map[string]string{"args": "str", "cwd": "str(optional)"}},
			run:  runGit,
		},
	}
}

func runGit(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	gitArgs, err := shlex.Split(argString(args, "args", ""))
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	cwd := argString(args, "cwd", "")
	if cwd == "" {
		cwd = env.WorkspaceRoot
	}

	argv := append([]string{"git"}, gitArgs...)
	res, err := runArgv(ctx, argv, cwd, gitTimeout)
	if err != nil {
		return nil, err
	}
	switch {
	case res.notFound:
		return map[string]any{"error": "git not found"}, nil
	case res.timedOut:
		return map[string]any{"error": fmt.Sprintf("timeout after %ds", int(gitTimeout/time.Second))}, nil
	case res.failure != "":
		return map[string]any{"error": res.failure}, nil
	}
	return map[string]any{
		"returncode": res.code,
		"stdout":     tailBytes(res.stdout, streamCap),
		"stderr":     tailBytes(res.stderr, streamCap),
	}, nil
}
