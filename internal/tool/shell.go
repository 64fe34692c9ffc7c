package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/shlex"
)

// streamCap is how much of each subprocess stream survives into the
// result. The tail is kept: the end of a long build log is the part
// that matters.
const streamCap = 50_000

func shellTools() []Tool {
	return []Tool{
		&builtin{
			name: "run_shell",
			spec: Spec{Args: map[string]string{"cmd": "str", "timeout": "int(optional)", "cwd": "str(optional)"}},
			run:  runShell,
		},
	}
}

func runShell(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	cmd := argString(args, "cmd", "")
	timeout := time.Duration(argInt(args, "timeout", int(env.ToolTimeout/time.Second))) * time.Second
	cwd := argString(args, "cwd", "")
	if cwd == "" {
		cwd = env.WorkspaceRoot
	}

	argv, err := shlex.Split(cmd)
	if err != nil {
		return map[string]any{"cmd": cmd, "error": err.Error()}, nil
	}
	if len(argv) == 0 {
		return map[string]any{"cmd": cmd, "error": "empty command"}, nil
	}

	res, err := runArgv(ctx, argv, cwd, timeout)
	if err != nil {
		return nil, err
	}
	switch {
	case res.timedOut:
		return map[string]any{"cmd": cmd, "error": fmt.Sprintf("timeout after %ds", int(timeout/time.Second))}, nil
	case res.notFound:
		return map[string]any{"cmd": cmd, "error": "command not found"}, nil
	case res.failure != "":
		return map[string]any{"cmd": cmd, "error": res.failure}, nil
	}
	return map[string]any{
		"cmd":        cmd,
		"returncode": res.code,
		"stdout":     tailBytes(res.stdout, streamCap),
		"stderr":     tailBytes(res.stderr, streamCap),
	}, nil
}

// execResult separates the ways a subprocess can fail so each tool can
// phrase them its own way.
type execResult struct {
	code     int
	stdout   string
	stderr   string
	timedOut bool
	notFound bool
	failure  string
}

// runArgv executes argv without a shell. The returned error is only
// non-nil when the parent context is done; everything else lands in
// execResult.
func runArgv(ctx context.Context, argv []string, cwd string, timeout time.Duration) (execResult, error) {
	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c := exec.CommandContext(cctx, argv[0], argv[1:]...)
	c.Dir = cwd
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := execResult{stdout: stdout.String(), stderr: stderr.String()}

	if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.timedOut = true
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound):
			res.notFound = true
		case errors.As(err, &exitErr):
			res.code = exitErr.ExitCode()
		default:
			res.failure = err.Error()
		}
		return res, nil
	}
	res.code = c.ProcessState.ExitCode()
	return res, nil
}
