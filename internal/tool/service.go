package tool

import (
	"context"
	"strings"
	"time"
)

const serviceTimeout = 60 * time.Second

var allowedServiceActions = map[string]bool{
	"start": true, "stop": true, "restart": true, "reload": true,
	"enable": true, "disable": true, "status": true,
}

func serviceTools() []Tool {
	return []Tool{
		&builtin{
			name: "manage_service",
			spec: Spec{Args: map[string]string{
				"unit":   "str",
				"action": "str(start|stop|restart|reload|enable|disable|status)",
				"user":   "bool(optional)",
			}},
			run: manageService,
		},
	}
}

func manageService(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	unit := argString(args, "unit", "")
	action := strings.ToLower(argString(args, "action", "status"))
	if !allowedServiceActions[action] {
		return map[string]any{"error": "unsupported action " + action}, nil
	}

	argv := []string{"systemctl"}
	if argBool(args, "user", false) {
		argv = append(argv, "--user")
	}
	argv = append(argv, action, unit, "--no-pager")

	res, err := runArgv(ctx, argv, env.WorkspaceRoot, serviceTimeout)
	if err != nil {
		return nil, err
	}
	if res.notFound || res.timedOut || res.failure != "" {
		detail := res.failure
		if res.notFound {
			detail = "systemctl not found"
		}
		if res.timedOut {
			detail = "timeout"
		}
		return map[string]any{"unit": unit, "action": action, "error": detail}, nil
	}
	return map[string]any{
		"unit":       unit,
		"action":     action,
		"returncode": res.code,
		"stdout":     res.stdout,
		"stderr":     res.stderr,
	}, nil
}
