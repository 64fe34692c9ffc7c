package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/agentd-dev/agentd/internal/plan"
)

func planTools() []Tool {
	return []Tool{
		&builtin{
			name: "plan",
			spec: Spec{Args: map[string]string{
				"action": "str(create|get|list|delete|add_step|update_step)",
				"id":     "str(optional)",
				"title":  "str(optional)",
				"steps":  "array(optional)",
				"index":  "int(optional)",
				"status": "str(optional)",
				"text":   "str(optional)",
			}},
			run: runPlan,
		},
	}
}

func runPlan(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	action := strings.ToLower(argString(args, "action", ""))
	id := argString(args, "id", "")

	switch action {
	case "create":
		p, err := env.Plans.Create(argString(args, "title", ""), argStrings(args, "steps"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": p.ID, "title": p.Title, "steps": p.Steps}, nil

	case "get":
		p, err := env.Plans.Get(id)
		if errors.Is(err, plan.ErrNotFound) {
			return map[string]any{"error": "not found"}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": p.ID, "title": p.Title, "steps": p.Steps}, nil

	case "list":
		plans, err := env.Plans.List()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(plans))
		for _, p := range plans {
			out = append(out, map[string]any{"id": p.ID, "title": p.Title, "steps": p.Steps})
		}
		return map[string]any{"plans": out}, nil

	case "delete":
		deleted, err := env.Plans.Delete(id)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return map[string]any{"deleted": false, "reason": "not found"}, nil
		}
		return map[string]any{"deleted": true, "id": id}, nil

	case "add_step":
		p, err := env.Plans.AddStep(id, argString(args, "text", ""))
		if errors.Is(err, plan.ErrNotFound) {
			return map[string]any{"error": "not found"}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"updated": true, "steps": p.Steps}, nil

	case "update_step":
		p, err := env.Plans.UpdateStep(id, argInt(args, "index", 0), argString(args, "status", "pending"))
		if errors.Is(err, plan.ErrNotFound) {
			return map[string]any{"error": "not found"}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"updated": true, "steps": p.Steps}, nil
	}
	return map[string]any{"error": "unknown plan action " + action}, nil
}
