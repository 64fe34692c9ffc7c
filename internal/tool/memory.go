package tool

import (
	"context"

	"github.com/agentd-dev/agentd/internal/memory"
)

func memoryTools() []Tool {
	return []Tool{
		&builtin{
			name: "memory_add",
			spec: Spec{Args: map[string]string{"text": "str", "tags": "array(optional)", "meta": "object(optional)"}},
			run:  memoryAdd,
		},
		&builtin{
			name: "memory_search",
			spec: Spec{Args: map[string]string{"query": "str", "top_k": "int(optional)", "tag": "str(optional)"}},
			run:  memorySearch,
		},
		&builtin{
			name: "memory_delete",
			spec: Spec{Args: map[string]string{"id": "str"}},
			run:  memoryDelete,
		},
		&builtin{
			name: "memory_list",
			spec: Spec{Args: map[string]string{"limit": "int(optional)", "tag": "str(optional)"}},
			run:  memoryList,
		},
		&builtin{
			name: "memory_update",
			spec: Spec{Args: map[string]string{"id": "str", "text": "str(optional)", "tags": "array(optional)", "meta": "object(optional)"}},
			run:  memoryUpdate,
		},
	}
}

func memoryAdd(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	entry, err := env.Memory.Add(ctx, argString(args, "text", ""), argStrings(args, "tags"), argMap(args, "meta"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": entry.ID, "ts": entry.TS, "tags": entry.Tags}, nil
}

func memorySearch(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	scored, err := env.Memory.Search(ctx, argString(args, "query", ""), argInt(args, "top_k", 5), argString(args, "tag", ""))
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(scored))
	for _, s := range scored {
		results = append(results, map[string]any{
			"id":    s.ID,
			"score": s.Score,
			"ts":    s.TS,
			"tags":  s.Tags,
			"text":  s.Text,
		})
	}
	return map[string]any{"results": results}, nil
}

func memoryDelete(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	id := argString(args, "id", "")
	deleted, err := env.Memory.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return map[string]any{"deleted": false, "reason": "not found"}, nil
	}
	return map[string]any{"deleted": true, "id": id}, nil
}

func memoryList(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	entries, err := env.Memory.List(ctx, argInt(args, "limit", 50), argString(args, "tag", ""))
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{"id": e.ID, "ts": e.TS, "tags": e.Tags, "text": e.Text})
	}
	return map[string]any{"count": len(entries), "items": items}, nil
}

func memoryUpdate(ctx context.Context, args map[string]any, env Env) (map[string]any, error) {
	id := argString(args, "id", "")
	var change memory.Update
	if v, ok := args["text"]; ok && v != nil {
		text := argString(args, "text", "")
		change.Text = &text
	}
	if v, ok := args["tags"]; ok && v != nil {
		tags := argStrings(args, "tags")
		change.Tags = &tags
	}
	if v, ok := args["meta"]; ok && v != nil {
		meta := argMap(args, "meta")
		change.Meta = &meta
	}
	updated, err := env.Memory.Update(ctx, id, change)
	if err != nil {
		return nil, err
	}
	if !updated {
		return map[string]any{"updated": false, "reason": "not found"}, nil
	}
	return map[string]any{"updated": true, "id": id}, nil
}
