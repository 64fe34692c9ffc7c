package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const defaultReadCap = 200_000

func fsTools() []Tool {
	return []Tool{
		&builtin{
			name: "read_file",
			spec: Spec{Args: map[string]string{"path": "str", "max_bytes": "int(optional)"}},
			run:  readFile,
		},
		&builtin{
			name: "write_file",
			spec: Spec{Args: map[string]string{"path": "str", "content": "str", "append": "bool(optional)"}},
			run:  writeFile,
		},
		&builtin{
			name: "list_dir",
			spec: Spec{Args: map[string]string{"path": "str"}},
			run:  listDir,
		},
		&builtin{
			name: "delete_path",
			spec: Spec{Args: map[string]string{"path": "str", "recursive": "bool(optional)"}},
			run:  deletePath,
		},
		&builtin{
			name: "move_path",
			spec: Spec{Args: map[string]string{"src": "str", "dst": "str", "overwrite": "bool(optional)"}},
			run:  movePath,
		},
		&builtin{
			name: "copy_path",
			spec: Spec{Args: map[string]string{"src": "str", "dst": "str", "overwrite": "bool(optional)"}},
			run:  copyPath,
		},
		&builtin{
			name: "make_dir",
			spec: Spec{Args: map[string]string{"path": "str"}},
			run:  makeDir,
		},
		&builtin{
			name: "replace_in_file",
			spec: Spec{Args: map[string]string{"path": "str", "find": "str", "replace": "str", "count": "int(optional)", "regex": "bool(optional)"}},
			run:  replaceInFile,
		},
	}
}

// resolveInWorkspace maps a tool-supplied path onto the workspace root
// and rejects anything that lands outside it.
func resolveInWorkspace(path string, env Env) (string, error) {
	root := filepath.Clean(env.WorkspaceRoot)
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace root: %s", path)
	}
	return p, nil
}

func readFile(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	maxBytes := argInt(args, "max_bytes", defaultReadCap)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	truncated := false
	if len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	return map[string]any{
		"path":      p,
		"bytes":     len(data),
		"truncated": truncated,
		"content":   content,
	}, nil
}

func writeFile(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	content := argString(args, "content", "")
	appendMode := argBool(args, "append", false)

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(p, flags, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return map[string]any{"path": p, "written": len(content), "append": appendMode}, nil
}

func listDir(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"path": p, "exists": false, "entries": []any{}}, nil
		}
		return nil, err
	}
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		var size any
		if info, err := e.Info(); err == nil && info.Mode().IsRegular() {
			size = info.Size()
		}
		out = append(out, map[string]any{
			"name":   e.Name(),
			"is_dir": e.IsDir(),
			"size":   size,
		})
	}
	return map[string]any{"path": p, "exists": true, "entries": out}, nil
}

func deletePath(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"path": p, "deleted": false, "reason": "not found"}, nil
		}
		return nil, err
	}
	if info.IsDir() {
		if argBool(args, "recursive", false) {
			if err := os.RemoveAll(p); err != nil {
				return nil, err
			}
			return map[string]any{"path": p, "deleted": true, "type": "dir", "recursive": true}, nil
		}
		if err := os.Remove(p); err != nil {
			return map[string]any{"path": p, "deleted": false, "error": err.Error()}, nil
		}
		return map[string]any{"path": p, "deleted": true, "type": "dir", "recursive": false}, nil
	}
	if err := os.Remove(p); err != nil {
		return nil, err
	}
	return map[string]any{"path": p, "deleted": true, "type": "file"}, nil
}

func movePath(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	sp, err := resolveInWorkspace(argString(args, "src", ""), env)
	if err != nil {
		return nil, err
	}
	dp, err := resolveInWorkspace(argString(args, "dst", ""), env)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(dp); err == nil && !argBool(args, "overwrite", false) {
		return map[string]any{"src": sp, "dst": dp, "moved": false, "error": "destination exists"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return nil, err
	}
	if err := os.Rename(sp, dp); err != nil {
		return nil, err
	}
	return map[string]any{"src": sp, "dst": dp, "moved": true}, nil
}

func copyPath(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	sp, err := resolveInWorkspace(argString(args, "src", ""), env)
	if err != nil {
		return nil, err
	}
	dp, err := resolveInWorkspace(argString(args, "dst", ""), env)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(dp); err == nil && !argBool(args, "overwrite", false) {
		return map[string]any{"src": sp, "dst": dp, "copied": false, "error": "destination exists"}, nil
	}
	info, err := os.Stat(sp)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return nil, err
	}
	if info.IsDir() {
		if _, err := os.Lstat(dp); err == nil {
			if err := os.RemoveAll(dp); err != nil {
				return nil, err
			}
		}
		if err := copyTree(sp, dp); err != nil {
			return nil, err
		}
	} else {
		if err := copyFile(sp, dp, info.Mode().Perm()); err != nil {
			return nil, err
		}
	}
	return map[string]any{"src": sp, "dst": dp, "copied": true}, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

func makeDir(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, err
	}
	return map[string]any{"path": p, "created": true}, nil
}

func replaceInFile(_ context.Context, args map[string]any, env Env) (map[string]any, error) {
	p, err := resolveInWorkspace(argString(args, "path", ""), env)
	if err != nil {
		return nil, err
	}
	find := argString(args, "find", "")
	repl := argString(args, "replace", "")
	count := argInt(args, "count", 0)

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	text := string(data)

	var newText string
	var n int
	if argBool(args, "regex", false) {
		re, err := regexp.Compile(find)
		if err != nil {
			return nil, err
		}
		newText, n = replaceRegexp(re, text, repl, count)
	} else {
		newText, n = replaceLiteral(text, find, repl, count)
	}
	if err := os.WriteFile(p, []byte(newText), 0o644); err != nil {
		return nil, err
	}
	return map[string]any{"path": p, "replaced": n}, nil
}

func replaceLiteral(text, find, repl string, count int) (string, int) {
	if find == "" {
		return text, 0
	}
	total := strings.Count(text, find)
	if count <= 0 || count > total {
		count = total
	}
	return strings.Replace(text, find, repl, count), count
}

// replaceRegexp substitutes up to count matches (count <= 0 means all),
// expanding $1-style references in repl.
func replaceRegexp(re *regexp.Regexp, text, repl string, count int) (string, int) {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}
	if len(matches) == 0 {
		return text, 0
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.Write(re.ExpandString(nil, repl, text, m))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), len(matches)
}
