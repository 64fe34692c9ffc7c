// Package risk classifies tool calls so the approval arbiter can decide
// whether a human needs to confirm them.
package risk

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/shlex"
)

// Command risk classes, ordered destructive > network > write > safe.
const (
	ClassSafe        = "safe"
	ClassWrite       = "write"
	ClassNetwork     = "network"
	ClassDestructive = "destructive"
)

var destructiveKeywords = []string{
	"mkfs", ":(){:|:&};:", "dd", "wipefs", "fdisk", "parted",
}

var networkCommands = map[string]bool{
	"apt": true, "apt-get": true, "curl": true, "wget": true, "pip": true,
	"npm": true, "pnpm": true, "composer": true, "go": true, "cargo": true,
	"git": true,
}

var writeCommands = map[string]bool{
	"rm": true, "mv": true, "cp": true, "chmod": true, "chown": true,
	"tee": true, "truncate": true, "sed": true, "awk": true, "touch": true,
	"mkdir": true, "rmdir": true, "ln": true, "systemctl": true,
	"service": true, "docker": true, "podman": true, "kubectl": true,
}

// approvalTools always require approval under the on-request policy.
var approvalTools = map[string]bool{
	"write_file": true, "web_get": true, "web_search": true,
	"browser_headless": true, "manage_service": true, "delete_path": true,
	"move_path": true, "copy_path": true, "make_dir": true,
	"replace_in_file": true,
}

// Assessment is the classifier verdict for one tool call.
type Assessment struct {
	NeedApproval bool
	Reason       string
}

// Assess maps (policy, tool, args) to an approval requirement. Pure: no
// state, no I/O.
func Assess(policy, tool string, args map[string]any) Assessment {
	if policy == "always" {
		return Assessment{NeedApproval: true, Reason: "approval policy is 'always'"}
	}
	onRequest := policy == "on-request"

	switch tool {
	case "run_shell":
		if class := CommandRisk(argString(args, "cmd")); class != ClassSafe {
			return Assessment{NeedApproval: onRequest, Reason: "risk=" + class}
		}
	case "git":
		if class := GitRisk(argString(args, "args")); class != ClassSafe {
			return Assessment{NeedApproval: onRequest, Reason: "risk=" + class}
		}
	case "tmux":
		if action := strings.ToLower(argString(args, "action")); action == "send" {
			return Assessment{NeedApproval: onRequest, Reason: "tool=tmux action=" + action}
		}
	case "mcp":
		switch action := strings.ToLower(argString(args, "action")); action {
		case "register", "unregister", "set_config", "call_tool":
			return Assessment{NeedApproval: onRequest, Reason: "tool=mcp action=" + action}
		}
	}

	if approvalTools[tool] {
		return Assessment{NeedApproval: onRequest, Reason: "tool=" + tool}
	}
	return Assessment{NeedApproval: false, Reason: "safe"}
}

// CommandRisk classifies a shell command line. Destructive wins over
// network, network over write.
func CommandRisk(cmd string) string {
	tokens, err := shlex.Split(cmd)
	if err != nil {
		tokens = strings.Fields(cmd)
	}
	if len(tokens) == 0 {
		return ClassSafe
	}
	first := tokens[0]
	lower := strings.ToLower(cmd)

	if slices.Contains(tokens, "sudo") {
		return ClassDestructive
	}
	for _, kw := range destructiveKeywords {
		if strings.Contains(lower, kw) {
			return ClassDestructive
		}
	}
	if networkCommands[first] || strings.Contains(lower, "http") {
		return ClassNetwork
	}
	if writeCommands[first] || slices.Contains(tokens, "--write") || slices.Contains(tokens, "--save") {
		return ClassWrite
	}
	return ClassSafe
}

// GitRisk classifies a git argument string by substring scan.
func GitRisk(args string) string {
	lower := strings.ToLower(args)
	for _, kw := range []string{"clone", "fetch", "pull", "submodule update", "remote add", "lfs"} {
		if strings.Contains(lower, kw) {
			return ClassNetwork
		}
	}
	for _, kw := range []string{"push", "commit", "merge", "rebase", "reset", "checkout", "apply", "cherry-pick", "revert"} {
		if strings.Contains(lower, kw) {
			return ClassWrite
		}
	}
	return ClassSafe
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
