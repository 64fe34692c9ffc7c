// Package main is the entry point for the agentd CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentd-dev/agentd/internal/config"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration and usage mistakes to 2, everything else
// to 1.
func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalid) {
		return 2
	}
	return 1
}

func rootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "agentd [task]",
		Short:         "An agentic command executor with tool calling and approval gates",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := ""
			if len(args) > 0 {
				task = args[0]
			}
			return runRoot(cmd, opts, task)
		},
	}
	opts.register(root)
	root.AddCommand(versionCmd(), serviceCmd(opts))
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("agentd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
