package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentd-dev/agentd/internal/approval"
	"github.com/agentd-dev/agentd/internal/audit"
	"github.com/agentd-dev/agentd/internal/cli"
	"github.com/agentd-dev/agentd/internal/config"
	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/memory"
	"github.com/agentd-dev/agentd/internal/metrics"
	"github.com/agentd-dev/agentd/internal/plan"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/tool"
)

// cliOptions holds raw flag values. Zero values mean "not set"; the
// tri-state stream and verbose flags are resolved through Changed so
// environment and file settings survive when the flag is absent.
type cliOptions struct {
	provider        string
	model           string
	approvalPolicy  string
	safeMode        string
	ollamaURL       string
	lmstudioURL     string
	workspace       string
	configDir       string
	reasoning       string
	reasoningEffort string
	maxSteps        int
	requestTimeout  int
	toolTimeout     int
	port            int
	stream          bool
	noStream        bool
	verbose         bool
	chat            bool
	serve           bool
}

func (o *cliOptions) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&o.provider, "provider", "", "LLM provider (ollama, openai, anthropic, openrouter, lmstudio)")
	fs.StringVar(&o.model, "model", "", "model name")
	fs.StringVar(&o.approvalPolicy, "approval", "", "approval policy (never, on-request, always)")
	fs.StringVar(&o.safeMode, "safe-mode", "", "shell safety mode (safe, extended, unrestricted)")
	fs.StringVar(&o.ollamaURL, "ollama-url", "", "Ollama base URL (e.g. http://otherhost:11434)")
	fs.StringVar(&o.lmstudioURL, "lmstudio-url", "", "LM Studio base URL (e.g. http://localhost:1234)")
	fs.StringVar(&o.workspace, "workspace", "", "workspace root directory")
	fs.StringVar(&o.configDir, "config-dir", "", "config directory (default <workspace>/.agentic)")
	fs.StringVar(&o.reasoning, "reasoning", "", "reasoning mode (off, on, auto)")
	fs.StringVar(&o.reasoningEffort, "reasoning-effort", "", "reasoning effort (low, medium, high)")
	fs.IntVar(&o.maxSteps, "max-steps", 0, "deliberation step limit")
	fs.IntVar(&o.requestTimeout, "request-timeout", 0, "provider request timeout in seconds")
	fs.IntVar(&o.toolTimeout, "tool-timeout", 0, "tool execution timeout in seconds")
	fs.IntVar(&o.port, "port", 0, "web server port (default AGENT_SERVE_PORT or 8080)")
	fs.BoolVar(&o.stream, "stream", false, "stream model output")
	fs.BoolVar(&o.noStream, "no-stream", false, "disable streaming")
	fs.BoolVar(&o.verbose, "verbose", false, "print raw protocol turns and provider payloads")
	fs.BoolVar(&o.chat, "chat", false, "interactive chat mode")
	fs.BoolVar(&o.serve, "serve", false, "run the web UI server")
}

func (o *cliOptions) overrides(cmd *cobra.Command) config.Overrides {
	ov := config.Overrides{
		Provider:        o.provider,
		Model:           o.model,
		Approval:        o.approvalPolicy,
		SafeMode:        o.safeMode,
		Workspace:       o.workspace,
		ConfigDir:       o.configDir,
		OllamaURL:       o.ollamaURL,
		LMStudioURL:     o.lmstudioURL,
		Reasoning:       o.reasoning,
		ReasoningEffort: o.reasoningEffort,
		MaxSteps:        o.maxSteps,
		RequestTimeout:  o.requestTimeout,
		ToolTimeout:     o.toolTimeout,
		ServePort:       o.port,
	}
	if cmd.Flags().Changed("no-stream") {
		off := false
		ov.Stream = &off
	} else if cmd.Flags().Changed("stream") {
		on := true
		ov.Stream = &on
	}
	if cmd.Flags().Changed("verbose") {
		ov.Verbose = &o.verbose
	}
	return ov
}

// runtime holds everything a mode needs after configuration is loaded.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	provider provider.Provider
	tools    *tool.Registry
	env      tool.Env
	engOpts  engine.Options
	session  *engine.Session
	metrics  *metrics.Metrics
	closers  []io.Closer
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.log.Warn("close failed", "error", err)
		}
	}
}

func buildRuntime(cmd *cobra.Command, o *cliOptions) (*runtime, error) {
	// .env is a convenience for API keys; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(o.overrides(cmd))
	if err != nil {
		return nil, err
	}
	if err := checkProviderKey(cfg); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := provider.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating config dir: %w", err)
	}

	redactor := audit.NewRedactor()
	for _, secret := range []string{cfg.OpenAIAPIKey, cfg.AnthropicAPIKey, cfg.OpenRouterAPIKey} {
		redactor.AddLiteral(secret)
	}
	auditLog := audit.New(audit.Config{Dir: cfg.LogDir, Redactor: redactor})

	rt := &runtime{cfg: cfg, log: log, provider: p, metrics: metrics.New()}

	history, err := approval.Open(filepath.Join(cfg.ConfigDir, "approvals.db"))
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, history)

	mem, err := memory.Open(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if c, ok := mem.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}

	rt.tools = tool.Builtins()
	rt.env = tool.NewEnv(cfg.WorkspaceRoot, cfg.ConfigDir, cfg.MCPRegistryPath, cfg.ToolTimeout, mem, plan.NewStore(cfg.ConfigDir))
	rt.engOpts = engine.Options{Audit: auditLog, Metrics: rt.metrics, History: history, Log: log}
	rt.session = engine.New(p, cfg, rt.tools, rt.env, rt.engOpts)
	return rt, nil
}

// checkProviderKey rejects hosted providers without credentials before
// any request is attempted.
func checkProviderKey(cfg *config.Config) error {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai provider", config.ErrInvalid)
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is required for the anthropic provider", config.ErrInvalid)
		}
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return fmt.Errorf("%w: OPENROUTER_API_KEY is required for the openrouter provider", config.ErrInvalid)
		}
	}
	return nil
}

func runRoot(cmd *cobra.Command, o *cliOptions, task string) error {
	rt, err := buildRuntime(cmd, o)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case o.serve:
		return runServe(ctx, rt)
	case o.chat:
		sink := cli.NewSink(os.Stdout, rt.cfg.Verbose)
		return cli.Chat(ctx, rt.session, rt.cfg, sink, os.Stdin, os.Stdout)
	case task != "":
		sink := cli.NewSink(os.Stdout, rt.cfg.Verbose)
		result, err := rt.session.Run(ctx, task, sink)
		if err != nil {
			return err
		}
		if result != "" {
			fmt.Println(result)
		}
		return nil
	default:
		return fmt.Errorf("%w: provide a task, or use --chat or --serve", config.ErrInvalid)
	}
}
