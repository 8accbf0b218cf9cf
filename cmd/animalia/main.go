// Animalia is a conversational animal-facts expert.
//
// It answers questions about animals in English or Spanish through an
// interactive terminal chat or as a Slack assistant app. Configuration
// is loaded from a YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one, defaults and environment
// variables are used.
//
// Usage:
//
//	animalia init [dir]       Write an example config.yaml
//	animalia chat             Interactive chat in the terminal
//	animalia ask <question>   Ask a single question
//	animalia demo             Run the canned demo questions
//	animalia slack            Serve the Slack assistant over Socket Mode
//	animalia version          Print version and build information
//	animalia -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nugget/animalia/internal/agent"
	"github.com/nugget/animalia/internal/buildinfo"
	"github.com/nugget/animalia/internal/config"
	"github.com/nugget/animalia/internal/llm"
	"github.com/nugget/animalia/internal/tools"
)

// main builds the OS-level environment and hands off to [run], keeping
// os.Exit and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Conversation output goes to stdout and
// structured logs go to stderr. Arguments are parsed by hand so that
// tests can call run concurrently without flag package globals.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: animalia ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "demo":
		return runDemo(ctx, stdout, stderr, configPath)
	case "slack":
		return runSlack(ctx, stderr, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Animalia - Animal facts expert agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: animalia [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  chat         Interactive chat in the terminal")
	fmt.Fprintln(w, "  ask          Ask a single question")
	fmt.Fprintln(w, "  demo         Run the predefined demo questions")
	fmt.Fprintln(w, "  slack        Serve the Slack assistant (Socket Mode)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/animalia/config.yaml, /etc/animalia/config.yaml")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  GEMINI_API_KEY, ANTHROPIC_API_KEY, SLACK_BOT_TOKEN, SLACK_SOCKET_TOKEN")
	return nil
}

// loadConfig locates and parses the YAML configuration. When no file
// exists and none was named explicitly, the built-in defaults are used.
// The returned path is empty in that case. The config is validated for
// the model credentials, plus the Slack tokens when slack is true.
func loadConfig(explicit string, slack bool) (*config.Config, string, error) {
	var cfg *config.Config
	cfgPath, err := config.FindConfig(explicit)
	switch {
	case errors.Is(err, config.ErrNotFound):
		cfg = config.Default()
	case err != nil:
		return nil, "", err
	default:
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	}

	if err := cfg.Validate(slack); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the process logger from the validated config.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	// Validate has already checked the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// app is the wiring shared by every model-backed command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   llm.Client
	loop     *agent.Loop
	registry *tools.Registry
}

// setup loads the config and wires the model client and the default
// tool set into an agent loop.
func setup(stderr io.Writer, configPath string, slack bool) (*app, error) {
	cfg, cfgPath, err := loadConfig(configPath, slack)
	if err != nil {
		return nil, err
	}
	logger := newLogger(stderr, cfg)
	if cfgPath == "" {
		logger.Debug("no config file found, using defaults and environment")
	} else {
		logger.Debug("config loaded", "path", cfgPath)
	}

	client, err := llm.NewFromConfig(cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	registry := tools.NewDefaultRegistry()
	loop := agent.NewLoop(agent.Config{
		Logger: logger,
		LLM:    client,
		Tools:  registry,
		Model:  cfg.Model.Name,
		Options: llm.Options{
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
		},
		MaxIterations: cfg.Agent.MaxIterations,
	})

	logger.Info("agent ready",
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"tools", registry.Names(),
		"max_iterations", cfg.Agent.MaxIterations,
	)
	return &app{cfg: cfg, logger: logger, client: client, loop: loop, registry: registry}, nil
}

// runAsk answers one question and prints the reply.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	a, err := setup(stderr, configPath, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Agent.RunTimeout)
	defer cancel()

	state, err := a.loop.Run(ctx, agent.State{}, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, agent.Answer(state))
	return nil
}
