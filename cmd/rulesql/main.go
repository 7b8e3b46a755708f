// Command rulesql is an interactive assistant for composing EMQX rule engine
// SQL statements.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/m4xw311/rulesql/agent"
	"github.com/m4xw311/rulesql/agent/terminal"
	"github.com/m4xw311/rulesql/config"
	"github.com/m4xw311/rulesql/docs"
	"github.com/m4xw311/rulesql/errors"
	"github.com/m4xw311/rulesql/llm"
	"github.com/m4xw311/rulesql/logging"
	"github.com/m4xw311/rulesql/prompt"
	"github.com/m4xw311/rulesql/tools"
	"github.com/m4xw311/rulesql/tools/mcp"
	"go.uber.org/zap"
)

func main() {
	// Provider API keys may live in .env.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Exit)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, exit func(int)) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("rulesql"),
		kong.Description("Compose EMQX rule engine SQL statements with a language model."),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %+v\n", err)
		return 1
	}
	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %+v\n", err)
		return 1
	}
	cli.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := startSession(ctx, cfg, stdin, stdout, stderr, log); err != nil {
		switch {
		case errors.Is(err, errors.ErrBootstrap):
			fmt.Fprintf(stderr, "Error starting the EMQX MCP server (check --emqx-mcp-server-dir and mcp_server.command): %v\n", err)
		case errors.Is(err, errors.ErrConfig):
			fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		default:
			fmt.Fprintf(stderr, "Error: %+v\n", err)
		}
		return 1
	}
	return 0
}

// startSession loads the documents, starts the helper and runs the
// conversation loop. The helper is stopped when the loop ends.
func startSession(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer, log *zap.Logger) error {
	fmt.Fprintln(stdout, docs.Source(cfg.DocsDir))
	syntax, err := docs.Load(cfg.DocsDir, log)
	if err != nil {
		return errors.Wrapf(err, "error loading reference documents")
	}
	instructions := prompt.Instructions(syntax)

	client, err := llm.NewClient(ctx, cfg.LLMClient, cfg.ResolvedModel())
	if err != nil {
		return errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}

	if cfg.CountTokens {
		printTokenCount(ctx, client, instructions, stdout, log)
	}

	helper, err := mcp.Start(ctx, mcp.ServerParams{
		Name:    cfg.MCPServer.Name,
		Command: cfg.MCPServer.Command,
		Args:    cfg.HelperArgs(),
		Dir:     cfg.MCPServer.Dir,
		Env:     cfg.HelperEnv(),
		Stderr:  stderr,
	}, log)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(stdout, "%s\n", terminal.Farewell)
			return nil
		}
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := helper.Close(shutdownCtx); err != nil {
			log.Warn("MCP server shutdown", zap.Error(err))
		}
	}()

	discovered := make([]tools.Tool, 0, len(helper.Tools()))
	for _, t := range helper.Tools() {
		discovered = append(discovered, t)
	}
	active, err := tools.Filter(discovered, cfg.Tools)
	if err != nil {
		return err
	}
	registry, err := tools.NewRegistry(active...)
	if err != nil {
		return err
	}
	if _, ok := helper.GetTool(prompt.ValidationTool); !ok {
		log.Warn("helper does not provide the validation tool", zap.String("tool", prompt.ValidationTool))
	} else if _, ok := registry.GetTool(prompt.ValidationTool); !ok {
		log.Warn("validation tool excluded by the tools allowlist", zap.String("tool", prompt.ValidationTool), zap.Strings("tools", cfg.Tools))
	}

	a := agent.New(client, registry, agent.Options{
		Name:         "Assistant",
		Instructions: instructions,
		MaxSteps:     cfg.MaxSteps,
	}, log)

	term := terminal.New(a, stdin, stdout, terminal.Options{
		Prompt:      cfg.Prompt,
		TurnTimeout: cfg.TurnTimeout,
		FailFast:    cfg.FailFast,
		Verbosity:   agent.ToolVerbosity(cfg.ToolVerbosity),
	}, log)
	return term.Run(ctx)
}

func printTokenCount(ctx context.Context, client llm.LLMClient, instructions string, out io.Writer, log *zap.Logger) {
	n, exact, err := llm.CountTokens(ctx, client, instructions)
	if err != nil {
		log.Warn("could not count instruction tokens", zap.Error(err))
		return
	}
	if exact {
		fmt.Fprintf(out, "Instructions token length: %d\n", n)
	} else {
		fmt.Fprintf(out, "Instructions token length: ~%d (estimated)\n", n)
	}
}
