package main

import (
	"path/filepath"
	"time"

	"github.com/m4xw311/rulesql/config"
)

// CLI defines the command-line interface. Empty values leave the
// configuration file (or built-in default) in place.
type CLI struct {
	Model            string        `help:"Model identifier (default: gpt-4o for openai)."`
	Provider         string        `help:"LLM client: openai, anthropic, gemini, bedrock or mock."`
	EMQXMCPServerDir string        `name:"emqx-mcp-server-dir" required:"" type:"existingdir" help:"Directory of the EMQX MCP server project."`
	DocsDir          string        `name:"docs-dir" required:"" type:"existingdir" help:"Directory containing the rule SQL reference documents (*.md)."`
	EMQXAPIURL       string        `name:"emqx-api-url" env:"EMQX_API_URL" help:"EMQX API base URL (default: http://localhost:18083/api/v5)."`
	EMQXAPIKey       string        `name:"emqx-api-key" env:"EMQX_API_KEY" help:"EMQX API key (default: key)."`
	EMQXAPISecret    string        `name:"emqx-api-secret" env:"EMQX_API_SECRET" help:"EMQX API secret (default: secret)."`
	CountTokens      bool          `name:"count-tokens" help:"Print the token length of the instructions at startup."`
	TurnTimeout      time.Duration `name:"turn-timeout" help:"Abort a turn after this long (0 disables)."`
	MaxSteps         int           `name:"max-steps" help:"Maximum model calls per turn (default: 10)."`
	FailFast         bool          `name:"fail-fast" help:"Exit on the first failed turn."`
	ToolVerbosity    string        `name:"tool-verbosity" help:"Tool verbosity level: none, info or all."`
	Verbose          bool          `short:"v" help:"Enable debug logging."`
	Config           string        `type:"existingfile" help:"Additional configuration file."`
}

// apply overlays the flags that were given onto cfg.
func (c *CLI) apply(cfg *config.Config) {
	if c.Provider != "" {
		cfg.LLMClient = c.Provider
	}
	if c.Model != "" {
		cfg.Model = c.Model
	}
	cfg.MCPServer.Dir = absPath(c.EMQXMCPServerDir)
	cfg.DocsDir = absPath(c.DocsDir)
	if c.EMQXAPIURL != "" {
		cfg.EMQX.APIURL = c.EMQXAPIURL
	}
	if c.EMQXAPIKey != "" {
		cfg.EMQX.APIKey = c.EMQXAPIKey
	}
	if c.EMQXAPISecret != "" {
		cfg.EMQX.APISecret = c.EMQXAPISecret
	}
	if c.CountTokens {
		cfg.CountTokens = true
	}
	if c.TurnTimeout != 0 {
		cfg.TurnTimeout = c.TurnTimeout
	}
	if c.MaxSteps != 0 {
		cfg.MaxSteps = c.MaxSteps
	}
	if c.FailFast {
		cfg.FailFast = true
	}
	if c.ToolVerbosity != "" {
		cfg.ToolVerbosity = c.ToolVerbosity
	}
	if c.Verbose {
		cfg.LogLevel = "debug"
	}
}

// absPath makes path absolute so it means the same thing in the helper's
// working directory.
func absPath(path string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
