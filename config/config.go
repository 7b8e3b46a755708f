package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/m4xw311/rulesql/errors"
	"gopkg.in/yaml.v3"
)

// DirPlaceholder is replaced by the MCP server directory in MCPServer.Args.
const DirPlaceholder = "{dir}"

// DefaultModels maps each supported LLM client to the model used when none
// is configured.
var DefaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-20250514",
	"gemini":    "gemini-1.5-pro",
	"bedrock":   "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"mock":      "mock",
}

type EMQX struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
}

type Config struct {
	LLMClient     string        `yaml:"llm"`
	Model         string        `yaml:"model"`
	DocsDir       string        `yaml:"docs_dir"`
	EMQX          EMQX          `yaml:"emqx"`
	MCPServer     MCPServer     `yaml:"mcp_server"`
	Tools         []string      `yaml:"tools"`
	CountTokens   bool          `yaml:"count_tokens"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
	MaxSteps      int           `yaml:"max_steps"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	FailFast      bool          `yaml:"fail_fast"`
	LogLevel      string        `yaml:"log_level"`
	ToolVerbosity string        `yaml:"tool_verbosity"`
	Prompt        string        `yaml:"prompt"`
}

// Default returns the configuration used before any file or flag is applied.
func Default() *Config {
	return &Config{
		LLMClient: "openai",
		EMQX: EMQX{
			APIURL:    "http://localhost:18083/api/v5",
			APIKey:    "key",
			APISecret: "secret",
		},
		MCPServer: MCPServer{
			Name:    "EMQX helper server",
			Command: "uv",
			Args:    []string{"--directory", DirPlaceholder, "run", "emqx-mcp-server"},
		},
		Tools:         []string{"*"},
		MaxSteps:      10,
		ShutdownGrace: 5 * time.Second,
		LogLevel:      "warn",
		ToolVerbosity: "none",
		Prompt:        "rule-sql-agent> ",
	}
}

// LoadConfig loads configuration from the user's home directory, the current
// working directory and finally the explicit path (if any), later files taking
// precedence over earlier ones.
func LoadConfig(explicitPath string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".rulesql", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".rulesql", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if explicitPath != "" {
		if err := loadFromFile(explicitPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", explicitPath)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the file replace what is already set; lists are
	// replaced, not merged.
	return yaml.Unmarshal(data, cfg)
}

// ResolvedModel returns the configured model or the default for the client.
func (c *Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModels[c.LLMClient]
}

// HelperArgs returns the MCP server arguments with the directory placeholder
// substituted.
func (c *Config) HelperArgs() []string {
	args := make([]string, len(c.MCPServer.Args))
	for i, a := range c.MCPServer.Args {
		args[i] = strings.ReplaceAll(a, DirPlaceholder, c.MCPServer.Dir)
	}
	return args
}

// HelperEnv returns the environment handed to the MCP server.
func (c *Config) HelperEnv() map[string]string {
	return map[string]string{
		"EMQX_API_URL":    c.EMQX.APIURL,
		"EMQX_API_KEY":    c.EMQX.APIKey,
		"EMQX_API_SECRET": c.EMQX.APISecret,
	}
}

// Validate checks the resolved configuration. All errors are marked with
// errors.ErrConfig.
func (c *Config) Validate() error {
	if _, ok := DefaultModels[c.LLMClient]; !ok {
		names := make([]string, 0, len(DefaultModels))
		for n := range DefaultModels {
			names = append(names, n)
		}
		sort.Strings(names)
		return errors.Mark(errors.New("unknown llm client '%s', must be one of %s", c.LLMClient, strings.Join(names, ", ")), errors.ErrConfig)
	}
	if c.MCPServer.Dir == "" {
		return errors.Mark(errors.New("the MCP server directory is required"), errors.ErrConfig)
	}
	if err := ValidateDir(c.MCPServer.Dir); err != nil {
		return errors.Mark(err, errors.ErrConfig)
	}
	if c.DocsDir == "" {
		return errors.Mark(errors.New("the docs directory is required"), errors.ErrConfig)
	}
	if err := ValidateDir(c.DocsDir); err != nil {
		return errors.Mark(err, errors.ErrConfig)
	}
	if c.MCPServer.Command == "" {
		return errors.Mark(errors.New("mcp_server.command must not be empty"), errors.ErrConfig)
	}
	if c.MaxSteps <= 0 {
		return errors.Mark(errors.New("max_steps must be positive, got %d", c.MaxSteps), errors.ErrConfig)
	}
	if c.TurnTimeout < 0 {
		return errors.Mark(errors.New("turn_timeout must not be negative"), errors.ErrConfig)
	}
	if c.ShutdownGrace <= 0 {
		return errors.Mark(errors.New("shutdown_grace must be positive, got %s", c.ShutdownGrace), errors.ErrConfig)
	}
	switch c.ToolVerbosity {
	case "none", "info", "all":
	default:
		return errors.Mark(errors.New("invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'", c.ToolVerbosity), errors.ErrConfig)
	}
	return nil
}

// ValidateDir reports an error unless path names an existing directory.
func ValidateDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return errors.New("'%s' is not a valid directory", path)
	}
	return nil
}
