package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/m4xw311/rulesql/agent/terminal"
	"github.com/m4xw311/rulesql/config"
	"github.com/m4xw311/rulesql/prompt"
	"github.com/m4xw311/rulesql/tools/mcp/mcptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	mcptest.MaybeServe()
	os.Exit(m.Run())
}

// lockedBuffer collects output written by the logger and the helper's
// stderr copier.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type dirs struct {
	server string
	docs   string
}

func newDirs(t *testing.T) dirs {
	t.Helper()
	d := dirs{server: t.TempDir(), docs: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(d.docs, "syntax.md"), []byte("SELECT * FROM t"), 0644))
	return d
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return runCLIWith(t, context.Background(), "", args...)
}

func runCLIWith(t *testing.T, ctx context.Context, input string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr lockedBuffer
	exit := func(code int) { t.Fatalf("unexpected exit(%d)", code) }
	code := run(ctx, args, strings.NewReader(input), &stdout, &stderr, exit)
	return code, stdout.String(), stderr.String()
}

// helperConfig writes a configuration that runs this test binary as the
// EMQX MCP server.
func helperConfig(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(mcptest.EnvServe, "1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "mcp_server:\n  command: " + exe + "\n  args: []\nshutdown_grace: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestCLIParse(t *testing.T) {
	d := newDirs(t)
	var cli CLI
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{
		"--emqx-mcp-server-dir", d.server,
		"--docs-dir", d.docs,
		"--model", "gpt-4o-mini",
		"--emqx-api-url", "http://broker:18083/api/v5",
		"--count-tokens",
		"--turn-timeout", "45s",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cli.Model)
	assert.Equal(t, "http://broker:18083/api/v5", cli.EMQXAPIURL)
	assert.True(t, cli.CountTokens)
	assert.Equal(t, 45*time.Second, cli.TurnTimeout)
	assert.False(t, cli.FailFast)
}

func TestCLIApplyKeepsDefaultsForUnsetFlags(t *testing.T) {
	d := newDirs(t)
	cli := CLI{EMQXMCPServerDir: d.server, DocsDir: d.docs, EMQXAPIKey: "admin", Verbose: true}
	cfg := config.Default()
	cli.apply(cfg)

	assert.Equal(t, d.server, cfg.MCPServer.Dir)
	assert.Equal(t, d.docs, cfg.DocsDir)
	assert.Equal(t, "admin", cfg.EMQX.APIKey)
	assert.Equal(t, "secret", cfg.EMQX.APISecret)
	assert.Equal(t, "http://localhost:18083/api/v5", cfg.EMQX.APIURL)
	assert.Equal(t, "gpt-4o", cfg.ResolvedModel())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.MaxSteps)
	require.NoError(t, cfg.Validate())
}

func TestRunRejectsFileAsDocsDir(t *testing.T) {
	d := newDirs(t)
	file := filepath.Join(d.docs, "syntax.md")

	code, stdout, stderr := runCLI(t, "--emqx-mcp-server-dir", d.server, "--docs-dir", file)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "syntax.md")
	assert.NotContains(t, stdout, "rule-sql-agent>")
}

func TestRunRejectsMissingServerDir(t *testing.T) {
	d := newDirs(t)
	code, _, stderr := runCLI(t, "--emqx-mcp-server-dir", filepath.Join(d.server, "absent"), "--docs-dir", d.docs)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestRunRequiresDirectories(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "docs-dir")
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	d := newDirs(t)
	code, _, stderr := runCLI(t, "--emqx-mcp-server-dir", d.server, "--docs-dir", d.docs, "--provider", "cohere")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown llm client")
}

func TestRunAbortsWhenHelperCannotStart(t *testing.T) {
	d := newDirs(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mcp_server:\n  command: rulesql-no-such-runner\n"), 0644))

	code, stdout, stderr := runCLI(t,
		"--emqx-mcp-server-dir", d.server,
		"--docs-dir", d.docs,
		"--provider", "mock",
		"--config", cfgPath,
		"--count-tokens",
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error starting the EMQX MCP server")
	assert.Contains(t, stderr, "rulesql-no-such-runner")
	assert.Contains(t, stdout, filepath.Join(d.docs, "*.md"))
	assert.Contains(t, stdout, "Instructions token length: ~")
	assert.NotContains(t, stdout, "rule-sql-agent>")
}

func TestRunRejectsZeroShutdownGrace(t *testing.T) {
	d := newDirs(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("shutdown_grace: 0s\n"), 0644))

	code, _, stderr := runCLI(t, "--emqx-mcp-server-dir", d.server, "--docs-dir", d.docs, "--config", cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Invalid configuration")
	assert.Contains(t, stderr, "shutdown_grace")
}

func TestRunInterruptedDuringStartup(t *testing.T) {
	d := newDirs(t)
	cfgPath := helperConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, stdout, _ := runCLIWith(t, ctx, "alerts over 90C\n",
		"--emqx-mcp-server-dir", d.server,
		"--docs-dir", d.docs,
		"--provider", "mock",
		"--config", cfgPath,
	)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, strings.Count(stdout, terminal.Farewell))
	assert.NotContains(t, stdout, "I am a mock LLM.")
}

func TestRunConversationWithHelper(t *testing.T) {
	d := newDirs(t)
	cfgPath := helperConfig(t)

	code, stdout, stderr := runCLIWith(t, context.Background(), "alerts over 90C\n",
		"--emqx-mcp-server-dir", d.server,
		"--docs-dir", d.docs,
		"--provider", "mock",
		"--config", cfgPath,
		"--emqx-api-url", "http://broker:18083/api/v5",
	)
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stderr, "does not provide the validation tool")

	assert.Contains(t, stdout, terminal.DefaultPrompt)
	assert.Contains(t, stdout, "I am a mock LLM. You said: '"+prompt.Extend("alerts over 90C")+"'.")
	assert.Equal(t, 1, strings.Count(stdout, terminal.Farewell))
}
