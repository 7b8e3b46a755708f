package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/m4xw311/rulesql/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// ClientVersion is reported to the server during the handshake.
const ClientVersion = "v1.0.0"

// ServerParams describes how to launch an MCP server subprocess.
type ServerParams struct {
	Name    string
	Command string
	Args    []string
	// Dir is the working directory of the subprocess; empty means inherit.
	Dir string
	// Env is added on top of the parent environment.
	Env map[string]string
	// Stderr receives the subprocess's stderr; nil means os.Stderr.
	Stderr io.Writer
}

// toolSession is the part of *mcpsdk.ClientSession the client relies on.
type toolSession interface {
	ListTools(ctx context.Context, params *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  toolSession
	tools []*MCPTool
	log   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Start launches the MCP server subprocess, performs the initialize handshake
// and discovers the tools it provides. On any failure the subprocess is
// killed and the returned error is marked with errors.ErrBootstrap.
func Start(ctx context.Context, params ServerParams, log *zap.Logger) (*MCPClient, error) {
	if _, err := exec.LookPath(params.Command); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "MCP server '%s' command '%s' not found", params.Name, params.Command), errors.ErrBootstrap)
	}

	cmd := exec.Command(params.Command, params.Args...)
	cmd.Dir = params.Dir
	cmd.Env = append(os.Environ(), envList(params.Env)...)
	cmd.Stderr = params.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log.Info("starting MCP server",
		zap.String("server", params.Name),
		zap.String("command", params.Command),
		zap.Strings("args", params.Args))

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "rulesql", Version: ClientVersion}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		killProcess(cmd)
		return nil, errors.Mark(errors.Wrapf(err, "failed to connect to MCP server '%s'", params.Name), errors.ErrBootstrap)
	}

	client := newMCPClient(params.Name, conn, log)
	client.cmd = cmd
	if err := client.discover(ctx); err != nil {
		conn.Close()
		killProcess(cmd)
		return nil, errors.Mark(err, errors.ErrBootstrap)
	}

	log.Info("initialized MCP client", zap.String("server", params.Name), zap.Int("tools", len(client.tools)))
	return client, nil
}

func newMCPClient(name string, conn toolSession, log *zap.Logger) *MCPClient {
	return &MCPClient{Name: name, conn: conn, log: log}
}

// discover lists every tool the server advertises, following pagination.
func (c *MCPClient) discover(ctx context.Context) error {
	params := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := c.conn.ListTools(ctx, params)
		if err != nil {
			return errors.Wrapf(err, "failed to list tools from MCP server '%s'", c.Name)
		}

		for _, t := range toolList.Tools {
			schema, err := schemaMap(t)
			if err != nil {
				return errors.Wrapf(err, "tool '%s' has an unusable input schema", t.Name)
			}
			c.tools = append(c.tools, &MCPTool{
				serverName:  c.Name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schema,
				client:      c,
			})
			c.log.Debug("discovered tool", zap.String("server", c.Name), zap.String("tool", t.Name))
		}

		if toolList.NextCursor == "" {
			return nil
		}
		params = &mcpsdk.ListToolsParams{Cursor: toolList.NextCursor}
	}
}

// Tools returns the discovered tools in the order the server listed them.
func (c *MCPClient) Tools() []*MCPTool {
	return append([]*MCPTool(nil), c.tools...)
}

// GetTool returns a specific tool provided by this MCP server by its name.
func (c *MCPClient) GetTool(toolName string) (*MCPTool, bool) {
	for _, t := range c.tools {
		if t.toolName == toolName {
			return t, true
		}
	}
	return nil, false
}

// Close ends the session and waits for the subprocess to exit. If ctx is done
// first the subprocess is killed. Close is safe to call more than once.
func (c *MCPClient) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.log.Info("terminating MCP server", zap.String("server", c.Name))

		done := make(chan error, 1)
		go func() { done <- c.conn.Close() }()

		select {
		case err := <-done:
			c.closeErr = err
			if c.cmd != nil && c.cmd.ProcessState == nil {
				killProcess(c.cmd)
			}
		case <-ctx.Done():
			c.log.Warn("MCP server did not stop in time, killing it", zap.String("server", c.Name))
			killProcess(c.cmd)
			c.closeErr = errors.Wrapf(ctx.Err(), "MCP server '%s' shutdown", c.Name)
		}
	})
	return c.closeErr
}

func killProcess(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

func schemaMap(t *mcpsdk.Tool) (map[string]interface{}, error) {
	schema := map[string]interface{}{}
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, err
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]interface{}{}
	}
	return schema, nil
}

// MCPTool represents a tool available from an external MCP server.
// It satisfies the tools.Tool interface.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]interface{}
	client      *MCPClient
}

// Name returns the tool name as advertised by the server. Provider APIs
// reject separators such as ':' so the server name is not prefixed.
func (t *MCPTool) Name() string {
	return t.toolName
}

func (t *MCPTool) Description() string {
	return t.description
}

func (t *MCPTool) InputSchema() map[string]interface{} {
	return t.schema
}

// Execute calls the tool on the MCP server and returns its text output. A
// result flagged as an error by the server is returned as an error carrying
// the text.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}

	var sb strings.Builder
	for _, c := range result.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			sb.WriteString(v.Text)
		default:
			fmt.Fprintf(&sb, "[%T omitted]", v)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' failed: %s", t.Name(), sb.String())
	}
	return sb.String(), nil
}
