// Package mcptest provides a stand-in for the EMQX helper MCP server. A test
// binary serves it by re-executing itself: call MaybeServe first thing in
// TestMain and start the binary with EnvServe set.
package mcptest

import (
	"context"
	"fmt"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// EnvServe switches a test binary into server mode.
const EnvServe = "RULESQL_MCPTEST_SERVE"

// ValidationTool is the single tool the server provides.
const ValidationTool = "validate_sql"

type validateArgs struct {
	SQL string `json:"sql" jsonschema:"the rule SQL statement to validate"`
}

// Reply is the text the validation tool returns for sql, echoing the EMQX
// API settings the server received through its environment.
func Reply(sql string) string {
	return fmt.Sprintf("api=%s key=%s secret=%s sql=%s",
		os.Getenv("EMQX_API_URL"), os.Getenv("EMQX_API_KEY"), os.Getenv("EMQX_API_SECRET"), sql)
}

func validate(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[validateArgs]) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: Reply(params.Arguments.SQL)}},
	}, nil
}

// NewServer returns the server with its tool registered.
func NewServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "emqx-mcp-test", Version: "v0.0.1"}, nil)
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: ValidationTool, Description: "Validate a rule SQL statement"}, validate)
	return server
}

// MaybeServe serves NewServer over stdio and exits when EnvServe is set. It
// returns immediately otherwise.
func MaybeServe() {
	if os.Getenv(EnvServe) == "" {
		return
	}
	if err := NewServer().Run(context.Background(), mcpsdk.NewStdioTransport()); err != nil {
		fmt.Fprintf(os.Stderr, "mcptest: %v\n", err)
	}
	os.Exit(0)
}
