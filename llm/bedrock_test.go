package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/m4xw311/rulesql/session"
	"github.com/m4xw311/rulesql/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTool is a simple mock tool for testing
type MockTool struct {
	name        string
	description string
	schema      map[string]interface{}
}

func (m *MockTool) Name() string {
	return m.name
}

func (m *MockTool) Description() string {
	return m.description
}

func (m *MockTool) InputSchema() map[string]interface{} {
	return m.schema
}

func (m *MockTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "mock result", nil
}

func validateSQLTool() *MockTool {
	return &MockTool{
		name:        "validate_sql",
		description: "Validate a rule SQL statement against samples",
		schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sql":     map[string]interface{}{"type": "string", "description": "the statement"},
				"samples": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			},
			"required": []interface{}{"sql"},
		},
	}
}

// toolTurn is a user request answered after one validate_sql round trip.
func toolTurn() []session.Message {
	call := session.ToolCall{ToolCallID: "call_1", Name: "validate_sql", Args: map[string]interface{}{"sql": "SELECT * FROM \"t/#\""}}
	return []session.Message{
		{Role: session.RoleUser, Content: "compose"},
		{Role: session.RoleAssistant, Content: "Validating.", ToolCalls: []session.ToolCall{call}},
		{Role: session.RoleTool, Content: "ok", ToolCalls: []session.ToolCall{call}},
		{Role: session.RoleAssistant, Content: "SELECT * FROM \"t/#\""},
	}
}

func TestConvertMessagesToAnthropicFormat(t *testing.T) {
	result := convertMessagesToAnthropicFormat(toolTurn())
	require.Len(t, result, 4)

	assert.Equal(t, "user", result[0]["role"])
	assert.Equal(t, "assistant", result[1]["role"])
	assert.Equal(t, "user", result[2]["role"])
	assert.Equal(t, "assistant", result[3]["role"])

	assistantContent := result[1]["content"].([]map[string]interface{})
	require.Len(t, assistantContent, 2)
	assert.Equal(t, "text", assistantContent[0]["type"])
	assert.Equal(t, "tool_use", assistantContent[1]["type"])
	assert.Equal(t, "call_1", assistantContent[1]["id"])

	toolContent := result[2]["content"].([]map[string]interface{})
	require.Len(t, toolContent, 1)
	assert.Equal(t, "tool_result", toolContent[0]["type"])
	assert.Equal(t, "call_1", toolContent[0]["tool_use_id"])
	assert.NotContains(t, toolContent[0], "is_error")
}

func TestConvertMessagesToAnthropicFormatGroupsToolResults(t *testing.T) {
	a := session.ToolCall{ToolCallID: "a", Name: "validate_sql"}
	b := session.ToolCall{ToolCallID: "b", Name: "list_topics"}
	result := convertMessagesToAnthropicFormat([]session.Message{
		{Role: session.RoleUser, Content: "compose"},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{a, b}},
		{Role: session.RoleTool, Content: "ok", ToolCalls: []session.ToolCall{a}},
		{Role: session.RoleTool, Content: "boom", ToolCalls: []session.ToolCall{b}, IsError: true},
	})
	require.Len(t, result, 3)

	results := result[2]["content"].([]map[string]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0]["tool_use_id"])
	assert.Equal(t, "b", results[1]["tool_use_id"])
	assert.Equal(t, true, results[1]["is_error"])
}

func TestCreateAnthropicRequest(t *testing.T) {
	messages := convertMessagesToAnthropicFormat([]session.Message{{Role: session.RoleUser, Content: "Hello"}})
	body, err := createAnthropicRequest(messages, "You help to compose an SQL statement", []tools.Tool{validateSQLTool()})
	require.NoError(t, err)

	var request map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &request))

	assert.Equal(t, "bedrock-2023-05-31", request["anthropic_version"])
	assert.Equal(t, float64(anthropicMaxTokens), request["max_tokens"])
	assert.Equal(t, "You help to compose an SQL statement", request["system"])

	ts := request["tools"].([]interface{})
	require.Len(t, ts, 1)
	tool := ts[0].(map[string]interface{})
	assert.Equal(t, "validate_sql", tool["name"])
	schema := tool["input_schema"].(map[string]interface{})
	assert.Contains(t, schema["properties"], "sql")
}

func TestCreateAnthropicRequestWithoutToolsOrSystem(t *testing.T) {
	body, err := createAnthropicRequest(nil, "", nil)
	require.NoError(t, err)

	var request map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &request))
	assert.NotContains(t, request, "system")
	assert.NotContains(t, request, "tools")
}

func TestProcessBedrockResponse(t *testing.T) {
	body := []byte(`{
		"content": [
			{"type": "text", "text": "Let me validate that."},
			{"type": "tool_use", "id": "toolu_1", "name": "validate_sql", "input": {"sql": "SELECT 1"}},
			{"type": "tool_use", "name": "list_topics", "input": {}}
		]
	}`)

	msg, err := processBedrockResponse(body)
	require.NoError(t, err)
	assert.Equal(t, session.RoleAssistant, msg.Role)
	assert.Equal(t, "Let me validate that.", msg.Content)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ToolCallID)
	assert.Equal(t, "SELECT 1", msg.ToolCalls[0].Args["sql"])
	assert.Equal(t, "call_1_list_topics", msg.ToolCalls[1].ToolCallID)
}

func TestProcessBedrockResponseErrors(t *testing.T) {
	_, err := processBedrockResponse([]byte(`{"error": "throttled"}`))
	assert.Error(t, err)

	_, err = processBedrockResponse([]byte(`not json`))
	assert.Error(t, err)

	_, err = processBedrockResponse([]byte(`{"content": "flat"}`))
	assert.Error(t, err)

	msg, err := processBedrockResponse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
}
