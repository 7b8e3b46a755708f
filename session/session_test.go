package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, msgs ...Message) *Transcript {
	t.Helper()
	tr := NewTranscript()
	require.NoError(t, tr.Replace(msgs))
	return tr
}

func TestNewTranscriptIsEmpty(t *testing.T) {
	tr := NewTranscript()
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Messages())
}

func TestMessagesReturnsCopy(t *testing.T) {
	tr := seeded(t, Message{Role: RoleUser, Content: "one"})

	msgs := tr.Messages()
	msgs[0].Content = "changed"
	_ = append(msgs, Message{Role: RoleUser, Content: "extra"})

	assert.Equal(t, "one", tr.Messages()[0].Content)
	assert.Equal(t, 1, tr.Len())
}

func TestReplaceWithExtension(t *testing.T) {
	tr := seeded(t, Message{Role: RoleUser, Content: "q1"})

	history := []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ToolCallID: "c1", Name: "validate_sql", Args: map[string]interface{}{"sql": "SELECT 1"}}}},
		{Role: RoleTool, Content: "ok", ToolCalls: []ToolCall{{ToolCallID: "c1", Name: "validate_sql"}}},
		{Role: RoleAssistant, Content: "SELECT 1"},
	}
	require.NoError(t, tr.Replace(history))
	assert.Equal(t, history, tr.Messages())

	// The transcript does not alias the caller's slice.
	history[3].Content = "mutated"
	assert.Equal(t, "SELECT 1", tr.Messages()[3].Content)
}

func TestReplaceKeepsOrderAcrossTurns(t *testing.T) {
	tr := NewTranscript()
	turn1 := []Message{{Role: RoleUser, Content: "q1"}, {Role: RoleAssistant, Content: "a1"}}
	require.NoError(t, tr.Replace(turn1))
	turn2 := append(tr.Messages(), Message{Role: RoleUser, Content: "q2"}, Message{Role: RoleAssistant, Content: "a2"})
	require.NoError(t, tr.Replace(turn2))

	msgs := tr.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})
}

func TestReplaceRejectsShrinkingOrDivergingHistory(t *testing.T) {
	tr := seeded(t,
		Message{Role: RoleUser, Content: "q1"},
		Message{Role: RoleAssistant, Content: "a1"},
	)

	assert.Error(t, tr.Replace([]Message{{Role: RoleUser, Content: "q1"}}))
	assert.Error(t, tr.Replace([]Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "different"},
		{Role: RoleUser, Content: "q2"},
	}))
	assert.Equal(t, 2, tr.Len())
}
