package session

import (
	"reflect"

	"github.com/m4xw311/rulesql/errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a single tool invocation requested by the model. On a "tool"
// message it identifies the call the content answers.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

type Message struct {
	Role      string     `json:"role"` // "user", "assistant", "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	IsError   bool       `json:"is_error,omitempty"`
}

// Transcript is the in-memory conversation history of one run. It only
// grows: Replace accepts only histories that extend the current one.
type Transcript struct {
	messages []Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: []Message{}}
}

// Messages returns a copy of the transcript, safe to extend.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages), len(t.messages)+1)
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int { return len(t.messages) }

// Replace swaps in the history reported by the agent after a turn. The
// current transcript must be a prefix of history.
func (t *Transcript) Replace(history []Message) error {
	if len(history) < len(t.messages) {
		return errors.New("history has %d messages, transcript already has %d", len(history), len(t.messages))
	}
	for i := range t.messages {
		if !reflect.DeepEqual(t.messages[i], history[i]) {
			return errors.New("history diverges from transcript at message %d", i)
		}
	}
	t.messages = append([]Message(nil), history...)
	return nil
}
