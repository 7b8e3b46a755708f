package agent

import (
	"context"
	"fmt"

	"github.com/m4xw311/rulesql/errors"
	"github.com/m4xw311/rulesql/llm"
	"github.com/m4xw311/rulesql/session"
	"github.com/m4xw311/rulesql/tools"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds the model calls of a single run.
const DefaultMaxSteps = 10

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

type Options struct {
	Name         string
	Instructions string
	MaxSteps     int
}

type Agent struct {
	Name         string
	Instructions string
	LLMClient    llm.LLMClient
	Tools        *tools.Registry
	MaxSteps     int
	log          *zap.Logger
}

// Callbacks report tool activity while a run is in progress. Nil fields are
// skipped.
type Callbacks struct {
	OnToolCall   func(toolCall session.ToolCall)
	OnToolResult func(toolCall session.ToolCall, result string, err error)
}

// Result is the outcome of a run. History is the input followed by every
// message the run produced, ready to be fed back for the next turn.
type Result struct {
	FinalOutput string
	History     []session.Message
	Steps       int
}

func New(client llm.LLMClient, registry *tools.Registry, opts Options, log *zap.Logger) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Name == "" {
		opts.Name = "Assistant"
	}
	return &Agent{
		Name:         opts.Name,
		Instructions: opts.Instructions,
		LLMClient:    client,
		Tools:        registry,
		MaxSteps:     opts.MaxSteps,
		log:          log.With(zap.String("agent", opts.Name)),
	}
}

// Run drives the model until it answers without requesting tools. Tool
// failures are reported back to the model as tool messages; model failures
// and cancellation end the run with an error.
func (a *Agent) Run(ctx context.Context, input []session.Message, cb Callbacks) (*Result, error) {
	history := append([]session.Message(nil), input...)
	availableTools := a.Tools.Tools()

	for step := 1; step <= a.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.log.Debug("calling model", zap.Int("step", step), zap.Int("messages", len(history)))
		reply, err := a.LLMClient.Chat(ctx, a.Instructions, history, availableTools)
		if err != nil {
			return nil, errors.Wrapf(err, "LLM chat failed")
		}
		if reply.Role == "" {
			reply.Role = session.RoleAssistant
		}
		history = append(history, *reply)

		if len(reply.ToolCalls) == 0 {
			return &Result{FinalOutput: reply.Content, History: history, Steps: step}, nil
		}

		for _, tc := range reply.ToolCalls {
			history = append(history, a.executeTool(ctx, tc, cb))
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.Mark(errors.New("no final answer after %d steps", a.MaxSteps), errors.ErrMaxSteps)
}

func (a *Agent) executeTool(ctx context.Context, tc session.ToolCall, cb Callbacks) session.Message {
	if cb.OnToolCall != nil {
		cb.OnToolCall(tc)
	}

	result, err := a.Tools.Call(ctx, tc.Name, tc.Args)
	switch {
	case errors.Is(err, errors.ErrUnknownTool):
		a.log.Warn("model requested an unknown tool", zap.String("tool", tc.Name), zap.Int("available", a.Tools.Len()))
		result = fmt.Sprintf("Error: %v", err)
	case err != nil:
		a.log.Warn("tool call failed", zap.String("tool", tc.Name), zap.Error(err))
		result = fmt.Sprintf("Error: %v", err)
	default:
		a.log.Debug("tool call succeeded", zap.String("tool", tc.Name), zap.Int("bytes", len(result)))
	}

	if cb.OnToolResult != nil {
		cb.OnToolResult(tc, result, err)
	}

	return session.Message{
		Role:      session.RoleTool,
		Content:   result,
		ToolCalls: []session.ToolCall{tc},
		IsError:   err != nil,
	}
}
