// Package agent runs the model/tool loop behind each conversation turn.
//
// An Agent pairs the system instructions with an LLM client and a read-only
// tool registry. Run takes the conversation history, calls the model, executes
// any tool calls it requests through the registry and feeds the results back
// until the model produces a plain answer:
//
//	a := agent.New(client, registry, agent.Options{Instructions: text}, log)
//	res, err := a.Run(ctx, history, agent.Callbacks{})
//	if err != nil {
//	    // model error, cancellation or ErrMaxSteps
//	}
//	fmt.Println(res.FinalOutput)
//	history = res.History
//
// Result.History always starts with the history passed in, followed by the
// assistant, tool call and tool result messages of the run, so it can be
// handed back unchanged on the next turn.
//
// A tool that fails does not fail the run: the error text is returned to the
// model as the tool result and marked with IsError.
//
// # Subpackages
//
// agent/terminal: the interactive line-based conversation loop.
package agent
