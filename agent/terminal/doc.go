// Package terminal implements the interactive conversation loop.
//
// The loop has two states. While awaiting input it shows the prompt and
// waits for a line; a non-empty line moves it to processing, where the line
// is wrapped by prompt.Extend, appended to the transcript and handed to the
// agent. The agent's final output is printed verbatim and its reported
// history becomes the transcript for the next turn.
//
//	term := terminal.New(a, os.Stdin, os.Stdout, terminal.Options{}, log)
//	err := term.Run(ctx)
//
// Cancelling ctx (an interrupt) in either state, reaching end of input or
// typing /quit or /exit prints a single farewell line and Run returns nil.
// The transcript lives in memory only.
//
// A turn that fails is reported as "Error: ..." and the transcript is left
// as it was before the turn. With Options.FailFast the error is returned
// instead.
//
// # Verbosity Levels
//
//   - None: No tool execution information is displayed
//   - Info: Tool names are displayed when called
//   - All: Tool names, arguments, and results are displayed
package terminal
