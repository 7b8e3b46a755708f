package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m4xw311/rulesql/agent"
	"github.com/m4xw311/rulesql/errors"
	"github.com/m4xw311/rulesql/prompt"
	"github.com/m4xw311/rulesql/session"
	"go.uber.org/zap"
)

const (
	DefaultPrompt = "rule-sql-agent> "
	Farewell      = "Goodbye!"
)

// Runner runs one conversation turn. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, input []session.Message, cb agent.Callbacks) (*agent.Result, error)
}

type Options struct {
	Prompt string
	// TurnTimeout bounds a single turn; zero means no limit.
	TurnTimeout time.Duration
	// FailFast ends the loop on the first failed turn instead of reporting it
	// and reading the next line.
	FailFast  bool
	Verbosity agent.ToolVerbosity
}

// Terminal handles the interactive conversation loop.
type Terminal struct {
	runner     Runner
	in         io.Reader
	out        io.Writer
	opts       Options
	transcript *session.Transcript
	log        *zap.Logger
}

// New creates a new Terminal reading from in and writing to out.
func New(r Runner, in io.Reader, out io.Writer, opts Options, log *zap.Logger) *Terminal {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Verbosity == "" {
		opts.Verbosity = agent.ToolVerbosityNone
	}
	return &Terminal{
		runner:     r,
		in:         in,
		out:        out,
		opts:       opts,
		transcript: session.NewTranscript(),
		log:        log,
	}
}

// Transcript returns a copy of the conversation so far.
func (t *Terminal) Transcript() []session.Message {
	return t.transcript.Messages()
}

// Run reads user requests until ctx is cancelled, input ends or the user
// types /quit or /exit; each of these prints the farewell and returns nil.
// A failed turn is reported and the loop continues with the transcript as it
// was before the turn, unless FailFast is set.
func (t *Terminal) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	lines, readErr := t.readLines(stop)

	for {
		fmt.Fprint(t.out, t.opts.Prompt)

		var line string
		select {
		case <-ctx.Done():
			t.farewell()
			return nil
		case err := <-readErr:
			if err != nil {
				return errors.Wrapf(err, "failed to read input")
			}
			t.farewell()
			return nil
		case line = <-lines:
		}

		userInput := strings.TrimSpace(line)
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			t.farewell()
			return nil
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			if ctx.Err() != nil {
				t.farewell()
				return nil
			}
			if t.opts.FailFast {
				return err
			}
			t.log.Warn("turn failed", zap.Error(err))
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}
}

// readLines scans input on its own goroutine so that cancellation is noticed
// while waiting for a line. readErr receives nil on EOF.
func (t *Terminal) readLines(stop <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

// processTurn handles a single user input turn. The transcript is only
// updated when the turn succeeds.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	input := append(t.transcript.Messages(), session.Message{
		Role:    session.RoleUser,
		Content: prompt.Extend(userInput),
	})

	if t.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.TurnTimeout)
		defer cancel()
	}

	res, err := t.runner.Run(ctx, input, t.callbacks())
	if err != nil {
		return err
	}

	if err := t.transcript.Replace(res.History); err != nil {
		return errors.Wrapf(err, "agent reported an inconsistent history")
	}
	t.log.Debug("turn complete", zap.Int("messages", t.transcript.Len()))
	fmt.Fprintln(t.out, res.FinalOutput)
	return nil
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnToolCall: func(toolCall session.ToolCall) {
			switch t.opts.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "Calling tool `%s` with args: %v\n", toolCall.Name, toolCall.Args)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "Calling tool `%s`\n", toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string, err error) {
			if t.opts.Verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
	}
}

func (t *Terminal) farewell() {
	fmt.Fprintf(t.out, "\n%s\n", Farewell)
}
