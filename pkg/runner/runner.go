// Package runner submits a single line of console input to a scripting engine
// and renders what the engine returns.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"onesh/pkg/engine"
	"onesh/pkg/log"
)

// Process exit codes returned by Run.
const (
	ExitOK                = 0
	ExitCommandFailed     = 1
	ExitUsage             = 64
	ExitEngineUnavailable = 69
	ExitInterrupted       = 130
)

const (
	DefaultToolName = "onesh"
	PausePrompt     = "Press any key to exit."
)

// CommandRunner reads one command, executes it in a fresh engine session and
// waits for a keypress before returning.
type CommandRunner struct {
	engine   engine.Engine
	toolName string
	pause    bool
	in       *bufio.Reader
	out      io.Writer
	errOut   io.Writer
	logger   log.Logger
	// pending holds a read that was abandoned on cancellation; the next
	// readLine picks it up instead of starting a second one.
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// Option customizes a CommandRunner.
type Option func(*CommandRunner)

// WithToolName sets the name shown in the input prompt.
func WithToolName(name string) Option {
	return func(r *CommandRunner) {
		if name != "" {
			r.toolName = name
		}
	}
}

// WithPause controls whether Run waits for input before returning.
func WithPause(pause bool) Option {
	return func(r *CommandRunner) {
		r.pause = pause
	}
}

// WithIO replaces the console streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(r *CommandRunner) {
		r.in = bufio.NewReader(in)
		r.out = out
		r.errOut = errOut
	}
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(logger log.Logger) Option {
	return func(r *CommandRunner) {
		r.logger = logger
	}
}

// New creates a CommandRunner bound to eng. Without WithIO it reads from an
// empty input and discards all output.
func New(eng engine.Engine, opts ...Option) *CommandRunner {
	r := &CommandRunner{
		engine:   eng,
		toolName: DefaultToolName,
		pause:    true,
		in:       bufio.NewReader(strings.NewReader("")),
		out:      io.Discard,
		errOut:   io.Discard,
		logger:   log.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs the whole read, execute, render, wait sequence once and returns
// the process exit code. Engine errors are reported here and never returned.
func (r *CommandRunner) Run(ctx context.Context) int {
	fmt.Fprintf(r.out, "%s> ", r.toolName)
	command, err := r.readLine(ctx)
	if err != nil && ctx.Err() != nil {
		fmt.Fprintln(r.out)
		return ExitInterrupted
	}
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: failed to read command: %v\n", err)
		return ExitUsage
	}

	result, err := r.execute(ctx, command)
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %s engine unavailable: %v\n", r.engine.Name(), err)
		return ExitEngineUnavailable
	}

	r.render(result)

	code := ExitOK
	if result.Failed() {
		fmt.Fprintf(r.errOut, "Error: %v\n", result.Err)
		code = ExitCommandFailed
	}

	if r.pause {
		fmt.Fprint(r.out, PausePrompt)
		// Any input, including none at all, ends the pause.
		if _, err := r.readLine(ctx); err != nil && ctx.Err() != nil {
			fmt.Fprintln(r.out)
			return ExitInterrupted
		}
	}
	return code
}

// execute runs command in a session that is closed before it returns,
// whatever the engine does. The returned error is only set when no
// session could be opened.
func (r *CommandRunner) execute(ctx context.Context, command string) (result engine.Result, err error) {
	session, err := r.engine.Open(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	r.logger.Debug("Session opened", "engine", r.engine.Name())
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			r.logger.Warn("Failed to close session", "engine", r.engine.Name(), "error", closeErr)
		} else {
			r.logger.Debug("Session closed", "engine", r.engine.Name())
		}
	}()

	result = session.Execute(ctx, command)
	if result.Failed() {
		r.logger.Debug("Command failed", "exit_code", result.ExitCode, "error", result.Err)
	} else {
		r.logger.Debug("Command succeeded", "items", len(result.Items))
	}
	return result, nil
}

func (r *CommandRunner) render(result engine.Result) {
	if result.Items == nil {
		return
	}
	for _, item := range result.Items {
		fmt.Fprintln(r.out, item.String())
	}
}

// readLine returns one line without its terminator. EOF after some text
// counts as a line; EOF with nothing read yields an empty line. It returns
// ctx.Err() as soon as ctx is done, even while the read is still blocked.
func (r *CommandRunner) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := r.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
		r.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-r.pending:
		r.pending = nil
		if res.err != nil && !errors.Is(res.err, io.EOF) {
			return "", res.err
		}
		line := strings.TrimSuffix(res.line, "\n")
		line = strings.TrimSuffix(line, "\r")
		return line, nil
	}
}
