package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"onesh/pkg/log"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualName is the registry name of the embedded shell engine.
const VirtualName = "virtual"

// exitSyntaxError mirrors the status POSIX shells use for parse failures.
const exitSyntaxError = 2

// Virtual runs commands in-process with the mvdan/sh POSIX shell interpreter,
// so no system shell has to be installed.
type Virtual struct {
	opts Options
}

// NewVirtual creates the embedded shell engine.
func NewVirtual(opts Options) *Virtual {
	if opts.Logger == nil {
		opts.Logger = log.NewDiscardLogger()
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	return &Virtual{opts: opts}
}

// Name returns the engine name.
func (v *Virtual) Name() string {
	return VirtualName
}

// Open creates an interpreter bound to the configured directory and environment.
func (v *Virtual) Open(ctx context.Context) (Session, error) {
	dir := v.opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = wd
	}

	s := &virtualSession{opts: v.opts}
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(mergeEnv(os.Environ(), v.opts.Env)...)),
		interp.StdIO(nil, &s.stdout, v.opts.Stderr),
		interp.ExecHandlers(s.execHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	s.runner = runner
	return s, nil
}

type virtualSession struct {
	opts   Options
	runner *interp.Runner
	stdout bytes.Buffer
	closed bool
}

func (s *virtualSession) Execute(ctx context.Context, command string) Result {
	if s.closed {
		return Result{ExitCode: 1, Err: ErrSessionClosed}
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "command")
	if err != nil {
		return Result{ExitCode: exitSyntaxError, Err: fmt.Errorf("failed to parse command: %w", err)}
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	s.stdout.Reset()
	err = s.runner.Run(ctx, prog)
	items := SplitLines(s.stdout.String())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Items: items, ExitCode: 1, Err: fmt.Errorf("command execution failed: %w", ctxErr)}
	}
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return Result{Items: items, ExitCode: int(exitStatus), Err: fmt.Errorf("command exited with status %d", exitStatus)}
		}
		return Result{Items: items, ExitCode: 1, Err: fmt.Errorf("command execution failed: %w", err)}
	}
	return Result{Items: items}
}

func (s *virtualSession) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.runner = nil
	return nil
}

// execHandler logs every program the interpreter resolves outside its builtins.
func (s *virtualSession) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			s.opts.Logger.Debug("Executing external program", "program", args[0], "args", len(args)-1)
		}
		return next(ctx, args)
	}
}

// mergeEnv overlays extra on base, keeping the KEY=VALUE form.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
