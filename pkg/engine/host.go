package engine

import (
	"context"
	"fmt"
	"strings"

	"onesh/pkg/log"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"mvdan.cc/sh/v3/syntax"
)

// HostName is the registry name of the host shell engine.
const HostName = "host"

// Host runs commands in a persistent shell session on the local machine.
type Host struct {
	opts Options
}

// NewHost creates the host shell engine.
func NewHost(opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = log.NewDiscardLogger()
	}
	return &Host{opts: opts}
}

// Name returns the engine name.
func (h *Host) Name() string {
	return HostName
}

// Open starts a local shell and moves it to the configured directory.
func (h *Host) Open(ctx context.Context) (Session, error) {
	var runnerOpts []runner.Option
	if len(h.opts.Env) > 0 {
		runnerOpts = append(runnerOpts, runner.WithEnvironment(h.opts.Env))
	}
	service, err := gosh.New(ctx, local.New(runnerOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to start local shell: %w", err)
	}

	if h.opts.Dir != "" {
		quoted, err := syntax.Quote(h.opts.Dir, syntax.LangPOSIX)
		if err != nil {
			_ = service.Close()
			return nil, fmt.Errorf("invalid working directory %q: %w", h.opts.Dir, err)
		}
		if _, status, err := service.Run(ctx, "cd "+quoted); err != nil || status != 0 {
			_ = service.Close()
			if err == nil {
				err = fmt.Errorf("exit status %d", status)
			}
			return nil, fmt.Errorf("failed to change directory to %s: %w", h.opts.Dir, err)
		}
	}

	h.opts.Logger.Debug("Started local shell", "dir", h.opts.Dir)
	return &hostSession{opts: h.opts, service: service}, nil
}

type hostSession struct {
	opts    Options
	service *gosh.Service
	closed  bool
}

func (s *hostSession) Execute(ctx context.Context, command string) Result {
	if s.closed {
		return Result{ExitCode: 1, Err: ErrSessionClosed}
	}
	// An empty line is a no-op for the shell; skip the round trip.
	if strings.TrimSpace(command) == "" {
		return Result{Items: SplitLines("")}
	}

	var runOpts []runner.Option
	if s.opts.Timeout > 0 {
		runOpts = append(runOpts, runner.WithTimeout(int(s.opts.Timeout.Milliseconds())))
	}

	stdout, status, err := s.service.Run(ctx, command, runOpts...)
	items := SplitLines(stdout)
	if err != nil {
		if status == 0 {
			status = 1
		}
		return Result{Items: items, ExitCode: status, Err: fmt.Errorf("command execution failed: %w", err)}
	}
	if status != 0 {
		return Result{Items: items, ExitCode: status, Err: fmt.Errorf("command exited with status %d", status)}
	}
	return Result{Items: items}
}

func (s *hostSession) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if err := s.service.Close(); err != nil {
		return fmt.Errorf("failed to close local shell: %w", err)
	}
	return nil
}
