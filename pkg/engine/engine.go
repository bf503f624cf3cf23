// Package engine defines the scripting engines a command can be submitted to.
// An Engine opens Sessions; a Session executes exactly the text it is given and
// reports the outcome as a Result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"onesh/pkg/log"
)

var (
	// ErrSessionClosed is returned when a closed session is used or closed again.
	ErrSessionClosed = errors.New("session already closed")
	// ErrUnknownEngine is returned by New for an unregistered engine name.
	ErrUnknownEngine = errors.New("unknown engine")
)

// Engine creates execution sessions.
type Engine interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

// Session is a live execution context. It must be closed exactly once.
type Session interface {
	Execute(ctx context.Context, command string) Result
	Close() error
}

// Result is the outcome of executing one command.
// A nil Items means the engine produced no result container at all,
// which is distinct from an empty one but rendered the same way.
type Result struct {
	Items    []fmt.Stringer
	ExitCode int
	Err      error
}

// Failed reports whether the execution failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Line is a single line of engine output.
type Line string

func (l Line) String() string {
	return string(l)
}

// Options configures the session an engine opens.
type Options struct {
	Dir     string
	Env     map[string]string
	Timeout time.Duration
	// Stderr receives the command's diagnostic output. The host engine
	// reads a combined stream and does not use it.
	Stderr io.Writer
	Logger log.Logger
}

// Constructor builds an engine from options.
type Constructor func(opts Options) Engine

var registry = map[string]Constructor{
	VirtualName: func(opts Options) Engine { return NewVirtual(opts) },
	HostName:    func(opts Options) Engine { return NewHost(opts) },
}

// New returns the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownEngine, name, strings.Join(Names(), ", "))
	}
	return ctor(opts), nil
}

// Names lists registered engine names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitLines turns captured output into one item per line.
// The trailing newline does not produce an empty item, and
// empty output yields an empty, non-nil slice.
func SplitLines(output string) []fmt.Stringer {
	items := []fmt.Stringer{}
	if output == "" {
		return items
	}
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		items = append(items, Line(strings.TrimSuffix(line, "\r")))
	}
	return items
}
