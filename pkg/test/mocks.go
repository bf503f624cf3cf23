package test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"onesh/pkg/engine"
)

// MockEngine is a shared mock implementation of engine.Engine for testing.
// Every session it opens is recorded so tests can check how it was used.
type MockEngine struct {
	EngineName string
	OpenErr    error                    // Returned by Open instead of a session
	CloseErr   error                    // Returned by the first Close of each session
	Results    map[string]engine.Result // Result by command text
	Sessions   []*MockSession           // Sessions opened so far
}

// NewMockEngine creates a MockEngine with initialized maps.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		EngineName: "mock",
		Results:    make(map[string]engine.Result),
	}
}

// Name returns the configured engine name.
func (e *MockEngine) Name() string {
	return e.EngineName
}

// Open returns a new MockSession or the configured OpenErr.
func (e *MockEngine) Open(ctx context.Context) (engine.Session, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	s := &MockSession{engine: e}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// SetOutput configures command to succeed with the given lines.
func (e *MockEngine) SetOutput(command string, lines ...string) {
	items := make([]fmt.Stringer, 0, len(lines))
	for _, line := range lines {
		items = append(items, engine.Line(line))
	}
	e.Results[command] = engine.Result{Items: items}
}

// SetError configures command to fail with err and exit code 1.
func (e *MockEngine) SetError(command string, err error) {
	e.Results[command] = engine.Result{ExitCode: 1, Err: err}
}

// SetResult configures the exact result for command.
func (e *MockEngine) SetResult(command string, result engine.Result) {
	e.Results[command] = result
}

// MockSession records the commands executed and the number of Close calls.
type MockSession struct {
	engine     *MockEngine
	Commands   []string
	CloseCalls int
}

// Execute returns the configured result, or a nil-items success when none is set.
func (s *MockSession) Execute(ctx context.Context, command string) engine.Result {
	s.Commands = append(s.Commands, command)
	if s.CloseCalls > 0 {
		return engine.Result{ExitCode: 1, Err: engine.ErrSessionClosed}
	}
	if result, ok := s.engine.Results[command]; ok {
		return result
	}
	return engine.Result{}
}

// Close counts calls; every call after the first returns ErrSessionClosed.
func (s *MockSession) Close() error {
	s.CloseCalls++
	if s.CloseCalls > 1 {
		return engine.ErrSessionClosed
	}
	return s.engine.CloseErr
}

// MockLogger is a shared mock implementation of Logger for testing.
// It captures logged messages for verification.
type MockLogger struct {
	Messages []string
	Level    slog.Level
}

// NewMockLogger creates a new MockLogger with the specified level.
func NewMockLogger(level slog.Level) *MockLogger {
	return &MockLogger{
		Messages: []string{},
		Level:    level,
	}
}

// Debug captures debug messages.
func (l *MockLogger) Debug(msg string, args ...any) {
	l.capture(slog.LevelDebug, msg, args...)
}

// Info captures info messages.
func (l *MockLogger) Info(msg string, args ...any) {
	l.capture(slog.LevelInfo, msg, args...)
}

// Warn captures warn messages.
func (l *MockLogger) Warn(msg string, args ...any) {
	l.capture(slog.LevelWarn, msg, args...)
}

// Error captures error messages.
func (l *MockLogger) Error(msg string, args ...any) {
	l.capture(slog.LevelError, msg, args...)
}

func (l *MockLogger) capture(level slog.Level, msg string, args ...any) {
	if level < l.Level {
		return
	}
	buf := &bytes.Buffer{}
	buf.WriteString(level.String())
	buf.WriteString(": ")
	buf.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(buf, " %v=%v", args[i], args[i+1])
	}
	l.Messages = append(l.Messages, buf.String())
}

// HasMessage checks if any captured message contains the given substring.
func (l *MockLogger) HasMessage(substring string) bool {
	for _, msg := range l.Messages {
		if strings.Contains(msg, substring) {
			return true
		}
	}
	return false
}
