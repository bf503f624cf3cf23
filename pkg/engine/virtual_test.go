package engine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"onesh/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openVirtual(t *testing.T, opts Options) Session {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	session, err := NewVirtual(opts).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestVirtual_Execute(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		expected []string
		exitCode int
		wantErr  string
	}{
		{name: "arithmetic expansion", command: "echo $((2 + 2))", expected: []string{"4"}},
		{name: "empty command", command: "", expected: []string{}},
		{name: "whitespace only", command: "   ", expected: []string{}},
		{name: "multiple lines", command: `printf 'a\nb\nc\n'`, expected: []string{"a", "b", "c"}},
		{name: "pipeline of builtins", command: "for i in 1 2; do echo item$i; done", expected: []string{"item1", "item2"}},
		{name: "explicit exit status", command: "echo before; exit 4", expected: []string{"before"}, exitCode: 4, wantErr: "status 4"},
		{name: "false builtin", command: "false", expected: []string{}, exitCode: 1, wantErr: "status 1"},
		{name: "syntax error", command: "if then fi", expected: nil, exitCode: exitSyntaxError, wantErr: "failed to parse command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := openVirtual(t, Options{})

			result := session.Execute(context.Background(), tt.command)

			assert.Equal(t, tt.expected, lines(result.Items))
			assert.Equal(t, tt.exitCode, result.ExitCode)
			if tt.wantErr != "" {
				require.Error(t, result.Err)
				assert.Contains(t, result.Err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, result.Err)
			}
		})
	}
}

func TestVirtual_EnvironmentAndDir(t *testing.T) {
	dir := t.TempDir()
	session := openVirtual(t, Options{
		Dir: dir,
		Env: map[string]string{"ONESH_GREETING": "hello"},
	})

	result := session.Execute(context.Background(), `echo "$ONESH_GREETING"; pwd`)
	require.NoError(t, result.Err)

	got := lines(result.Items)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0])
	assert.Equal(t, filepath.Clean(dir), filepath.Clean(got[1]))
}

func TestVirtual_StderrIsForwarded(t *testing.T) {
	var stderr bytes.Buffer
	session := openVirtual(t, Options{Stderr: &stderr})

	result := session.Execute(context.Background(), "echo oops >&2; echo fine")
	require.NoError(t, result.Err)

	assert.Equal(t, []string{"fine"}, lines(result.Items))
	assert.Equal(t, "oops\n", stderr.String())
}

func TestVirtual_OpenFailsForMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewVirtual(Options{Dir: missing}).Open(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create interpreter")
}

func TestVirtual_CloseExactlyOnce(t *testing.T) {
	session, err := NewVirtual(Options{Dir: t.TempDir()}).Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Close())
	assert.ErrorIs(t, session.Close(), ErrSessionClosed)

	result := session.Execute(context.Background(), "echo late")
	assert.ErrorIs(t, result.Err, ErrSessionClosed)
	assert.Nil(t, result.Items)
}

func TestVirtual_Timeout(t *testing.T) {
	session := openVirtual(t, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	result := session.Execute(context.Background(), "while true; do :; done")

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, result.Failed())
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, result.ExitCode)
}

func TestVirtual_CancelledContext(t *testing.T) {
	session := openVirtual(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := session.Execute(ctx, "echo never")

	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestVirtual_LogsExternalPrograms(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewSlogLogger(slog.LevelDebug, &buf)
	session := openVirtual(t, Options{Logger: logger})

	result := session.Execute(context.Background(), "onesh-no-such-program-xyz")

	assert.Equal(t, 127, result.ExitCode)
	assert.Contains(t, buf.String(), "Executing external program")
	assert.Contains(t, buf.String(), "program=onesh-no-such-program-xyz")
}

func TestMergeEnv(t *testing.T) {
	base := []string{"A=1", "B=2", "PATH=/bin"}

	assert.Equal(t, base, mergeEnv(base, nil))
	assert.Equal(t,
		[]string{"A=1", "PATH=/bin", "B=override", "C=3"},
		mergeEnv(base, map[string]string{"C": "3", "B": "override"}),
	)
}
