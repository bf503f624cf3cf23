//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"testing"

	"onesh/pkg/engine"
	"onesh/pkg/log"
	"onesh/pkg/runner"
)

func runOnce(t *testing.T, eng engine.Engine, input string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	r := runner.New(eng,
		runner.WithIO(strings.NewReader(input), &out, &errOut),
		runner.WithLogger(log.NewSlogLogger(slog.LevelDebug, &errOut)),
	)
	code := r.Run(context.Background())
	return out.String(), errOut.String(), code
}

func TestVirtualEngineEndToEnd(t *testing.T) {
	eng := engine.NewVirtual(engine.Options{Dir: t.TempDir()})

	out, errOut, code := runOnce(t, eng, "echo $((2 + 2))\n\n")
	if code != runner.ExitOK {
		t.Fatalf("unexpected exit code %d, stderr: %s", code, errOut)
	}
	if out != "onesh> 4\nPress any key to exit." {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(errOut, "Session closed") {
		t.Errorf("session close was not logged: %s", errOut)
	}
}

func TestVirtualEngineRunsHostPrograms(t *testing.T) {
	if _, err := exec.LookPath("ls"); err != nil {
		t.Skip("ls not available")
	}
	eng := engine.NewVirtual(engine.Options{Dir: t.TempDir()})

	out, errOut, code := runOnce(t, eng, "touch b a && ls\n\n")
	if code != runner.ExitOK {
		t.Fatalf("unexpected exit code %d, stderr: %s", code, errOut)
	}
	if out != "onesh> a\nb\nPress any key to exit." {
		t.Errorf("unexpected output %q", out)
	}
}

func TestHostEngineEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	eng := engine.NewHost(engine.Options{Env: map[string]string{"ONESH_VALUE": "42"}})

	out, errOut, code := runOnce(t, eng, "echo $ONESH_VALUE\n\n")
	if code != runner.ExitOK {
		t.Fatalf("unexpected exit code %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "42") {
		t.Errorf("expected host shell output in %q", out)
	}
	if !strings.HasSuffix(out, runner.PausePrompt) {
		t.Errorf("wait prompt missing from %q", out)
	}
}

func TestHostEngineFailureStillPauses(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	eng := engine.NewHost(engine.Options{})

	out, errOut, code := runOnce(t, eng, "exit_with_failure_onesh_xyz\n\n")
	if code != runner.ExitCommandFailed {
		t.Fatalf("expected failure exit code, got %d, stderr: %s", code, errOut)
	}
	if !strings.HasSuffix(out, runner.PausePrompt) {
		t.Errorf("wait prompt missing from %q", out)
	}
}
