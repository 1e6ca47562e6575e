package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AaronLay10/decisiongraph/internal/config"
	"github.com/AaronLay10/decisiongraph/internal/storage/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "town.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "agentsim version") {
		t.Errorf("version output missing 'agentsim version', got: %s", stdout.String())
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	output := stdout.String()
	for _, want := range []string{"run", "repl", "validate", "version"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_Validate(t *testing.T) {
	path := writeConfig(t, `
version: 1
sim:
  seed: 4
  agents: [guard, villager]
`)
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", path}); err != nil {
		t.Fatalf("validate command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "valid: 2 agents (guard, villager)") {
		t.Errorf("unexpected validate output: %s", stdout.String())
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown agent": "version: 1\nsim:\n  agents: [dragon]\n",
		"bad version":   "version: 2\n",
		"bad driver":    "version: 1\nstorage:\n  driver: mongo\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			app := New().WithOutput(&stdout, &stderr)
			err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", writeConfig(t, content)})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "validation failed") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestApp_ValidateRequiresPath(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	if err := app.ExecuteWithArgs(context.Background(), []string{"validate"}); err == nil {
		t.Fatal("expected error without -c")
	}
}

func TestApp_RunPersistsTrace(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	path := writeConfig(t, `
version: 1
sim:
  tick_interval: 1ms
  max_ticks: 40
  seed: 11
log:
  level: warn
  format: text
storage:
  driver: sqlite
  sqlite_path: `+db+`
`)
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"run", "-c", path}); err != nil {
		t.Fatalf("run failed: %v\nstderr: %s", err, stderr.String())
	}
	output := stdout.String()
	if !strings.Contains(output, "40 ticks") {
		t.Errorf("summary missing tick count: %s", output)
	}
	for _, name := range []string{"guard", "patrol", "villager"} {
		if !strings.Contains(output, name) {
			t.Errorf("summary missing agent %s: %s", name, output)
		}
	}

	store, err := sqlite.Open(db, "reader")
	if err != nil {
		t.Fatalf("reopen trace: %v", err)
	}
	defer store.Close()
	rows, err := store.AgentEvents("guard")
	if err != nil {
		t.Fatalf("agent events: %v", err)
	}
	if len(rows) == 0 {
		t.Error("expected persisted guard events")
	}
}

func TestApp_RunMaxTicksFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	args := []string{"run", "--max-ticks", "3", "--interval", "1ms"}
	if err := app.ExecuteWithArgs(context.Background(), args); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "3 ticks") {
		t.Errorf("unexpected summary: %s", stdout.String())
	}
}

func TestApp_ReplScript(t *testing.T) {
	var stdout, stderr bytes.Buffer
	script := io.NopCloser(strings.NewReader("step 2\nstatus\nquit\n"))
	app := New().WithOutput(&stdout, &stderr).WithInput(script)

	if err := app.ExecuteWithArgs(context.Background(), []string{"repl"}); err != nil {
		t.Fatalf("repl failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "tick 2") {
		t.Errorf("repl output missing step result: %s", stdout.String())
	}
}

func newTestStack(t *testing.T) *stack {
	t.Helper()
	st, err := build(config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(st.close)
	return st
}

func TestExecCommands(t *testing.T) {
	st := newTestStack(t)
	var out bytes.Buffer

	if err := st.exec(&out, "step 3"); err != nil {
		t.Fatalf("step: %v", err)
	}
	if st.runner.TickCount() != 3 {
		t.Errorf("expected 3 ticks, got %d", st.runner.TickCount())
	}

	out.Reset()
	if err := st.exec(&out, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "villager") {
		t.Errorf("status missing villager: %s", out.String())
	}

	out.Reset()
	if err := st.exec(&out, "events 2"); err != nil {
		t.Fatalf("events: %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("expected 2 event lines, got %d: %s", got, out.String())
	}

	if err := st.exec(&out, "signal guard noise 0.95"); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if v := st.sim.Boards()["guard"].FloatOr("noise", 0); v != 0.95 {
		t.Errorf("expected signalled noise 0.95, got %v", v)
	}

	out.Reset()
	if err := st.exec(&out, "board guard"); err != nil {
		t.Fatalf("board: %v", err)
	}
	if !strings.Contains(out.String(), "noise = 0.95") {
		t.Errorf("board output missing noise: %s", out.String())
	}

	if err := st.exec(&out, "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if st.runner.TickCount() != 0 {
		t.Errorf("expected tick count reset, got %d", st.runner.TickCount())
	}
}

func TestExecErrors(t *testing.T) {
	st := newTestStack(t)
	var out bytes.Buffer

	for _, line := range []string{"fly", "step x", "step -1", "board", "board nobody", "signal dragon hp 1", "signal guard"} {
		if err := st.exec(&out, line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
	if err := st.exec(&out, "quit"); !errors.Is(err, errQuit) {
		t.Errorf("quit: expected errQuit, got %v", err)
	}
	if err := st.exec(&out, "   "); err != nil {
		t.Errorf("blank line: %v", err)
	}
}
