package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

func writeConfig(t *testing.T, extra string) (path, resultsDir string) {
	t.Helper()
	dir := t.TempDir()
	resultsDir = filepath.Join(dir, "results")
	content := "results:\n  dir: " + resultsDir + "\n" + extra
	path = filepath.Join(dir, "fiveworlds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, resultsDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPrintSummary(t *testing.T) {
	gamma := world.Gamma
	res := &runner.FiveWorldsResult{
		Results: map[world.ID]*runner.WorldExecutionResult{},
		Winner:  &gamma,
	}
	for _, id := range world.All() {
		res.Results[id] = &runner.WorldExecutionResult{World: id, Model: "m", Status: runner.StatusFailed, Reason: "build failed"}
	}
	res.Results[world.Gamma] = &runner.WorldExecutionResult{
		World: world.Gamma, Model: "claude-opus-4-1", Status: runner.StatusCompleted, Success: true,
		Score: validation.EvaluationScore{Total: 87.5}, Branch: "fiveworlds/gamma-issue-1", SandboxPath: "/tmp/gamma",
	}

	var buf bytes.Buffer
	if err := printSummary(&buf, res); err != nil {
		t.Fatalf("printSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Alpha", "Epsilon", "build failed", "Winner: Gamma (87.5)", "fiveworlds/gamma-issue-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Alpha") > strings.Index(out, "Beta") {
		t.Error("worlds should print in canonical order")
	}
}

func TestPrintSummaryNoWinner(t *testing.T) {
	res := &runner.FiveWorldsResult{Results: map[world.ID]*runner.WorldExecutionResult{}}
	var buf bytes.Buffer
	if err := printSummary(&buf, res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No world succeeded") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestBreakersResetCommand(t *testing.T) {
	path, resultsDir := writeConfig(t, "breaker:\n  failure_threshold: 1\n  cooldown: 1h\n")

	reg := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, Cooldown: time.Hour})
	_ = reg.For(world.Beta).Call(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	store := result.NewBreakerStore(resultsDir)
	if err := store.Save(reg); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "breakers", "--config", path)
	if err != nil {
		t.Fatalf("breakers: %v", err)
	}
	if !strings.Contains(out, "open") {
		t.Errorf("expected Beta to be open:\n%s", out)
	}

	if _, err := execute(t, "breakers", "--config", path, "--reset", "--world", "beta"); err != nil {
		t.Fatalf("breakers --reset: %v", err)
	}
	reloaded := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, Cooldown: time.Hour})
	if err := store.Load(reloaded); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.For(world.Beta).State(); got != breaker.Closed {
		t.Errorf("Beta after reset = %s, want closed", got)
	}
}

func TestBreakersResetUnknownWorld(t *testing.T) {
	path, _ := writeConfig(t, "")
	if _, err := execute(t, "breakers", "--config", path, "--reset", "--world", "zeta"); err == nil {
		t.Error("expected error for unknown world")
	}
}

func TestWorldsCommand(t *testing.T) {
	path, _ := writeConfig(t, "worlds:\n  delta:\n    model: gpt-5-codex-mini\n")
	out, err := execute(t, "worlds", "--config", path)
	if err != nil {
		t.Fatalf("worlds: %v", err)
	}
	for _, want := range []string{"Alpha", "gpt-5-codex-mini", "gemini-2.5-pro", "closed"} {
		if !strings.Contains(out, want) {
			t.Errorf("worlds output missing %q:\n%s", want, out)
		}
	}
}

func TestReportCommandEmptyResults(t *testing.T) {
	path, resultsDir := writeConfig(t, "")
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "report", "--config", path, "--format", "json"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := execute(t, "report", "--config", path, "--format", "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	path, _ := writeConfig(t, "")
	if _, err := execute(t, "worlds", "--config", path, "--log-level", "loud"); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestRunRequiresTicket(t *testing.T) {
	path, _ := writeConfig(t, "")
	if _, err := execute(t, "run", "task.yaml", "--config", path); err == nil {
		t.Error("expected error without --ticket")
	}
}
