//go:build integration

package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/fiveworlds/internal/agent"
	"github.com/signalnine/fiveworlds/internal/docker"
	"github.com/signalnine/fiveworlds/internal/gitops"
	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/sandbox"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

// createFixtureRepo creates a minimal git repo for integration testing.
func createFixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cmds := [][]string{
		{"git", "init"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
	}
	for _, args := range cmds {
		c := exec.Command(args[0], args[1:]...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("%v: %s", err, out)
		}
	}
	os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "test.sh"), []byte("#!/bin/sh\ngrep -q goodbye hello.txt\n"), 0o755)
	for _, args := range [][]string{
		{"git", "add", "."},
		{"git", "commit", "-m", "initial"},
	} {
		c := exec.Command(args[0], args[1:]...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("%v: %s", err, out)
		}
	}
	return dir
}

func TestFiveWorldsIntegration(t *testing.T) {
	if os.Getenv("FIVEWORLDS_DOCKER_TESTS") == "" {
		t.Skip("set FIVEWORLDS_DOCKER_TESTS=1 to run integration tests")
	}

	repo := createFixtureRepo(t)
	adapter := filepath.Join(t.TempDir(), "adapter.sh")
	// Only Gamma edits the file: the others complete without changes.
	script := "#!/bin/sh\nif [ \"$WORLD\" = Gamma ]; then echo goodbye > /workspace/hello.txt; fi\nexit 0\n"
	if err := os.WriteFile(adapter, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	mgr, err := sandbox.NewManager(repo, filepath.Join(t.TempDir(), "sandboxes"), "HEAD", nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ex, err := runner.New(runner.Options{
		Sandboxes: mgr,
		Runner: &agent.Container{
			Image:    "bash:5",
			Adapter:  adapter,
			Reviewer: validation.NewReviewer(validation.LocalCommand{}, validation.ReviewOpts{TestCmd: "sh test.sh"}, nil),
			Run:      docker.RunContainer,
		},
		WorldTimeout: 2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	task := world.Task{ID: "say-goodbye", Title: "Say goodbye", Description: "Change hello.txt to say goodbye"}
	res, err := ex.Execute(ctx, task, 1)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Winner == nil || *res.Winner != world.Gamma {
		t.Fatalf("winner: got %v, want Gamma", res.Winner)
	}
	win := res.WinnerResult()
	if _, err := os.Stat(win.SandboxPath); err != nil {
		t.Errorf("winner sandbox missing: %v", err)
	}
	if !gitops.New(repo).BranchExists(ctx, win.Branch) {
		t.Errorf("winner branch %s missing", win.Branch)
	}
	for _, r := range res.Ordered() {
		if r.World == world.Gamma {
			continue
		}
		if _, err := os.Stat(r.SandboxPath); !os.IsNotExist(err) {
			t.Errorf("%s sandbox should have been removed", r.World)
		}
	}

	runDir, err := result.CreateRunDir(t.TempDir(), 1, task.ID)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if err := result.WriteRun(runDir, result.FromRun(task, res), res); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if _, err := os.Stat(filepath.Join(result.WorldDir(runDir, world.Gamma), result.DiffFile)); err != nil {
		t.Errorf("winner diff not written: %v", err)
	}
}
